package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"cvcounter/internal/config"
	"cvcounter/internal/database"
	"cvcounter/internal/httpapi"
)

func main() {
	var (
		hostF   = flag.String("host", "", "HTTP listen host (overrides deploy.toml and config's server.host)")
		portF   = flag.String("http-port", "", "HTTP listen port (overrides deploy.toml and config's server.port)")
		configF = flag.String("config", "", "Path to the cvcounter JSON configuration document")
		deployF = flag.String("deploy", "", "Path to an optional TOML deployment file (ffmpeg path, storage roots, listen defaults)")
		debugF  = flag.Bool("debug", false, "Report debug mode in the startup log line (request and response bodies are not logged)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[cvcounter] ", log.Ltime)

	deployPath := *deployF
	if deployPath == "" {
		deployPath = os.Getenv("CVCOUNTER_DEPLOY")
	}
	process, err := config.LoadProcessDefaults(deployPath)
	if err != nil {
		logger.Fatalf("failed to load deployment file %q: %v", deployPath, err)
	}

	configPath := *configF
	if configPath == "" {
		configPath = os.Getenv("CVCOUNTER_CONFIG")
	}
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration %q: %v", configPath, err)
	}

	frameDir := cfg.General.FrameDir
	if frameDir == "" {
		frameDir = os.Getenv("FRAME_DIR")
	}
	if frameDir == "" {
		frameDir = process.Storage.FrameDir
	}

	dbPath := cfg.DB.Path
	if dbPath == "" {
		dbPath = os.Getenv("DATABASE_PATH")
	}
	if dbPath == "" && process.Storage.DatabasePath != "" {
		dbPath = process.Storage.DatabasePath
	}
	if dbPath == "" {
		dbPath = filepath.Join(frameDir, "cvcounter.db")
	}

	db, err := database.New(dbPath, cfg.DB.Prefix)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to run database migrations: %v", err)
	}
	logger.Printf("database ready at %s", dbPath)

	if cfg.General.FFmpegPath == "" {
		cfg.General.FFmpegPath = process.Storage.FFmpegPath
	}

	srv := httpapi.NewServer(cfg, configPath, db, logger)

	host := *hostF
	if host == "" {
		host = cfg.Server.Host
	}
	if host == "" {
		host = process.Server.Host
	}
	port := *portF
	if port == "" {
		port = cfg.Server.Port
	}
	if port == "" {
		port = process.Server.Port
	}
	addr := fmt.Sprintf("%s:%s", host, port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			logger.Printf("HTTP server listening on %q (debug=%v)", addr, *debugF)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %q", addr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("failed to shutdown cleanly: %v", err)
		}
	}()

	logger.Printf("exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	logger.Println("exited")
}
