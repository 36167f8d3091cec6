package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"cvcounter/internal/auth"
	"cvcounter/internal/config"
	"cvcounter/internal/database"
	"cvcounter/internal/dataset"
	"cvcounter/internal/detector"
	"cvcounter/internal/engine"
	"cvcounter/internal/eventbus"
	"cvcounter/internal/frameserver"
	"cvcounter/internal/geo"
	"cvcounter/internal/middleware"
	"cvcounter/internal/tracker"
	"cvcounter/internal/videosource"
	"cvcounter/internal/ws"
)

// Server wires an EngineRegistry, SessionStore, EventBus and Authenticator
// into the operator HTTP surface described in the specification's external
// interfaces. It replaces cmd/orbo/http.go's goa-generated mux with a
// hand-routed go-chi one, keeping the same graceful-shutdown shape in the
// caller's main.
type Server struct {
	registry      *engine.Registry
	bus           *eventbus.Bus
	store         *database.Database
	sampler       *dataset.Sampler
	authenticator *auth.Authenticator
	hub           *ws.Hub
	wsHandler     *ws.Handler
	frameHandler  *frameserver.Handler
	logger        *log.Logger

	cfgMu   sync.Mutex
	cfg     *config.Document
	cfgPath string
}

// NewServer constructs a Server. cfgPath is where the configuration
// document is persisted back to after a start_total_count seed is
// consumed.
func NewServer(cfg *config.Document, cfgPath string, store *database.Database, logger *log.Logger) *Server {
	bus := eventbus.New()
	registry := engine.NewRegistry()
	hub := ws.NewHub(logger)

	s := &Server{
		registry:      registry,
		bus:           bus,
		store:         store,
		sampler:       dataset.New(cfg.General.SampleDir),
		authenticator: auth.NewAuthenticator(usersToHashes(cfg.Users)),
		hub:           hub,
		wsHandler:     ws.NewHandler(hub, bus, logger),
		logger:        logger,
		cfg:           cfg,
		cfgPath:       cfgPath,
	}
	s.frameHandler = frameserver.NewHandler(s.lookupEngine, frameserver.Options{})
	return s
}

func usersToHashes(users map[string]config.UserCredential) map[string]string {
	out := make(map[string]string, len(users))
	for name, cred := range users {
		out[name] = cred.PasswordHash
	}
	return out
}

func (s *Server) lookupEngine(location string) (frameserver.Engine, bool) {
	eng := s.registry.Get(location)
	if eng == nil {
		return nil, false
	}
	return eng, true
}

// Router builds the chi mux for the operator HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleDashboard)
	r.Get("/counter/{loc}", s.handleCounterPage)
	r.Get("/counter/{loc}/video", s.handleCounterPage)
	r.Get("/counter/{loc}/text", s.handleCounterTextPage)
	r.Get("/counter_dual/{a}/{b}", s.handleCounterDual)
	r.Get("/counter_get_frames/{loc}", s.handleStream)
	r.Get("/ws/events/{loc}", s.wsHandler.ServeHTTP)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.authenticator))
		r.Post("/save_count/{loc}", s.handleSaveCount)
		r.Get("/reset_count/{loc}", s.handleResetCount)
		r.Post("/reset_count_current/{loc}", s.handleResetCountCurrent)
		r.Get("/save_capture/{loc}", s.handleSaveCapture)
		r.Get("/start_count/{loc}", s.handleStartCount)
		r.Get("/pause_count/{loc}", s.handlePauseCount)
		r.Get("/stop_count/{loc}", s.handleStopCount)
	})

	r.Get("/reports", s.handleReportsIndex)
	r.Get("/reports/{loc}", s.handleReportsLocation)
	r.Get("/reports/{loc}/{id}", s.handleReportByID)

	return r
}

// knownLocation reports whether loc is named in the configuration
// document's detections block.
func (s *Server) knownLocation(loc string) bool {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	_, ok := s.cfg.Detections[loc]
	return ok
}

// ensureEngine ensures a CountingEngine is running for loc, constructing
// it from the configuration document's effective settings on first use.
func (s *Server) ensureEngine(loc string) (*engine.Engine, error) {
	if !s.knownLocation(loc) {
		return nil, fmt.Errorf("unknown location %q", loc)
	}

	return s.registry.Ensure(loc, func() *engine.Engine {
		return s.buildEngine(loc)
	})
}

func (s *Server) buildEngine(loc string) *engine.Engine {
	s.cfgMu.Lock()
	settings := s.cfg.Effective(loc)
	s.cfgMu.Unlock()

	srcOpts := []videosource.Option{videosource.WithLogger(s.logger)}
	if s.cfg.General.FFmpegPath != "" {
		srcOpts = append(srcOpts, videosource.WithFFmpegPath(s.cfg.General.FFmpegPath))
	}
	src := videosource.New(settings.SourceURI, settings.TargetFPS, srcOpts...)
	if err := src.Open(); err != nil {
		s.logger.Printf("counting: %s: open source: %v", loc, err)
	}

	det, err := buildDetector(settings)
	if err != nil {
		s.logger.Printf("counting: %s: build detector: %v", loc, err)
	}

	area := make(geo.Polygon, len(settings.CountingArea))
	for i, p := range settings.CountingArea {
		area[i] = geo.Point{X: p[0], Y: p[1]}
	}

	return engine.New(engine.Config{
		Location: loc,
		Source:   src,
		Detector: det,
		DetectOptions: detector.Options{
			Confidence:   settings.Confidence,
			IOU:          settings.IOU,
			Device:       settings.Device,
			VidStride:    settings.VidStride,
			ClassesAllow: settings.ClassesAllow,
		},
		Tracker:           tracker.New(tracker.DefaultParams()),
		CountingArea:      area,
		Bus:               s.bus,
		Store:             s.store,
		Sampler:           s.sampler,
		SampleProbability: settings.SampleProbability,
		SampleClasses:     settings.SampleClasses,
		Debug:             settings.Debug,
		Logger:            s.logger,
		StartTotalCount:   settings.StartTotalCount,
		OnSeedConsumed: func() {
			s.cfgMu.Lock()
			s.cfg.ZeroStartTotalCount(loc)
			path := s.cfgPath
			doc := s.cfg
			s.cfgMu.Unlock()
			if path != "" {
				if err := doc.Save(path); err != nil {
					s.logger.Printf("counting: %s: persist seed consumption: %v", loc, err)
				}
			}
		},
	})
}

func buildDetector(settings config.DetectionSettings) (detector.Detector, error) {
	family := "yolo"
	if len(settings.Detectors) > 0 {
		family = settings.Detectors[0]
	}
	switch family {
	case "ssd":
		return detector.NewSSDAdapter(settings.ModelWeights, settings.ModelEndpoint, settings.Device, http.DefaultClient)
	default:
		return detector.NewYOLOAdapter(settings.ModelWeights, settings.ModelEndpoint, settings.Device, http.DefaultClient)
	}
}
