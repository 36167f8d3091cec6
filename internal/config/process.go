package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ProcessDefaults holds deployment-level settings that stay fixed for a
// given host regardless of which detections are configured: where ffmpeg
// lives, where frames and dataset samples land on disk, and the default
// listen address. These are distinct from the per-location JSON document
// (detections, users, server, general, db) loaded by Load: that document
// describes WHAT to run, this file describes WHERE the process runs.
type ProcessDefaults struct {
	Server  ProcessServerDefaults  `toml:"server"`
	Storage ProcessStorageDefaults `toml:"storage"`
}

// ProcessServerDefaults holds the HTTP listener defaults.
type ProcessServerDefaults struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// ProcessStorageDefaults holds filesystem locations for runtime state.
type ProcessStorageDefaults struct {
	FrameDir     string `toml:"frame_dir"`
	SampleDir    string `toml:"sample_dir"`
	DatabasePath string `toml:"database_path"`
	FFmpegPath   string `toml:"ffmpeg_path"`
}

// DefaultProcessDefaults returns the built-in fallback used when no
// deployment file is present.
func DefaultProcessDefaults() *ProcessDefaults {
	return &ProcessDefaults{
		Server: ProcessServerDefaults{
			Host: "0.0.0.0",
			Port: "8080",
		},
		Storage: ProcessStorageDefaults{
			FrameDir:   "/app/frames",
			FFmpegPath: "ffmpeg",
		},
	}
}

// LoadProcessDefaults reads a TOML deployment file. A missing path returns
// the built-in defaults rather than an error, since this file is optional:
// a deployment can run entirely off the JSON document and CLI flags.
func LoadProcessDefaults(path string) (*ProcessDefaults, error) {
	cfg := DefaultProcessDefaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading process config %q: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing process config %q: %w", path, err)
	}

	return cfg, nil
}
