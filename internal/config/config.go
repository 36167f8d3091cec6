// Package config implements the configuration adapter: loading the single
// JSON configuration document described in the specification's external
// interfaces, merging per-location detection settings over defaults, and
// producing an immutable snapshot for engine construction. The flag+env
// loading shape is carried over from this codebase's own main entrypoint
// (cmd/orbo/main.go), generalized from scattered os.Getenv calls into one
// typed document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DetectionSettings is the per-location (or default) detection
// configuration block.
type DetectionSettings struct {
	SourceURI         string     `json:"source_uri"`
	TargetFPS         int        `json:"target_fps"`
	CountingArea      [][2]int   `json:"counting_area"`
	Detectors         []string   `json:"detectors"`
	ModelEndpoint     string     `json:"model_endpoint"`
	ModelWeights      string     `json:"model_weights"`
	Confidence        float32    `json:"confidence"`
	IOU               float32    `json:"iou"`
	Device            string     `json:"device"`
	VidStride         int        `json:"vid_stride"`
	ClassesAllow      []string   `json:"classes_allow"`
	Debug             bool       `json:"debug"`
	SampleProbability float64    `json:"sample_probability"`
	SampleClasses     []string   `json:"sample_classes"`
	StartTotalCount   int        `json:"start_total_count"`
	VideoScale        int        `json:"video_scale"`
	VideoQuality      int        `json:"video_quality"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// GeneralConfig holds process-wide paths and toggles outside any one
// location's detection settings.
type GeneralConfig struct {
	FrameDir   string `json:"frame_dir"`
	SampleDir  string `json:"sample_dir"`
	FFmpegPath string `json:"ffmpeg_path"`
}

// DBConfig configures the session store backend.
type DBConfig struct {
	Path   string `json:"path"`
	Prefix string `json:"prefix"`
}

// UserCredential is one operator login; PasswordHash is a bcrypt hash,
// never a plaintext password.
type UserCredential struct {
	PasswordHash string `json:"password_hash"`
}

// Document is the full configuration file: per-location detection
// settings, global defaults, operator accounts, and process settings.
type Document struct {
	Detections       map[string]DetectionSettings `json:"detections"`
	DetectionDefault DetectionSettings            `json:"detection_default"`
	Users            map[string]UserCredential    `json:"users"`
	Server           ServerConfig                 `json:"server"`
	General          GeneralConfig                `json:"general"`
	DB               DBConfig                     `json:"db"`
	Form             map[string]interface{}        `json:"form"`
}

// Load reads and parses the configuration document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Detections == nil {
		doc.Detections = make(map[string]DetectionSettings)
	}
	return &doc, nil
}

// Save writes the document back to path as indented JSON.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Effective merges a location's detection settings over
// detection_default: any zero-valued field in the per-location block
// falls back to the default's value for that field.
func (d *Document) Effective(location string) DetectionSettings {
	def := d.DetectionDefault
	loc, ok := d.Detections[location]
	if !ok {
		return def
	}

	eff := def
	if loc.SourceURI != "" {
		eff.SourceURI = loc.SourceURI
	}
	if loc.TargetFPS != 0 {
		eff.TargetFPS = loc.TargetFPS
	}
	if len(loc.CountingArea) > 0 {
		eff.CountingArea = loc.CountingArea
	}
	if len(loc.Detectors) > 0 {
		eff.Detectors = loc.Detectors
	}
	if loc.ModelEndpoint != "" {
		eff.ModelEndpoint = loc.ModelEndpoint
	}
	if loc.ModelWeights != "" {
		eff.ModelWeights = loc.ModelWeights
	}
	if loc.Confidence != 0 {
		eff.Confidence = loc.Confidence
	}
	if loc.IOU != 0 {
		eff.IOU = loc.IOU
	}
	if loc.Device != "" {
		eff.Device = loc.Device
	}
	if loc.VidStride != 0 {
		eff.VidStride = loc.VidStride
	}
	if loc.ClassesAllow != nil {
		eff.ClassesAllow = loc.ClassesAllow
	}
	eff.Debug = loc.Debug || def.Debug
	if loc.SampleProbability != 0 {
		eff.SampleProbability = loc.SampleProbability
	}
	if loc.SampleClasses != nil {
		eff.SampleClasses = loc.SampleClasses
	}
	if loc.StartTotalCount != 0 {
		eff.StartTotalCount = loc.StartTotalCount
	}
	if loc.VideoScale != 0 {
		eff.VideoScale = loc.VideoScale
	}
	if loc.VideoQuality != 0 {
		eff.VideoQuality = loc.VideoQuality
	}
	return eff
}

// ZeroStartTotalCount clears a location's start_total_count after the
// engine has consumed it once, so a restart does not re-seed synthetic
// tracks.
func (d *Document) ZeroStartTotalCount(location string) {
	loc := d.Detections[location]
	loc.StartTotalCount = 0
	d.Detections[location] = loc
}

// Polygon converts a settings block's integer-pair counting area into the
// geo package's vertex list.
func (s DetectionSettings) Polygon() []Point {
	pts := make([]Point, len(s.CountingArea))
	for i, p := range s.CountingArea {
		pts[i] = Point{X: p[0], Y: p[1]}
	}
	return pts
}

// Point mirrors geo.Point to avoid importing internal/geo from the config
// package; callers build a geo.Polygon from it point by point.
type Point struct {
	X int
	Y int
}
