// Package detector defines the object-detector capability the counting
// engine binds against, plus two concrete variants (YOLO-family,
// SSD-family). Both wrap an HTTP inference backend the way this
// codebase's own detector adapters wrap an out-of-process model server,
// rather than linking a native inference runtime into the binary.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors making up the detector error taxonomy. load_model/detect
// failures translate to these and are fatal to the owning engine.
var (
	ErrModelNotFound   = errors.New("detector: model not found")
	ErrModelLoadFailed = errors.New("detector: model load failed")
	ErrModelNotLoaded  = errors.New("detector: model not loaded")
)

// Box is an axis-aligned detection box in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Options parameterize a single Detect call.
type Options struct {
	Confidence   float32
	IOU          float32
	Device       string // "cpu" or "cuda:N"; selects backend at load time
	VidStride    int
	ClassesAllow []string // nil means all configured classes
}

// Detection is one detector output.
type Detection struct {
	Box        Box
	Class      string
	Confidence float32
}

// Detector is the capability the engine binds to. Detect returns boxes and
// confidences already filtered by the detector according to Options; the
// engine never inspects the concrete type, only this interface — the spec
// explicitly requires binding by capability, not concrete type, so the two
// variants below (YOLO, SSD) are interchangeable from the engine's point
// of view.
type Detector interface {
	// Name identifies the backend for logs and metrics.
	Name() string
	// Family reports the detector family this instance belongs to.
	Family() Family
	// Detect runs inference on one JPEG-encoded frame.
	Detect(ctx context.Context, frame []byte, opts Options) ([]Detection, error)
	// Close releases backend resources.
	Close() error
}

// Family distinguishes the two polymorphic variants the specification
// names; it is informational only — the engine dispatches purely through
// the Detector interface.
type Family string

const (
	FamilyYOLO Family = "yolo"
	FamilySSD  Family = "ssd"
)

// httpBackendConfig configures the shared HTTP inference client used by
// both families below.
type httpBackendConfig struct {
	Name        string
	Family      Family
	Endpoint    string // inference URL, e.g. http://localhost:8090/detect
	WeightsPath string
	Device      string
	Client      *http.Client
}

// httpDetector is the common implementation shared by the YOLO and SSD
// adapters: both talk to an out-of-process model server over HTTP and
// differ only in name/family and the weights they were loaded with.
type httpDetector struct {
	cfg    httpBackendConfig
	loaded bool
}

// loadHTTPDetector checks that the configured weights path and inference
// endpoint are non-empty, mirroring load_model's ModelNotFound /
// ModelLoadFailed split. It does not contact the backend.
func loadHTTPDetector(cfg httpBackendConfig) (*httpDetector, error) {
	if cfg.WeightsPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.Name)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s: no inference endpoint configured", ErrModelLoadFailed, cfg.Name)
	}
	return &httpDetector{cfg: cfg, loaded: true}, nil
}

func (d *httpDetector) Name() string   { return d.cfg.Name }
func (d *httpDetector) Family() Family { return d.cfg.Family }
func (d *httpDetector) Close() error   { d.loaded = false; return nil }

type detectRequest struct {
	Confidence float32  `json:"confidence"`
	IOU        float32  `json:"iou"`
	Device     string   `json:"device"`
	VidStride  int      `json:"vid_stride"`
	Classes    []string `json:"classes_allow,omitempty"`
}

type detectResponseItem struct {
	X1, Y1, X2, Y2 float32
	Class          string
	Confidence     float32
}

func (d *httpDetector) detect(ctx context.Context, frame []byte, opts Options) ([]Detection, error) {
	if !d.loaded {
		return nil, ErrModelNotLoaded
	}

	req := detectRequest{
		Confidence: opts.Confidence,
		IOU:        opts.IOU,
		Device:     opts.Device,
		VidStride:  opts.VidStride,
		Classes:    opts.ClassesAllow,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("detector %s: encode request: %w", d.cfg.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detector %s: build request: %w", d.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Frame-Length", fmt.Sprintf("%d", len(frame)))

	resp, err := d.cfg.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detector %s: inference request failed: %w", d.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector %s: inference backend returned %d", d.cfg.Name, resp.StatusCode)
	}

	var items []detectResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("detector %s: decode response: %w", d.cfg.Name, err)
	}

	out := make([]Detection, 0, len(items))
	for _, it := range items {
		if !classAllowed(it.Class, opts.ClassesAllow) {
			continue
		}
		out = append(out, Detection{
			Box:        Box{it.X1, it.Y1, it.X2, it.Y2},
			Class:      it.Class,
			Confidence: it.Confidence,
		})
	}
	return out, nil
}

func classAllowed(class string, allow []string) bool {
	if allow == nil {
		return true
	}
	for _, c := range allow {
		if c == class {
			return true
		}
	}
	return false
}
