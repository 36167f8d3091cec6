package detector

import (
	"context"
	"net/http"
)

// SSDAdapter is the SSD-family Detector variant: a two-stage
// region-proposal-free detector, served the same way as YOLOAdapter.
// Kept as a distinct concrete type so the engine's "bind by capability,
// not concrete type" requirement is actually exercised by two different
// implementations rather than one type under two names.
type SSDAdapter struct {
	*httpDetector
}

// NewSSDAdapter loads an SSD-family detector against weights at
// weightsPath, served by the model server at endpoint.
func NewSSDAdapter(weightsPath, endpoint, device string, client *http.Client) (*SSDAdapter, error) {
	d, err := loadHTTPDetector(httpBackendConfig{
		Name:        "ssd",
		Family:      FamilySSD,
		Endpoint:    endpoint,
		WeightsPath: weightsPath,
		Device:      device,
		Client:      client,
	})
	if err != nil {
		return nil, err
	}
	return &SSDAdapter{httpDetector: d}, nil
}

func (a *SSDAdapter) Detect(ctx context.Context, frame []byte, opts Options) ([]Detection, error) {
	if opts.Device == "" {
		opts.Device = a.cfg.Device
	}
	return a.detect(ctx, frame, opts)
}

var _ Detector = (*SSDAdapter)(nil)
