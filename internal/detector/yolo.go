package detector

import (
	"context"
	"net/http"
)

// YOLOAdapter is the YOLO-family Detector variant: a single-stage detector
// served over HTTP, wrapping the shared httpDetector the same way this
// codebase's own YOLO adapter wraps its GPU detector client.
type YOLOAdapter struct {
	*httpDetector
}

// NewYOLOAdapter loads a YOLO-family detector against weights at
// weightsPath, served by the model server at endpoint.
func NewYOLOAdapter(weightsPath, endpoint, device string, client *http.Client) (*YOLOAdapter, error) {
	d, err := loadHTTPDetector(httpBackendConfig{
		Name:        "yolo",
		Family:      FamilyYOLO,
		Endpoint:    endpoint,
		WeightsPath: weightsPath,
		Device:      device,
		Client:      client,
	})
	if err != nil {
		return nil, err
	}
	return &YOLOAdapter{httpDetector: d}, nil
}

func (a *YOLOAdapter) Detect(ctx context.Context, frame []byte, opts Options) ([]Detection, error) {
	if opts.Device == "" {
		opts.Device = a.cfg.Device
	}
	return a.detect(ctx, frame, opts)
}

var _ Detector = (*YOLOAdapter)(nil)
