package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBackend(t *testing.T, items []detectResponseItem) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	}))
}

func TestNewYOLOAdapterRequiresWeights(t *testing.T) {
	_, err := NewYOLOAdapter("", "http://example.invalid", "cpu", nil)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewYOLOAdapterRequiresEndpoint(t *testing.T) {
	_, err := NewYOLOAdapter("weights.pt", "", "cpu", nil)
	assert.ErrorIs(t, err, ErrModelLoadFailed)
}

func TestYOLODetectFiltersByClass(t *testing.T) {
	srv := fakeBackend(t, []detectResponseItem{
		{X1: 1, Y1: 1, X2: 2, Y2: 2, Class: "person", Confidence: 0.9},
		{X1: 3, Y1: 3, X2: 4, Y2: 4, Class: "car", Confidence: 0.8},
	})
	defer srv.Close()

	a, err := NewYOLOAdapter("weights.pt", srv.URL, "cpu", srv.Client())
	require.NoError(t, err)
	defer a.Close()

	dets, err := a.Detect(context.Background(), []byte("frame"), Options{ClassesAllow: []string{"person"}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Class)
}

func TestDetectOnClosedDetectorFails(t *testing.T) {
	srv := fakeBackend(t, nil)
	defer srv.Close()

	a, err := NewSSDAdapter("weights.pb", srv.URL, "cpu", srv.Client())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Detect(context.Background(), []byte("frame"), Options{})
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestFamiliesAreDistinctCapabilities(t *testing.T) {
	srv := fakeBackend(t, nil)
	defer srv.Close()

	yolo, err := NewYOLOAdapter("w.pt", srv.URL, "cpu", srv.Client())
	require.NoError(t, err)
	ssd, err := NewSSDAdapter("w.pb", srv.URL, "cpu", srv.Client())
	require.NoError(t, err)

	var _ Detector = yolo
	var _ Detector = ssd
	assert.Equal(t, FamilyYOLO, yolo.Family())
	assert.Equal(t, FamilySSD, ssd.Family())
}
