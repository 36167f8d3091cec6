package engine

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcounter/internal/geo"
	"cvcounter/internal/tracker"
)

func sampleJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestAnnotateFillsCountingAreaAndDrawsTracks(t *testing.T) {
	e := &Engine{area: geo.Polygon{{X: 0, Y: 0}, {X: 0, Y: 20}, {X: 20, Y: 20}, {X: 20, Y: 0}}}
	e.trackedIDs = map[int]bool{1: true}

	frame := sampleJPEG(t, 40, 40)
	annotated := e.annotate(frame, []tracker.Track{{X1: 5, Y1: 5, X2: 15, Y2: 15, ID: 1}})

	assert.NotEqual(t, frame, annotated)
	_, err := jpeg.Decode(bytes.NewReader(annotated))
	require.NoError(t, err)
}

func TestOverlayFPSProducesValidJPEG(t *testing.T) {
	e := &Engine{}
	frame := sampleJPEG(t, 80, 40)

	annotated := e.overlayFPS(frame, 24.3)
	assert.NotEqual(t, frame, annotated)

	img, err := jpeg.Decode(bytes.NewReader(annotated))
	require.NoError(t, err)
	assert.Equal(t, 80, img.Bounds().Dx())
}
