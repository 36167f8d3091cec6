// Package frameserver implements FrameServer: an on-demand MJPEG
// pull-stream over a CountingEngine's latest annotated frame. The
// multipart framing (the literal "frame" boundary, per-part headers, and
// flush-per-frame) is carried over from this codebase's own MJPEG stream
// handler (internal/stream/mjpeg.go), generalized from a push model fed by
// a capture goroutine to a pull model that polls one engine's latest
// frame.
package frameserver

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

const pollInterval = 10 * time.Millisecond

// Engine is the subset of engine.Engine a FrameServer depends on.
type Engine interface {
	SetViewerAttached(bool)
	LatestFrame() []byte
}

// Options configure one streamed viewer session.
type Options struct {
	ScalePercent int // video_scale; <=0 or 100 means no resize
	Quality      int // video_quality; JPEG encode quality, 1-100
}

// Handler serves MJPEG multipart streams for engines resolved by a
// caller-supplied lookup function, keeping this package independent of any
// particular registry type.
type Handler struct {
	lookup func(location string) (Engine, bool)
	opts   Options
}

// NewHandler builds a Handler. lookup resolves a location to its Engine;
// it should return (nil, false) for an unknown location.
func NewHandler(lookup func(location string) (Engine, bool), opts Options) *Handler {
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	return &Handler{lookup: lookup, opts: opts}
}

// ServeHTTP streams frames for the location named by the last path
// segment, e.g. /video/stream/{location}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	location := parts[len(parts)-1]
	if location == "" {
		http.Error(w, "location required", http.StatusBadRequest)
		return
	}

	eng, ok := h.lookup(location)
	if !ok {
		http.Error(w, fmt.Sprintf("no engine for location %s", location), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	eng.SetViewerAttached(true)
	defer eng.SetViewerAttached(false)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := eng.LatestFrame()
			if frame == nil {
				continue
			}
			encoded, err := h.prepare(frame)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "\r\n--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n\r\n")
			w.Write(encoded)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}

// prepare resizes frame to the configured scale percent and re-encodes at
// the configured JPEG quality. A scale of 100 (or unset) skips the
// decode/resize round-trip.
func (h *Handler) prepare(frame []byte) ([]byte, error) {
	if h.opts.ScalePercent <= 0 || h.opts.ScalePercent == 100 {
		return frame, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return frame, nil
	}

	bounds := img.Bounds()
	newW := bounds.Dx() * h.opts.ScalePercent / 100
	newH := bounds.Dy() * h.opts.ScalePercent / 100
	if newW <= 0 || newH <= 0 {
		return frame, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: h.opts.Quality}); err != nil {
		return frame, nil
	}
	return buf.Bytes(), nil
}
