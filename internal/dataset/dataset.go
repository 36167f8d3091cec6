// Package dataset implements DatasetSampler: persisting frames selected for
// training-data collection under a sanitized, per-second timestamped
// filename. Two samples for the same location within one second share a
// name, and the later one replaces the earlier.
package dataset

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var disallowed = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize strips every character outside [A-Za-z0-9_-] from s.
func Sanitize(s string) string {
	return disallowed.ReplaceAllString(s, "")
}

// Sampler writes sampled frames into a single output directory.
type Sampler struct {
	dir string
}

// New constructs a Sampler writing under dir. The directory is created
// lazily on first Sample call.
func New(dir string) *Sampler {
	return &Sampler{dir: dir}
}

// Sample writes frame (JPEG-encoded by the capture pipeline at whatever
// quality the video source used) as "<sanitized_location>_<unix_seconds>.jpg"
// under the sampler's directory, re-encoding at quality 100 so a sampled
// training frame never carries the capture pipeline's lower-quality
// encoding.
func (s *Sampler) Sample(location string, frame []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("dataset: create dir: %w", err)
	}
	out, err := reencodeAtMaxQuality(frame)
	if err != nil {
		out = frame
	}
	name := fmt.Sprintf("%s_%d.jpg", Sanitize(location), time.Now().Unix())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("dataset: write frame: %w", err)
	}
	return nil
}

// reencodeAtMaxQuality decodes frame as JPEG and re-encodes it at quality
// 100. Decode failures fall back to the original bytes in Sample rather
// than failing the sample outright; a malformed frame is a detector/source
// problem, not something dataset should mask with an error.
func reencodeAtMaxQuality(frame []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("dataset: decode frame: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		return nil, fmt.Errorf("dataset: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
