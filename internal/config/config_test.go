package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "detections": {
    "dock-1": {
      "source_uri": "rtsp://dock-1",
      "confidence": 0.6,
      "counting_area": [[0,0],[0,100],[100,100],[100,0]]
    }
  },
  "detection_default": {
    "target_fps": 10,
    "confidence": 0.25,
    "iou": 0.45,
    "device": "cpu",
    "sample_probability": 0.1
  },
  "users": {
    "admin": {"password_hash": "$2a$10$abc"}
  },
  "server": {"host": "0.0.0.0", "port": "8080"},
  "general": {"frame_dir": "/data/frames"},
  "db": {"path": "/data/counter.db"}
}`

func writeSampleDoc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	return path
}

func TestLoadParsesDocument(t *testing.T) {
	doc, err := Load(writeSampleDoc(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", doc.Server.Host)
	assert.Equal(t, "8080", doc.Server.Port)
	assert.Equal(t, "/data/frames", doc.General.FrameDir)
	assert.Equal(t, "/data/counter.db", doc.DB.Path)
	require.Contains(t, doc.Users, "admin")
	assert.Equal(t, "$2a$10$abc", doc.Users["admin"].PasswordHash)
}

func TestEffectiveMergesOverDefault(t *testing.T) {
	doc, err := Load(writeSampleDoc(t))
	require.NoError(t, err)

	eff := doc.Effective("dock-1")
	assert.Equal(t, "rtsp://dock-1", eff.SourceURI, "per-location field overrides default")
	assert.EqualValues(t, 0.6, eff.Confidence, "per-location field overrides default")
	assert.Equal(t, 10, eff.TargetFPS, "missing per-location field falls back to default")
	assert.EqualValues(t, 0.45, eff.IOU, "missing per-location field falls back to default")
	assert.Equal(t, "cpu", eff.Device)
	assert.Len(t, eff.CountingArea, 4)
}

func TestEffectiveUnknownLocationReturnsDefault(t *testing.T) {
	doc, err := Load(writeSampleDoc(t))
	require.NoError(t, err)

	eff := doc.Effective("unknown-dock")
	assert.Equal(t, doc.DetectionDefault, eff)
}

func TestZeroStartTotalCountClearsOnlyThatField(t *testing.T) {
	doc, err := Load(writeSampleDoc(t))
	require.NoError(t, err)

	doc.Detections["dock-1"] = DetectionSettings{SourceURI: "rtsp://dock-1", StartTotalCount: 7}
	doc.ZeroStartTotalCount("dock-1")

	loc := doc.Detections["dock-1"]
	assert.Zero(t, loc.StartTotalCount)
	assert.Equal(t, "rtsp://dock-1", loc.SourceURI, "unrelated fields survive the zeroing")
}

func TestSaveRoundTrips(t *testing.T) {
	doc, err := Load(writeSampleDoc(t))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, doc.Save(out))

	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, doc.Server, reloaded.Server)
	assert.Equal(t, doc.Effective("dock-1"), reloaded.Effective("dock-1"))
}

func TestPolygonConvertsCountingArea(t *testing.T) {
	s := DetectionSettings{CountingArea: [][2]int{{0, 0}, {10, 0}, {10, 10}}}
	pts := s.Polygon()
	require.Len(t, pts, 3)
	assert.Equal(t, Point{X: 10, Y: 10}, pts[2])
}
