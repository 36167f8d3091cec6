package videosource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStreamClassification(t *testing.T) {
	cases := map[string]bool{
		"rtsp://cam.local/stream":  true,
		"rtmp://cam.local/stream":  true,
		"http://cam.local/1.mjpg":  true,
		"https://cam.local/1.mjpg": true,
		"tcp://cam.local:9000":     true,
		"/dev/video0":              false,
		"./fixtures/sample.mp4":    false,
		"sample.mp4":               false,
	}
	for uri, want := range cases {
		assert.Equal(t, want, IsStream(uri), uri)
	}
}

func TestExtractJPEGFrameSingle(t *testing.T) {
	buf := []byte{0x00, 0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9, 0x00}
	frame := extractJPEGFrame(&buf)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, frame)
	assert.Equal(t, []byte{0x00}, buf)
}

func TestExtractJPEGFrameIncomplete(t *testing.T) {
	buf := []byte{0xFF, 0xD8, 0x01, 0x02}
	frame := extractJPEGFrame(&buf)
	assert.Nil(t, frame)
}

func TestFfmpegArgsSelectsByScheme(t *testing.T) {
	rtspArgs := ffmpegArgs("rtsp://cam/1", 10)
	assert.Contains(t, rtspArgs, "-rtsp_transport")

	fileArgs := ffmpegArgs("clip.mp4", 0)
	assert.NotContains(t, fileArgs, "-rtsp_transport")
	assert.Contains(t, fileArgs, "clip.mp4")
}

func TestNewClassifiesSource(t *testing.T) {
	s := New("rtsp://cam/1", 10)
	assert.True(t, s.IsStream())

	f := New("clip.mp4", 10)
	assert.False(t, f.IsStream())
}
