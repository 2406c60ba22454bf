package media

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestMatchesRatio(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		height    int
		tolerance float64
		want      bool
	}{
		{"exact 720p vertical", 720, 1280, ImageTolerance, true},
		{"exact 1080p vertical", 1080, 1920, ImageTolerance, true},
		{"square", 1080, 1080, ImageTolerance, false},
		{"landscape", 1280, 720, ImageTolerance, false},
		{"slightly off within tolerance", 730, 1280, ImageTolerance, true},
		{"800x1200 outside tolerance", 800, 1200, ImageTolerance, false},
		{"zero width", 0, 1280, ImageTolerance, false},
		{"zero height", 720, 0, ImageTolerance, false},
		{"negative dimensions", -720, -1280, ImageTolerance, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchesRatio(tt.width, tt.height, TargetVerticalRatio, tt.tolerance)
			if got != tt.want {
				t.Errorf("MatchesRatio(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestVideoToleranceTighterThanImage(t *testing.T) {
	// 758x1280 (ratio ~0.592) is inside the image tolerance but outside the
	// video tolerance.
	if !MatchesRatio(758, 1280, TargetVerticalRatio, ImageTolerance) {
		t.Error("758x1280 should pass the image tolerance")
	}
	if VideoFrameIsVertical(758, 1280) {
		t.Error("758x1280 should fail the video tolerance")
	}
}

func TestVideoFrameIsVertical(t *testing.T) {
	if !VideoFrameIsVertical(720, 1280) {
		t.Error("720x1280 should be vertical")
	}
	if !VideoFrameIsVertical(1080, 1920) {
		t.Error("1080x1920 should be vertical")
	}
	if VideoFrameIsVertical(1920, 1080) {
		t.Error("1920x1080 should not be vertical")
	}
	if VideoFrameIsVertical(0, 0) {
		t.Error("unprobed dimensions should not be vertical")
	}
}

func TestImageIsVertical(t *testing.T) {
	if !ImageIsVertical(encodePNG(t, 720, 1280)) {
		t.Error("720x1280 png should be vertical")
	}
	if ImageIsVertical(encodePNG(t, 1280, 720)) {
		t.Error("1280x720 png should not be vertical")
	}
	if ImageIsVertical(encodePNG(t, 512, 512)) {
		t.Error("square png should not be vertical")
	}
}

func TestImageIsVerticalUndecodableData(t *testing.T) {
	// Garbage bytes are reported as not vertical, never as a panic or error
	if ImageIsVertical([]byte("not an image")) {
		t.Error("garbage data should not be vertical")
	}
	if ImageIsVertical(nil) {
		t.Error("nil data should not be vertical")
	}
}
