// Package media validates that generated stills and clips actually came back
// in the vertical frame the prompts demanded. The remote models occasionally
// ignore the aspect-ratio config, so every artifact is checked client-side.
package media

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	// TargetVerticalRatio is width/height for a 9:16 portrait frame (0.5625).
	TargetVerticalRatio = 9.0 / 16.0

	// ImageTolerance allows slight variance in generated stills.
	ImageTolerance = 0.05

	// VideoTolerance is tighter: video frame dimensions are exact.
	VideoTolerance = 0.02
)

// MatchesRatio reports whether width/height is within tolerance of target.
// Non-positive dimensions never match.
func MatchesRatio(width, height int, target, tolerance float64) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	ratio := float64(width) / float64(height)
	diff := ratio - target
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}

// ImageIsVertical decodes only the image header to obtain pixel dimensions and
// checks them against the 9:16 target. Undecodable data is reported as not
// vertical, never as an error.
func ImageIsVertical(data []byte) bool {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return MatchesRatio(cfg.Width, cfg.Height, TargetVerticalRatio, ImageTolerance)
}

// VideoFrameIsVertical checks probed frame dimensions against the 9:16 target
// with the tighter video tolerance. Callers that fail to probe dimensions
// should pass zeros, which always report not vertical.
func VideoFrameIsVertical(width, height int) bool {
	return MatchesRatio(width, height, TargetVerticalRatio, VideoTolerance)
}
