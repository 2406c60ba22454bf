package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Stitches the five generated clips into the final reel with the concat
// demuxer and stream copy — fast and lossless, but it requires every clip to
// share codec parameters. The video model currently emits uniform MP4s; if
// that ever changes the concat will fail and the caller degrades to serving
// the individual clips.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir string

	// Command seams, overridable in tests.
	run       func(ctx context.Context, name string, args ...string) error
	runOutput func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewFFmpegService(tempDir string) *FFmpegService {
	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{
		tempDir: tempDir,
		run: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
		runOutput: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// StitchClips materializes each clip as a numbered file, writes the concat
// manifest listing them in input order, and runs a single stream-copy
// concatenation. Returns the stitched file's bytes.
func (s *FFmpegService) StitchClips(ctx context.Context, clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("no clips to stitch")
	}

	var clipPaths []string
	for i, data := range clips {
		path := s.CreateTempFile(fmt.Sprintf("clip%d.mp4", i))
		if err := os.WriteFile(path, data, 0644); err != nil {
			s.Cleanup(clipPaths...)
			return nil, fmt.Errorf("failed to write clip %d: %w", i, err)
		}
		clipPaths = append(clipPaths, path)
	}
	defer s.Cleanup(clipPaths...)

	outputPath := s.CreateTempFile("final.mp4")
	defer s.Cleanup(outputPath)

	if err := s.concatenate(ctx, clipPaths, outputPath); err != nil {
		return nil, fmt.Errorf("stitching failed: %w", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stitching failed: could not read output: %w", err)
	}

	return data, nil
}

func (s *FFmpegService) concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	// Concat manifest, one line per input in order
	listPath := filepath.Join(s.tempDir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy", // Stream copy, no re-encoding
		"-y",
		outputPath,
	}

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}

	return nil
}

// ProbeVideoDimensions returns the pixel width/height of the first video
// stream using ffprobe, without rendering any frames.
func (s *FFmpegService) ProbeVideoDimensions(ctx context.Context, videoPath string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		videoPath,
	}

	output, err := s.runOutput(ctx, "ffprobe", args...)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var width, height int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("failed to parse dimensions %q: %w", strings.TrimSpace(string(output)), err)
	}

	return width, height, nil
}

// CreateTempFile creates a path for a temporary file in the service's temp directory
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}
