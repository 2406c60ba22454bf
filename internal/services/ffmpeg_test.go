package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRun captures the ffmpeg invocation, snapshots the concat manifest
// (which is deleted before StitchClips returns), and writes the output file.
type fakeRun struct {
	name     string
	args     []string
	manifest string
	err      error
}

func (f *fakeRun) run(ctx context.Context, name string, args ...string) error {
	f.name = name
	f.args = args
	if f.err != nil {
		return f.err
	}
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return err
			}
			f.manifest = string(data)
		}
	}
	// Last arg is the output path
	return os.WriteFile(args[len(args)-1], []byte("stitched"), 0644)
}

func newTestFFmpeg(t *testing.T) (*FFmpegService, *fakeRun) {
	t.Helper()
	svc := NewFFmpegService(t.TempDir())
	fake := &fakeRun{}
	svc.run = fake.run
	return svc, fake
}

func TestStitchClipsStreamCopyConcat(t *testing.T) {
	svc, fake := newTestFFmpeg(t)

	clips := [][]byte{[]byte("clip-a"), []byte("clip-b"), []byte("clip-c")}
	out, err := svc.StitchClips(context.Background(), clips)
	require.NoError(t, err)
	assert.Equal(t, []byte("stitched"), out)

	assert.Equal(t, "ffmpeg", fake.name)
	joined := strings.Join(fake.args, " ")
	assert.Contains(t, joined, "-f concat")
	assert.Contains(t, joined, "-safe 0")
	assert.Contains(t, joined, "-c copy")
	assert.NotContains(t, joined, "-c:v", "stream copy must not re-encode")
}

func TestStitchClipsManifestOrder(t *testing.T) {
	svc, fake := newTestFFmpeg(t)

	clips := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	_, err := svc.StitchClips(context.Background(), clips)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(fake.manifest), "\n")
	require.Len(t, lines, 5)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, "file '"), "line %d: %q", i, line)
		assert.Contains(t, line, fmt.Sprintf("clip%d.mp4", i), "manifest order must match input order")
	}
}

func TestStitchClipsFailure(t *testing.T) {
	svc, fake := newTestFFmpeg(t)
	fake.err = errors.New("codec parameters differ")

	_, err := svc.StitchClips(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stitching failed")
}

func TestStitchClipsEmptyInput(t *testing.T) {
	svc, _ := newTestFFmpeg(t)
	_, err := svc.StitchClips(context.Background(), nil)
	require.Error(t, err)
}

func TestProbeVideoDimensions(t *testing.T) {
	svc := NewFFmpegService(t.TempDir())

	var probedName string
	var probedArgs []string
	svc.runOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		probedName = name
		probedArgs = args
		return []byte("720x1280\n"), nil
	}

	w, h, err := svc.ProbeVideoDimensions(context.Background(), "/tmp/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 720, w)
	assert.Equal(t, 1280, h)
	assert.Equal(t, "ffprobe", probedName)
	assert.Contains(t, strings.Join(probedArgs, " "), "stream=width,height")
}

func TestProbeVideoDimensionsBadOutput(t *testing.T) {
	svc := NewFFmpegService(t.TempDir())
	svc.runOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("N/A"), nil
	}

	_, _, err := svc.ProbeVideoDimensions(context.Background(), "/tmp/clip.mp4")
	require.Error(t, err)
}
