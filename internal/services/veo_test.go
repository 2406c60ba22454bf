package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
)

type fakeClipRun struct {
	calls   int
	results [][]byte
	errs    []error
}

func (f *fakeClipRun) run(_ context.Context, _ string, _ ImageAsset, _ []*genai.VideoGenerationReferenceImage, _ string) ([]byte, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return f.results[idx], nil
}

func newTestVeoService(fake *fakeClipRun) *VeoService {
	s := NewVeoService("test-key", "", nil)
	s.attemptPause = time.Millisecond
	s.runOnce = fake.run
	return s
}

func TestGenerateClipFirstAttemptSucceeds(t *testing.T) {
	fake := &fakeClipRun{results: [][]byte{[]byte("clip-bytes")}}
	s := newTestVeoService(fake)

	got, err := s.GenerateClip(context.Background(), "prompt", ImageAsset{Data: []byte("kf")}, models.CharacterBible{}, "HOOK")
	require.NoError(t, err)
	assert.Equal(t, []byte("clip-bytes"), got)
	assert.Equal(t, 1, fake.calls)
}

func TestGenerateClipStopsAfterTwoAttempts(t *testing.T) {
	bad := faults.New(faults.KindValidationFailed, "generated video failed 9:16 aspect ratio validation")
	fake := &fakeClipRun{errs: []error{bad, bad, bad}}
	s := newTestVeoService(fake)

	_, err := s.GenerateClip(context.Background(), "prompt", ImageAsset{Data: []byte("kf")}, models.CharacterBible{}, "ACTION")
	require.Error(t, err)
	assert.Equal(t, faults.KindValidationFailed, faults.KindOf(err))
	assert.Equal(t, 2, fake.calls)
}

func TestGenerateClipSecondAttemptRecovers(t *testing.T) {
	fake := &fakeClipRun{
		errs:    []error{faults.New(faults.KindValidationFailed, "wrong frame"), nil},
		results: [][]byte{nil, []byte("clip-bytes")},
	}
	s := newTestVeoService(fake)

	got, err := s.GenerateClip(context.Background(), "prompt", ImageAsset{Data: []byte("kf")}, models.CharacterBible{}, "REPLAY")
	require.NoError(t, err)
	assert.Equal(t, []byte("clip-bytes"), got)
	assert.Equal(t, 2, fake.calls)
}

func TestGenerateClipRejectsBadAnchor(t *testing.T) {
	fake := &fakeClipRun{}
	s := newTestVeoService(fake)

	bible := models.CharacterBible{AnchorImages: []models.AnchorImage{
		{ID: "a1", Base64Data: "!!!not-base64!!!", MimeType: "image/png"},
	}}
	_, err := s.GenerateClip(context.Background(), "prompt", ImageAsset{Data: []byte("kf")}, bible, "SETUP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid base64")
	assert.Equal(t, 0, fake.calls)
}

func TestBuildReferenceImagesCapsAtThree(t *testing.T) {
	anchors := make([]models.AnchorImage, 4)
	for i := range anchors {
		anchors[i] = models.AnchorImage{ID: fmt.Sprintf("a%d", i), Base64Data: "aGk=", MimeType: "image/png"}
	}

	refs, err := buildReferenceImages(anchors)
	require.NoError(t, err)
	assert.Len(t, refs, 3)
	assert.Equal(t, genai.VideoGenerationReferenceTypeAsset, refs[0].ReferenceType)
}

func TestAwaitOperationTimesOut(t *testing.T) {
	s := NewVeoService("test-key", "", nil)
	s.pollInterval = time.Millisecond
	s.maxPollDuration = 15 * time.Millisecond

	polls := 0
	_, err := s.awaitOperation(context.Background(), "ACTION", &genai.GenerateVideosOperation{Name: "op-1"},
		func(_ context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
			polls++
			return op, nil
		})
	require.Error(t, err)
	assert.Equal(t, faults.KindTimedOut, faults.KindOf(err))
	assert.Greater(t, polls, 0)
}

func TestAwaitOperationReturnsCompleted(t *testing.T) {
	s := NewVeoService("test-key", "", nil)
	s.pollInterval = time.Millisecond

	polls := 0
	got, err := s.awaitOperation(context.Background(), "PUNCHLINE", &genai.GenerateVideosOperation{Name: "op-1"},
		func(_ context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
			polls++
			if polls >= 2 {
				return &genai.GenerateVideosOperation{Name: op.Name, Done: true}, nil
			}
			return op, nil
		})
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, 2, polls)
}
