package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/media"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/retry"
)

// ---------------------------------------------------------------------------
// Veo Clip Generation
// Animates a keyframe into a short vertical clip. The keyframe is the first
// frame; anchor images ride along as asset references when the service
// accepts them. The async operation is polled until done or timed out, and
// the downloaded clip is re-validated for 9:16 before it is accepted.
// ---------------------------------------------------------------------------

const (
	veoPollInterval    = 8 * time.Second
	veoMaxPollDuration = 8 * time.Minute // Wall-clock ceiling for a single clip

	// maxClipAttempts bounds full regenerations when the clip comes back
	// in the wrong frame. Regenerate, not re-download: the bytes are final.
	maxClipAttempts  = 2
	clipAttemptPause = 2 * time.Second

	// Veo accepts at most three asset reference images.
	maxReferenceImages = 3
)

type VeoService struct {
	apiKey string
	model  string
	prober DimensionProber

	pollInterval    time.Duration
	maxPollDuration time.Duration
	attemptPause    time.Duration

	// runOnce performs one full generation cycle; swapped in tests.
	runOnce func(ctx context.Context, prompt string, keyframe ImageAsset, refImages []*genai.VideoGenerationReferenceImage, label string) ([]byte, error)
}

// DimensionProber reports the pixel dimensions of a video file on disk.
type DimensionProber interface {
	ProbeVideoDimensions(ctx context.Context, path string) (width, height int, err error)
	CreateTempFile(filename string) string
	Cleanup(paths ...string)
}

func NewVeoService(apiKey, model string, prober DimensionProber) *VeoService {
	if model == "" {
		model = "veo-3.1-generate-preview"
	}
	s := &VeoService{
		apiKey:          apiKey,
		model:           model,
		prober:          prober,
		pollInterval:    veoPollInterval,
		maxPollDuration: veoMaxPollDuration,
		attemptPause:    clipAttemptPause,
	}
	s.runOnce = s.runLive
	return s
}

// GenerateClip produces the animated clip for one storyboard segment and
// returns the raw MP4 bytes. Bounded to maxClipAttempts full regenerations;
// the triggering error propagates when they are exhausted.
func (s *VeoService) GenerateClip(ctx context.Context, prompt string, keyframe ImageAsset, bible models.CharacterBible, label string) ([]byte, error) {
	refImages, err := buildReferenceImages(bible.AnchorImages)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxClipAttempts; attempt++ {
		videoBytes, err := s.runOnce(ctx, prompt, keyframe, refImages, label)
		if err == nil {
			return videoBytes, nil
		}

		lastErr = err
		if attempt >= maxClipAttempts {
			break
		}

		log.Printf("[Veo] %s attempt %d failed: %v", label, attempt, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("clip generation cancelled: %w", ctx.Err())
		case <-time.After(s.attemptPause):
		}
	}

	return nil, lastErr
}

func (s *VeoService) runLive(ctx context.Context, prompt string, keyframe ImageAsset, refImages []*genai.VideoGenerationReferenceImage, label string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return s.generateOnce(ctx, client, prompt, keyframe, refImages, label)
}

func buildReferenceImages(anchors []models.AnchorImage) ([]*genai.VideoGenerationReferenceImage, error) {
	if len(anchors) > maxReferenceImages {
		anchors = anchors[:maxReferenceImages]
	}

	refs := make([]*genai.VideoGenerationReferenceImage, 0, len(anchors))
	for _, img := range anchors {
		data, err := base64.StdEncoding.DecodeString(img.Base64Data)
		if err != nil {
			return nil, fmt.Errorf("anchor image %s is not valid base64: %w", img.ID, err)
		}
		refs = append(refs, &genai.VideoGenerationReferenceImage{
			Image:         &genai.Image{ImageBytes: data, MIMEType: img.MimeType},
			ReferenceType: genai.VideoGenerationReferenceTypeAsset,
		})
	}
	return refs, nil
}

// generateOnce runs one full start → poll → download → validate cycle.
func (s *VeoService) generateOnce(ctx context.Context, client *genai.Client, prompt string, keyframe ImageAsset, refImages []*genai.VideoGenerationReferenceImage, label string) ([]byte, error) {
	firstFrame := &genai.Image{
		ImageBytes: keyframe.Data,
		MIMEType:   keyframe.MimeType,
	}

	// Start the async operation. If the service rejects the reference-image
	// conditioning feature, downgrade once within the same attempt and
	// condition on the keyframe alone.
	useReferences := len(refImages) > 0
	operation, err := retry.Do(ctx, retry.ForVideoStart, label+" video start", func() (*genai.GenerateVideosOperation, error) {
		config := &genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			Resolution:     "720p",
			AspectRatio:    models.VerticalAspectRatio,
		}
		if useReferences {
			config.ReferenceImages = refImages
		}

		op, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
		if err != nil && useReferences {
			log.Printf("[Veo] %s: reference images rejected, falling back to keyframe-only: %v", label, err)
			useReferences = false
			op, err = client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, &genai.GenerateVideosConfig{
				NumberOfVideos: 1,
				Resolution:     "720p",
				AspectRatio:    models.VerticalAspectRatio,
			})
		}
		return op, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Veo] %s: operation started: %s", label, operation.Name)

	operation, err = s.awaitOperation(ctx, label, operation, func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		return client.Operations.GetVideosOperation(ctx, op, nil)
	})
	if err != nil {
		return nil, err
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 {
		return nil, faults.New(faults.KindMalformedResponse, "no videos in completed operation")
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, faults.New(faults.KindMalformedResponse, "generated video object is nil")
	}

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}
	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	if !s.clipIsVertical(ctx, videoBytes, label) {
		return nil, faults.New(faults.KindValidationFailed, "generated video failed 9:16 aspect ratio validation")
	}

	log.Printf("[Veo] %s: clip ready (%d bytes)", label, len(videoBytes))
	return videoBytes, nil
}

// awaitOperation polls until the operation reports done or the wall-clock
// ceiling elapses, whichever comes first.
func (s *VeoService) awaitOperation(ctx context.Context, label string, operation *genai.GenerateVideosOperation, poll func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)) (*genai.GenerateVideosOperation, error) {
	deadline := time.Now().Add(s.maxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, faults.New(faults.KindTimedOut, "video generation timed out after %v (polled %d times)", s.maxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(s.pollInterval):
		}

		pollCount++
		var err error
		operation, err = retry.Do(ctx, retry.ForPolling, label+" poll", func() (*genai.GenerateVideosOperation, error) {
			return poll(ctx, operation)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}
	}
	return operation, nil
}

// clipIsVertical probes the downloaded clip's frame dimensions. A failed probe
// counts as not vertical.
func (s *VeoService) clipIsVertical(ctx context.Context, videoBytes []byte, label string) bool {
	path := s.prober.CreateTempFile(fmt.Sprintf("validate_%s_%d.mp4", label, time.Now().UnixNano()))
	defer s.prober.Cleanup(path)

	if err := os.WriteFile(path, videoBytes, 0644); err != nil {
		log.Printf("[Veo] %s: could not stage clip for validation: %v", label, err)
		return false
	}

	width, height, err := s.prober.ProbeVideoDimensions(ctx, path)
	if err != nil {
		log.Printf("[Veo] %s: dimension probe failed: %v", label, err)
		return false
	}

	if !media.VideoFrameIsVertical(width, height) {
		log.Printf("[Veo] %s: clip is %dx%d, not 9:16", label, width, height)
		return false
	}
	return true
}
