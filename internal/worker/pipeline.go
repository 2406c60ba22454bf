package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/services"
)

// KeyframeGenerator produces a vertical still image for a storyboard segment.
type KeyframeGenerator interface {
	GenerateVertical(ctx context.Context, prompt string, bible models.CharacterBible) (services.ImageAsset, error)
}

// ClipGenerator animates a keyframe into a short vertical video clip.
type ClipGenerator interface {
	GenerateClip(ctx context.Context, prompt string, keyframe services.ImageAsset, bible models.CharacterBible, label string) ([]byte, error)
}

// SegmentObserver receives per-segment progress and artifacts as the pipeline
// advances. The worker's observer persists rows and uploads to storage; an
// observer error fails the segment the same way a generation error does.
type SegmentObserver interface {
	SegmentStarted(ctx context.Context, index int, label string) error
	KeyframeReady(ctx context.Context, index int, label string, image services.ImageAsset) error
	ClipReady(ctx context.Context, index int, label string, clip []byte) error
	SegmentFailed(ctx context.Context, index int, label string, cause error)
}

// Pipeline runs a plan's storyboard through keyframe and video generation,
// strictly one segment at a time. Sequential on purpose: Veo and the image
// model share a quota pool, and a burst of parallel starts trips rate limits
// that sequential traffic does not.
type Pipeline struct {
	keyframes KeyframeGenerator
	clips     ClipGenerator
	cooldown  time.Duration
}

func NewPipeline(keyframes KeyframeGenerator, clips ClipGenerator, cooldown time.Duration) *Pipeline {
	return &Pipeline{
		keyframes: keyframes,
		clips:     clips,
		cooldown:  cooldown,
	}
}

// styleString builds the strict style constraint shared by every prompt in a
// production run, so all five segments render the same character in the same kit.
func styleString(plan *models.TrollPlan) string {
	bible := plan.CharacterBible
	kit := plan.KitSpec
	return fmt.Sprintf(
		"STYLE: %s. FACE: %s. KIT: %s shirt, %s shorts, %s socks.",
		bible.StyleLock, strings.Join(bible.FaceLock, ", "),
		kit.Shirt, kit.Shorts, kit.Socks,
	)
}

func keyframePrompt(segment models.StoryboardSegment, style, negative string) string {
	return fmt.Sprintf(
		"Full 9:16 Frame. %s, %s. %s. ACTION: %s. %s",
		segment.CameraAngle, segment.CameraMovement, style,
		segment.KeyframePrompt, negative,
	)
}

func videoPrompt(segment models.StoryboardSegment, style string) string {
	return fmt.Sprintf(
		"Cartoon Animation. %s. %s. ACTION: %s",
		segment.CameraMovement, style, segment.VideoPrompt,
	)
}

// Produce runs the storyboard in order, emitting progress through the
// observer. It returns the completed clips in storyboard order. The pipeline
// fails fast: the first segment error stops the run and is returned alongside
// whatever clips completed before it.
func (p *Pipeline) Produce(ctx context.Context, plan *models.TrollPlan, observer SegmentObserver) ([][]byte, error) {
	style := styleString(plan)
	bible := plan.CharacterBible

	var clips [][]byte

	for i, segment := range plan.Storyboard {
		label := strings.ToUpper(string(segment.Purpose))

		// Cooldown between segments to avoid hammering the generation models
		if i > 0 {
			select {
			case <-ctx.Done():
				return clips, ctx.Err()
			case <-time.After(p.cooldown):
			}
		}

		if err := observer.SegmentStarted(ctx, i, label); err != nil {
			observer.SegmentFailed(ctx, i, label, err)
			return clips, err
		}

		log.Printf("[Pipeline] Segment %d/%d (%s): generating keyframe...", i+1, len(plan.Storyboard), label)
		keyframe, err := p.keyframes.GenerateVertical(ctx, keyframePrompt(segment, style, bible.NegativePrompt), bible)
		if err != nil {
			observer.SegmentFailed(ctx, i, label, err)
			return clips, fmt.Errorf("segment %d keyframe failed: %w", i, err)
		}

		if err := observer.KeyframeReady(ctx, i, label, keyframe); err != nil {
			observer.SegmentFailed(ctx, i, label, err)
			return clips, err
		}

		log.Printf("[Pipeline] Segment %d/%d (%s): generating video...", i+1, len(plan.Storyboard), label)
		clip, err := p.clips.GenerateClip(ctx, videoPrompt(segment, style), keyframe, bible, label)
		if err != nil {
			observer.SegmentFailed(ctx, i, label, err)
			return clips, fmt.Errorf("segment %d video failed: %w", i, err)
		}

		if err := observer.ClipReady(ctx, i, label, clip); err != nil {
			observer.SegmentFailed(ctx, i, label, err)
			return clips, err
		}

		clips = append(clips, clip)
		log.Printf("[Pipeline] Segment %d/%d (%s): completed (%d bytes)", i+1, len(plan.Storyboard), label, len(clip))
	}

	return clips, nil
}
