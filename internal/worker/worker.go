package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marandi/trollreel/internal/db"
	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/queue"
	"github.com/marandi/trollreel/internal/services"
	"github.com/marandi/trollreel/internal/storage"
	"golang.org/x/sync/errgroup"
)

type Worker struct {
	db        *db.DB
	queue     *queue.Queue
	storage   *storage.Storage
	resolver  *services.ResolverService
	planner   *services.PlannerService
	pipeline  *Pipeline
	ffmpeg    *services.FFmpegService
	uploadSem chan struct{} // Limits concurrent Supabase uploads to prevent congestion
}

func New(
	database *db.DB,
	q *queue.Queue,
	stor *storage.Storage,
	resolverSvc *services.ResolverService,
	plannerSvc *services.PlannerService,
	pipeline *Pipeline,
	ffmpegSvc *services.FFmpegService,
) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		resolver:  resolverSvc,
		planner:   plannerSvc,
		pipeline:  pipeline,
		ffmpeg:    ffmpegSvc,
		uploadSem: make(chan struct{}, 2),
	}
}

// uploadWithLimit wraps an upload call with a semaphore to prevent Supabase congestion.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
		// Acquired slot
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueResolveNews, w.handleResolveNews)
		go w.processQueue(ctx, queue.QueueGeneratePlan, w.handleGeneratePlan)
		go w.processQueue(ctx, queue.QueueProduceVideo, w.handleProduceVideo)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, project: %s)", job.ID, job.Type, job.ProjectID)

			if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
				log.Printf("Failed to update job status: %v", err)
			}

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				w.db.UpdateJobError(ctx, job.ID, err.Error())
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded)
			}
		}
	}
}

// handleResolveNews runs search-grounded event resolution for a project. When
// the resolver returns a candidate list the project parks at
// awaiting_selection; when it returns a single pre-resolved event, planning is
// enqueued immediately.
func (w *Worker) handleResolveNews(ctx context.Context, job *queue.Job) error {
	log.Printf("Resolving news for project %s", job.ProjectID)

	if err := w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusResolving); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	player, ok := models.FindPlayer(project.PlayerID)
	if !ok {
		w.db.UpdateProjectError(ctx, job.ProjectID, string(faults.KindValidationFailed), "unknown player: "+project.PlayerID)
		return fmt.Errorf("unknown player %q", project.PlayerID)
	}

	resolution, err := w.resolver.Resolve(ctx, player, project.Query)
	if err != nil {
		w.db.UpdateProjectError(ctx, job.ProjectID, string(faults.KindOf(err)), err.Error())
		return fmt.Errorf("failed to resolve news: %w", err)
	}

	resolutionJSON, err := models.ToJSONB(resolution)
	if err != nil {
		return fmt.Errorf("failed to encode resolution: %w", err)
	}

	if err := w.db.SetProjectCandidates(ctx, job.ProjectID, resolutionJSON); err != nil {
		return fmt.Errorf("failed to store candidates: %w", err)
	}

	// Candidate lists wait for the user; a directly resolved event skips
	// straight to planning.
	if len(resolution.Candidates) == 0 && resolution.SelectedEvent != nil {
		planJobID := uuid.New()
		planJob := &models.Job{
			ID:        planJobID,
			ProjectID: job.ProjectID,
			Type:      "generate_plan",
			Status:    models.JobStatusQueued,
		}
		if err := w.db.CreateJob(ctx, planJob); err != nil {
			return fmt.Errorf("failed to create plan job: %w", err)
		}
		return w.queue.EnqueueGeneratePlan(ctx, job.ProjectID, planJobID, "")
	}

	return nil
}

// resolveEvent picks the event a plan is built on: a candidate chosen by ID,
// or the resolver's pre-selected event when no ID is given.
func resolveEvent(resolution *models.NewsResolution, candidateID string) (models.EventFactSheet, error) {
	if candidateID != "" {
		for _, c := range resolution.Candidates {
			if c.ID == candidateID {
				return c.FactSheet(), nil
			}
		}
		return models.EventFactSheet{}, faults.New(faults.KindNotFound, "candidate %q not found", candidateID)
	}
	if resolution.SelectedEvent != nil {
		return *resolution.SelectedEvent, nil
	}
	return models.EventFactSheet{}, faults.New(faults.KindValidationFailed, "no candidate selected")
}

// handleGeneratePlan builds the structured troll plan and creates the five
// segment rows the production pipeline will walk.
func (w *Worker) handleGeneratePlan(ctx context.Context, job *queue.Job) error {
	log.Printf("Generating plan for project %s", job.ProjectID)

	if err := w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusPlanning); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	player, ok := models.FindPlayer(project.PlayerID)
	if !ok {
		return fmt.Errorf("unknown player %q", project.PlayerID)
	}

	var resolution models.NewsResolution
	if err := project.Candidates.Decode(&resolution); err != nil {
		return fmt.Errorf("failed to decode resolution: %w", err)
	}

	candidateID := ""
	if job.Data != nil {
		if id, ok := job.Data["candidate_id"].(string); ok {
			candidateID = id
		}
	}

	event, err := resolveEvent(&resolution, candidateID)
	if err != nil {
		w.db.UpdateProjectError(ctx, job.ProjectID, string(faults.KindOf(err)), err.Error())
		return err
	}

	var anchors models.AnchorSet
	if project.AnchorImages != nil {
		if err := project.AnchorImages.Decode(&anchors); err != nil {
			return fmt.Errorf("failed to decode anchor images: %w", err)
		}
	}

	plan, err := w.planner.CreatePlan(ctx, player, event, anchors.Images)
	if err != nil {
		w.db.UpdateProjectError(ctx, job.ProjectID, string(faults.KindOf(err)), err.Error())
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	// Store the plan as a JSON asset alongside the row, so the raw artifact
	// survives later prompt edits.
	planJSON, _ := json.MarshalIndent(plan, "", "  ")
	planAsset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     job.ProjectID,
		Type:          models.AssetTypePlanJSON,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(job.ProjectID, "plan.json"),
		ContentType:   strPtr("application/json"),
		ByteSize:      int64Ptr(int64(len(planJSON))),
	}

	if err := w.uploadWithLimit(ctx, "plan.json", func() error {
		return w.storage.Upload(ctx, planAsset.StoragePath, planJSON, "application/json")
	}); err != nil {
		return fmt.Errorf("failed to upload plan: %w", err)
	}

	if err := w.db.CreateAsset(ctx, planAsset); err != nil {
		return fmt.Errorf("failed to save plan asset: %w", err)
	}

	planJSONB, err := models.ToJSONB(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := w.db.SetProjectPlan(ctx, job.ProjectID, planJSONB); err != nil {
		return fmt.Errorf("failed to store plan: %w", err)
	}

	// Create segment rows mirroring the storyboard. Re-planning resets the
	// existing rows, rewriting purposes in case the beats reordered.
	existing, err := w.db.GetProjectSegments(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to check segments: %w", err)
	}

	rows := segmentRows(job.ProjectID, plan.Storyboard)
	if len(existing) > 0 {
		for _, row := range rows {
			if err := w.db.ResetSegment(ctx, job.ProjectID, row.SegmentIndex, row.Purpose); err != nil {
				return fmt.Errorf("failed to reset segment %d: %w", row.SegmentIndex, err)
			}
		}
		return nil
	}

	for _, row := range rows {
		if err := w.db.CreateSegment(ctx, row); err != nil {
			return fmt.Errorf("failed to create segment: %w", err)
		}
	}

	return nil
}

// segmentRows builds the desired segment rows for a storyboard, in beat order.
func segmentRows(projectID uuid.UUID, storyboard []models.StoryboardSegment) []*models.Segment {
	rows := make([]*models.Segment, len(storyboard))
	for i, beat := range storyboard {
		rows[i] = &models.Segment{
			ID:           uuid.New(),
			ProjectID:    projectID,
			SegmentIndex: i,
			Purpose:      string(beat.Purpose),
			Status:       models.SegmentStatusPending,
		}
	}
	return rows
}

// handleProduceVideo walks the storyboard through the production pipeline and
// stitches the resulting clips into the final reel.
func (w *Worker) handleProduceVideo(ctx context.Context, job *queue.Job) error {
	log.Printf("Producing video for project %s", job.ProjectID)

	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	if project.Plan == nil {
		return fmt.Errorf("project has no plan")
	}

	var plan models.TrollPlan
	if err := project.Plan.Decode(&plan); err != nil {
		return fmt.Errorf("failed to decode plan: %w", err)
	}

	segments, err := w.db.GetProjectSegments(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get segments: %w", err)
	}
	if len(segments) != len(plan.Storyboard) {
		return fmt.Errorf("segment count mismatch: %d rows for %d storyboard beats", len(segments), len(plan.Storyboard))
	}

	if err := w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusGenerating); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	observer := &segmentRecorder{worker: w, projectID: job.ProjectID, segments: segments}

	if _, err := w.pipeline.Produce(ctx, &plan, observer); err != nil {
		w.db.UpdateProjectError(ctx, job.ProjectID, string(faults.KindOf(err)), err.Error())
		return fmt.Errorf("production pipeline failed: %w", err)
	}

	if err := w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusStitching); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	// Re-read the clips from storage rather than trusting the in-memory
	// copies; the uploaded objects are what the segment rows point at.
	clipBytes, err := w.downloadClips(ctx, job.ProjectID)
	if err != nil {
		log.Printf("Project %s: clip download for stitching failed, keeping per-segment clips: %v", job.ProjectID, err)
		return w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusStoppedEarly)
	}

	finalVideo, err := w.ffmpeg.StitchClips(ctx, clipBytes)
	if err != nil {
		// Stitching is best-effort: the individual clips are already
		// uploaded, so surface those instead of failing the project.
		log.Printf("Project %s: stitching failed, keeping per-segment clips: %v", job.ProjectID, err)
		return w.db.UpdateProjectStatus(ctx, job.ProjectID, models.ProjectStatusStoppedEarly)
	}

	finalAsset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     job.ProjectID,
		Type:          models.AssetTypeFinalVideo,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(job.ProjectID, "final.mp4"),
		ContentType:   strPtr("video/mp4"),
		ByteSize:      int64Ptr(int64(len(finalVideo))),
	}

	if err := w.uploadWithLimit(ctx, "final_video", func() error {
		return w.storage.Upload(ctx, finalAsset.StoragePath, finalVideo, "video/mp4")
	}); err != nil {
		w.db.UpdateProjectError(ctx, job.ProjectID, "upload_failed", err.Error())
		return fmt.Errorf("failed to upload final video: %w", err)
	}

	if err := w.db.CreateAsset(ctx, finalAsset); err != nil {
		return fmt.Errorf("failed to save final video asset: %w", err)
	}

	return w.db.SetProjectFinalVideo(ctx, job.ProjectID, finalAsset.ID, models.ProjectStatusCompleted)
}

// downloadClips fetches every completed clip in parallel and returns them in
// storyboard order.
func (w *Worker) downloadClips(ctx context.Context, projectID uuid.UUID) ([][]byte, error) {
	segments, err := w.db.GetProjectSegments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}

	clips := make([][]byte, len(segments))
	g, gctx := errgroup.WithContext(ctx)

	for i, segment := range segments {
		if segment.ClipVideoAssetID == nil {
			return nil, fmt.Errorf("segment %d has no clip video", segment.SegmentIndex)
		}

		i, assetID := i, *segment.ClipVideoAssetID
		g.Go(func() error {
			asset, err := w.db.GetAsset(gctx, assetID)
			if err != nil {
				return fmt.Errorf("failed to get clip asset: %w", err)
			}
			data, err := w.storage.Download(gctx, asset.StoragePath)
			if err != nil {
				return fmt.Errorf("failed to download clip %d: %w", i, err)
			}
			clips[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return clips, nil
}

// segmentRecorder persists pipeline progress: status transitions on segment
// rows plus keyframe/clip uploads.
type segmentRecorder struct {
	worker    *Worker
	projectID uuid.UUID
	segments  []models.Segment
}

func (r *segmentRecorder) SegmentStarted(ctx context.Context, index int, label string) error {
	return r.worker.db.UpdateSegmentStatus(ctx, r.segments[index].ID, models.SegmentStatusGeneratingImage)
}

func (r *segmentRecorder) KeyframeReady(ctx context.Context, index int, label string, image services.ImageAsset) error {
	w := r.worker
	asset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     r.projectID,
		SegmentID:     &r.segments[index].ID,
		Type:          models.AssetTypeKeyframe,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(r.projectID, fmt.Sprintf("segment_%d_keyframe%s", index, extForMime(image.MimeType))),
		ContentType:   strPtr(image.MimeType),
		ByteSize:      int64Ptr(int64(len(image.Data))),
	}

	if err := w.uploadWithLimit(ctx, fmt.Sprintf("segment_%d_keyframe", index), func() error {
		return w.storage.Upload(ctx, asset.StoragePath, image.Data, image.MimeType)
	}); err != nil {
		return fmt.Errorf("failed to upload keyframe: %w", err)
	}

	if err := w.db.CreateAsset(ctx, asset); err != nil {
		return fmt.Errorf("failed to save keyframe asset: %w", err)
	}

	return w.db.SetSegmentKeyframe(ctx, r.segments[index].ID, asset.ID)
}

func (r *segmentRecorder) ClipReady(ctx context.Context, index int, label string, clip []byte) error {
	w := r.worker
	asset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     r.projectID,
		SegmentID:     &r.segments[index].ID,
		Type:          models.AssetTypeClipVideo,
		StorageBucket: w.storage.Bucket,
		StoragePath:   w.storage.GenerateStoragePath(r.projectID, fmt.Sprintf("segment_%d_clip.mp4", index)),
		ContentType:   strPtr("video/mp4"),
		ByteSize:      int64Ptr(int64(len(clip))),
	}

	if err := w.uploadWithLimit(ctx, fmt.Sprintf("segment_%d_clip", index), func() error {
		return w.storage.Upload(ctx, asset.StoragePath, clip, "video/mp4")
	}); err != nil {
		return fmt.Errorf("failed to upload clip: %w", err)
	}

	if err := w.db.CreateAsset(ctx, asset); err != nil {
		return fmt.Errorf("failed to save clip asset: %w", err)
	}

	return w.db.SetSegmentClip(ctx, r.segments[index].ID, asset.ID)
}

func (r *segmentRecorder) SegmentFailed(ctx context.Context, index int, label string, cause error) {
	if err := r.worker.db.UpdateSegmentError(ctx, r.segments[index].ID, cause.Error()); err != nil {
		log.Printf("Failed to record segment %d error: %v", index, err)
	}
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Helper functions
func strPtr(s string) *string {
	return &s
}

func int64Ptr(i int64) *int64 {
	return &i
}
