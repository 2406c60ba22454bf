package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marandi/trollreel/internal/db"
	"github.com/marandi/trollreel/internal/models"
	"github.com/marandi/trollreel/internal/queue"
	"github.com/marandi/trollreel/internal/storage"
)

const maxAnchorImages = 3

type Handler struct {
	db      *db.DB
	queue   *queue.Queue
	storage *storage.Storage
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
	}
}

// ListPlayers handles GET /v1/players
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.KnownPlayers)
}

// CreateProject handles POST /v1/projects. It creates the project row and
// enqueues news resolution; everything after that is driven by the worker.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, ok := models.FindPlayer(req.PlayerID); !ok {
		respondError(w, http.StatusBadRequest, "Unknown player")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if len(req.AnchorImages) > maxAnchorImages {
		respondError(w, http.StatusBadRequest, "At most 3 anchor images are allowed")
		return
	}
	for _, anchor := range req.AnchorImages {
		if anchor.MimeType == "" {
			respondError(w, http.StatusBadRequest, "Anchor image is missing a MIME type")
			return
		}
		if _, err := base64.StdEncoding.DecodeString(anchor.Base64Data); err != nil {
			respondError(w, http.StatusBadRequest, "Anchor image data is not valid base64")
			return
		}
	}

	anchorsJSON, err := models.ToJSONB(models.AnchorSet{Images: req.AnchorImages})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode anchor images")
		return
	}

	project := &models.Project{
		ID:           uuid.New(),
		PlayerID:     req.PlayerID,
		Query:        req.Query,
		Status:       models.ProjectStatusQueued,
		AnchorImages: anchorsJSON,
	}

	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:        jobID,
		ProjectID: project.ID,
		Type:      "resolve_news",
		Status:    models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueResolveNews(r.Context(), project.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ProjectID: project.ID,
		Status:    project.Status,
	})
}

// ListProjects handles GET /v1/projects
// Query params:
//   - status: filter by project status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.ProjectStatus(statusFilter) {
		case models.ProjectStatusQueued, models.ProjectStatusResolving,
			models.ProjectStatusAwaitingSelection, models.ProjectStatusPlanning,
			models.ProjectStatusPlanned, models.ProjectStatusGenerating,
			models.ProjectStatusStitching, models.ProjectStatusCompleted,
			models.ProjectStatusStoppedEarly, models.ProjectStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountProjects(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count projects")
		return
	}

	projects, err := h.db.ListProjects(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	summaries := make([]models.ProjectSummary, 0, len(projects))
	for _, project := range projects {
		summary := models.ProjectSummary{
			ID:           project.ID,
			PlayerID:     project.PlayerID,
			Query:        project.Query,
			Status:       project.Status,
			ErrorCode:    project.ErrorCode,
			ErrorMessage: project.ErrorMessage,
			CreatedAt:    project.CreatedAt,
			UpdatedAt:    project.UpdatedAt,
		}

		if project.FinalVideoAssetID != nil {
			if asset, err := h.db.GetAsset(r.Context(), *project.FinalVideoAssetID); err == nil {
				url := h.storage.GetPublicURL(asset.StoragePath)
				summary.FinalVideoURL = &url
			}
		}

		summaries = append(summaries, summary)
	}

	respondJSON(w, http.StatusOK, models.ListProjectsResponse{
		Projects: summaries,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetProject handles GET /v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	segments, err := h.db.GetProjectSegments(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get segments")
		return
	}

	response := models.ProjectResponse{
		Project:  *project,
		Segments: h.buildSegmentResponses(r.Context(), segments),
	}

	if project.FinalVideoAssetID != nil {
		if asset, err := h.db.GetAsset(r.Context(), *project.FinalVideoAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.FinalVideoURL = &url
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// SelectEvent handles POST /v1/projects/{id}/select-event. The user picks one
// of the resolver's candidates, which unparks the project into planning.
func (h *Handler) SelectEvent(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	var req models.SelectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.Status != models.ProjectStatusAwaitingSelection {
		respondError(w, http.StatusConflict, "Project is not awaiting event selection")
		return
	}

	var resolution models.NewsResolution
	if err := project.Candidates.Decode(&resolution); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decode candidates")
		return
	}

	found := false
	for _, c := range resolution.Candidates {
		if c.ID == req.CandidateID {
			found = true
			break
		}
	}
	if !found {
		respondError(w, http.StatusBadRequest, "Unknown candidate")
		return
	}

	// Claim the transition before enqueuing so a double-POST cannot slip two
	// planning jobs past the status guard.
	claimed, err := h.db.ClaimProjectStatus(r.Context(), projectID, models.ProjectStatusAwaitingSelection, models.ProjectStatusPlanning)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	if !claimed {
		respondError(w, http.StatusConflict, "Project is not awaiting event selection")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:        jobID,
		ProjectID: projectID,
		Type:      "generate_plan",
		Status:    models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGeneratePlan(r.Context(), projectID, jobID, req.CandidateID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "planning"})
}

// UpdateSegmentPrompts handles PUT /v1/projects/{id}/segments/{index}/prompts.
// Prompts live inside the stored plan so the pipeline picks edits up on render.
func (h *Handler) UpdateSegmentPrompts(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "Invalid segment index")
		return
	}

	var req models.UpdatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.KeyframePrompt == nil && req.VideoPrompt == nil {
		respondError(w, http.StatusBadRequest, "No prompt fields provided")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.Status != models.ProjectStatusPlanned && project.Status != models.ProjectStatusStoppedEarly {
		respondError(w, http.StatusConflict, "Prompts can only be edited after planning and before rendering")
		return
	}

	var plan models.TrollPlan
	if err := project.Plan.Decode(&plan); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decode plan")
		return
	}

	if index >= len(plan.Storyboard) {
		respondError(w, http.StatusBadRequest, "Segment index out of range")
		return
	}

	if req.KeyframePrompt != nil {
		if *req.KeyframePrompt == "" {
			respondError(w, http.StatusBadRequest, "Keyframe prompt cannot be empty")
			return
		}
		plan.Storyboard[index].KeyframePrompt = *req.KeyframePrompt
	}
	if req.VideoPrompt != nil {
		if *req.VideoPrompt == "" {
			respondError(w, http.StatusBadRequest, "Video prompt cannot be empty")
			return
		}
		plan.Storyboard[index].VideoPrompt = *req.VideoPrompt
	}

	planJSON, err := models.ToJSONB(&plan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode plan")
		return
	}

	if err := h.db.SetProjectPlan(r.Context(), projectID, planJSON); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store plan")
		return
	}

	respondJSON(w, http.StatusOK, plan.Storyboard[index])
}

// StartRender handles POST /v1/projects/{id}/render
func (h *Handler) StartRender(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.Status != models.ProjectStatusPlanned && project.Status != models.ProjectStatusStoppedEarly {
		respondError(w, http.StatusConflict, "Project has no plan ready to render")
		return
	}

	// Same double-POST guard as event selection: only one request may move
	// the project into generating and enqueue the render.
	claimed, err := h.db.ClaimProjectStatus(r.Context(), projectID, project.Status, models.ProjectStatusGenerating)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	if !claimed {
		respondError(w, http.StatusConflict, "Project has no plan ready to render")
		return
	}

	jobID := uuid.New()
	job := &models.Job{
		ID:        jobID,
		ProjectID: projectID,
		Type:      "produce_video",
		Status:    models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueProduceVideo(r.Context(), projectID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// GetProjectDownload handles GET /v1/projects/{id}/download
func (h *Handler) GetProjectDownload(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	if project.FinalVideoAssetID == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	asset, err := h.db.GetAsset(r.Context(), *project.FinalVideoAssetID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	// Signed URL valid for 1 hour
	signedURL, err := h.storage.GetSignedURL(r.Context(), asset.StoragePath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// GetProjectJobs handles GET /v1/projects/{id}/debug/jobs
func (h *Handler) GetProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	jobs, err := h.db.GetProjectJobs(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

// Helper methods
func (h *Handler) buildSegmentResponses(ctx context.Context, segments []models.Segment) []models.SegmentResponse {
	responses := make([]models.SegmentResponse, len(segments))
	for i, segment := range segments {
		responses[i] = h.buildSegmentResponse(ctx, segment)
	}
	return responses
}

func (h *Handler) buildSegmentResponse(ctx context.Context, segment models.Segment) models.SegmentResponse {
	response := models.SegmentResponse{
		Segment: segment,
	}

	if segment.KeyframeAssetID != nil {
		if asset, err := h.db.GetAsset(ctx, *segment.KeyframeAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.ImageURL = &url
		}
	}

	if segment.ClipVideoAssetID != nil {
		if asset, err := h.db.GetAsset(ctx, *segment.ClipVideoAssetID); err == nil {
			url := h.storage.GetPublicURL(asset.StoragePath)
			response.ClipVideoURL = &url
		}
	}

	return response
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
