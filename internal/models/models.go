package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusQueued            ProjectStatus = "queued"
	ProjectStatusResolving         ProjectStatus = "resolving"
	ProjectStatusAwaitingSelection ProjectStatus = "awaiting_selection"
	ProjectStatusPlanning          ProjectStatus = "planning"
	ProjectStatusPlanned           ProjectStatus = "planned"
	ProjectStatusGenerating        ProjectStatus = "generating"
	ProjectStatusStitching         ProjectStatus = "stitching"
	ProjectStatusCompleted         ProjectStatus = "completed"
	ProjectStatusStoppedEarly      ProjectStatus = "stopped_early"
	ProjectStatusFailed            ProjectStatus = "failed"
)

type SegmentStatus string

const (
	SegmentStatusPending         SegmentStatus = "pending"
	SegmentStatusGeneratingImage SegmentStatus = "generating_image"
	SegmentStatusGeneratingVideo SegmentStatus = "generating_video"
	SegmentStatusCompleted       SegmentStatus = "completed"
	SegmentStatusFailed          SegmentStatus = "failed"
)

type AssetType string

const (
	AssetTypePlanJSON   AssetType = "plan_json"
	AssetTypeKeyframe   AssetType = "keyframe"
	AssetTypeClipVideo  AssetType = "clip_video"
	AssetTypeFinalVideo AssetType = "final_video"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// SegmentPurpose is one of the five fixed narrative beats. A storyboard always
// carries exactly one segment per purpose, in this order.
type SegmentPurpose string

const (
	PurposeHook      SegmentPurpose = "hook"
	PurposeSetup     SegmentPurpose = "setup"
	PurposeAction    SegmentPurpose = "action"
	PurposeReplay    SegmentPurpose = "replay"
	PurposePunchline SegmentPurpose = "punchline"
)

// StoryboardLength is the fixed number of segments in every plan.
const StoryboardLength = 5

// VerticalAspectRatio is forced onto every render config regardless of what
// the planner model returns.
const VerticalAspectRatio = "9:16"

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ToJSONB converts a domain value into a JSONB column value.
func ToJSONB(v interface{}) (JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var j JSONB
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return j, nil
}

// Decode unmarshals a JSONB column value back into a domain value.
func (j JSONB) Decode(v interface{}) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// AnchorSet wraps the anchor image list for JSONB storage.
type AnchorSet struct {
	Images []AnchorImage `json:"images"`
}

// ---------------------------------------------------------------------------
// Domain model
// ---------------------------------------------------------------------------

// PlayerProfile is a static identity record from the in-memory catalog.
type PlayerProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Team         string `json:"team"`
	VisualTokens string `json:"visual_tokens"`
}

// KitColors are the extracted shirt/shorts/socks colors for a specific match.
type KitColors struct {
	Shirt  string `json:"shirt"`
	Shorts string `json:"shorts"`
	Socks  string `json:"socks"`
}

// SourceRef is a web citation backing a resolved event.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// EventFactSheet is the resolved real-world match context a plan is built on.
type EventFactSheet struct {
	Title                string      `json:"title"`
	SpecificActionMoment string      `json:"specific_action_moment"`
	MatchContext         string      `json:"match_context"`
	KitColors            KitColors   `json:"kit_colors"`
	WhatHappened         string      `json:"what_happened"`
	Sources              []SourceRef `json:"sources"`
}

// NewsCandidate is one disambiguation option returned by the resolver.
type NewsCandidate struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Date              string      `json:"date"`
	Competition       string      `json:"competition"`
	Opponent          string      `json:"opponent"`
	Scoreline         string      `json:"scoreline"`
	Minute            string      `json:"minute"`
	GoalType          string      `json:"goal_type"`
	KitColors         KitColors   `json:"kit_colors"`
	ActionDescription string      `json:"action_description"`
	Sources           []SourceRef `json:"sources"`
}

// FactSheet projects a chosen candidate into the event shape the planner consumes.
func (c NewsCandidate) FactSheet() EventFactSheet {
	return EventFactSheet{
		Title:                c.Title,
		SpecificActionMoment: c.ActionDescription,
		MatchContext:         "vs " + c.Opponent + " (" + c.Competition + ")",
		KitColors:            c.KitColors,
		WhatHappened:         c.ActionDescription,
		Sources:              c.Sources,
	}
}

// NewsResolution is the resolver's raw answer: either a candidate list for user
// disambiguation or (rarely) a single pre-resolved event.
type NewsResolution struct {
	NeedsDisambiguation bool            `json:"needs_disambiguation"`
	Candidates          []NewsCandidate `json:"candidates,omitempty"`
	SelectedEvent       *EventFactSheet `json:"selected_event,omitempty"`
}

// AnchorImage is a caller-supplied reference image that conditions generation
// toward a consistent character appearance.
type AnchorImage struct {
	ID         string `json:"id"`
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimeType"`
	Label      string `json:"label"`
}

// CharacterBible consolidates the textual and image constraints that keep the
// character visually consistent across all five clips.
type CharacterBible struct {
	CharacterID    string        `json:"character_id"`
	AnchorImages   []AnchorImage `json:"anchor_images"`
	FaceLock       []string      `json:"face_lock"`
	MotionBible    []string      `json:"motion_bible"`
	StyleLock      string        `json:"style_lock"`
	NegativePrompt string        `json:"negative_prompt"`
}

// KitSpec is the parody kit description (no real brand logos).
type KitSpec struct {
	Shirt       string `json:"shirt"`
	Shorts      string `json:"shorts"`
	Socks       string `json:"socks"`
	Accent      string `json:"accent"`
	NumberStyle string `json:"number_style"`
}

// StoryboardSegment is one of the five narrative beats.
type StoryboardSegment struct {
	ClipID          string         `json:"clip_id"`
	Purpose         SegmentPurpose `json:"purpose"`
	Seconds         float64        `json:"seconds"`
	CameraAngle     string         `json:"camera_angle"`
	CameraMovement  string         `json:"camera_movement"`
	KeyframePrompt  string         `json:"keyframe_prompt"`
	VideoPrompt     string         `json:"video_prompt"`
	OverlayText     string         `json:"overlay_text"`
	ContinuityNotes string         `json:"continuity_notes"`
}

// RenderConfig carries the output constraints for the video model.
type RenderConfig struct {
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspectRatio"`
}

// ComplianceReport is the planner's self-check on parody safety.
type ComplianceReport struct {
	NoRealNamesInPublicOutput bool   `json:"no_real_names_in_public_output"`
	ParodyIncluded            bool   `json:"parody_included"`
	SafeToPost                bool   `json:"safe_to_post"`
	Notes                     string `json:"notes"`
}

// TrollPlan is the aggregate production plan. Invariants: the storyboard holds
// exactly StoryboardLength segments and the render config aspect ratio is
// always VerticalAspectRatio.
type TrollPlan struct {
	EventFactSheet   EventFactSheet      `json:"event_fact_sheet"`
	CharacterBible   CharacterBible      `json:"character_bible"`
	KitSpec          KitSpec             `json:"kit_spec"`
	Storyboard       []StoryboardSegment `json:"storyboard"`
	RenderConfig     RenderConfig        `json:"render_config"`
	ComplianceReport ComplianceReport    `json:"compliance_report"`
}

// ProductionAsset is the per-segment progress event emitted by the pipeline.
type ProductionAsset struct {
	SegmentIndex int           `json:"segment_index"`
	Label        string        `json:"label"`
	Status       SegmentStatus `json:"status"`
	ImageURL     *string       `json:"image_url,omitempty"`
	VideoURL     *string       `json:"video_url,omitempty"`
	Error        *string       `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Persistence rows
// ---------------------------------------------------------------------------

type Project struct {
	ID                uuid.UUID     `json:"id"`
	PlayerID          string        `json:"player_id"`
	Query             string        `json:"query"`
	Status            ProjectStatus `json:"status"`
	AnchorImages      JSONB         `json:"anchor_images,omitempty"`
	Candidates        JSONB         `json:"candidates,omitempty"`
	Plan              JSONB         `json:"plan,omitempty"`
	FinalVideoAssetID *uuid.UUID    `json:"final_video_asset_id,omitempty"`
	ErrorCode         *string       `json:"error_code,omitempty"`
	ErrorMessage      *string       `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type Segment struct {
	ID               uuid.UUID     `json:"id"`
	ProjectID        uuid.UUID     `json:"project_id"`
	SegmentIndex     int           `json:"segment_index"`
	Purpose          string        `json:"purpose"`
	Status           SegmentStatus `json:"status"`
	KeyframeAssetID  *uuid.UUID    `json:"keyframe_asset_id,omitempty"`
	ClipVideoAssetID *uuid.UUID    `json:"clip_video_asset_id,omitempty"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type Asset struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	SegmentID     *uuid.UUID `json:"segment_id,omitempty"`
	Type          AssetType  `json:"type"`
	StorageBucket string     `json:"storage_bucket"`
	StoragePath   string     `json:"storage_path"`
	ContentType   *string    `json:"content_type,omitempty"`
	ByteSize      *int64     `json:"byte_size,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ---------------------------------------------------------------------------
// API DTOs
// ---------------------------------------------------------------------------

type CreateProjectRequest struct {
	PlayerID     string        `json:"player_id"`
	Query        string        `json:"query"`
	AnchorImages []AnchorImage `json:"anchor_images,omitempty"` // 0-3 reference images
}

type CreateProjectResponse struct {
	ProjectID uuid.UUID     `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

type SelectEventRequest struct {
	CandidateID string `json:"candidate_id"`
}

type UpdatePromptRequest struct {
	KeyframePrompt *string `json:"keyframe_prompt,omitempty"`
	VideoPrompt    *string `json:"video_prompt,omitempty"`
}

type SegmentResponse struct {
	Segment
	ImageURL     *string `json:"image_url,omitempty"`
	ClipVideoURL *string `json:"clip_video_url,omitempty"`
}

type ProjectResponse struct {
	Project
	Segments      []SegmentResponse `json:"segments,omitempty"`
	FinalVideoURL *string           `json:"final_video_url,omitempty"`
}

// ProjectSummary is the lightweight list view: no candidates, plan, or segments.
type ProjectSummary struct {
	ID            uuid.UUID     `json:"id"`
	PlayerID      string        `json:"player_id"`
	Query         string        `json:"query"`
	Status        ProjectStatus `json:"status"`
	ErrorCode     *string       `json:"error_code,omitempty"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
	FinalVideoURL *string       `json:"final_video_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type ListProjectsResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}
