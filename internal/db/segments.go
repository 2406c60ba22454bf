package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/marandi/trollreel/internal/models"
)

func (db *DB) CreateSegment(ctx context.Context, segment *models.Segment) error {
	query := `
		INSERT INTO segments (
			id, project_id, segment_index, purpose, status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		segment.ID, segment.ProjectID, segment.SegmentIndex,
		segment.Purpose, segment.Status,
	).Scan(&segment.CreatedAt, &segment.UpdatedAt)
}

func (db *DB) GetSegment(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	query := `
		SELECT
			id, project_id, segment_index, purpose, status,
			keyframe_asset_id, clip_video_asset_id, error_message,
			created_at, updated_at
		FROM segments
		WHERE id = $1
	`

	segment := &models.Segment{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&segment.ID, &segment.ProjectID, &segment.SegmentIndex,
		&segment.Purpose, &segment.Status,
		&segment.KeyframeAssetID, &segment.ClipVideoAssetID, &segment.ErrorMessage,
		&segment.CreatedAt, &segment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("segment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}

	return segment, nil
}

// GetProjectSegments returns a project's segments in storyboard order.
func (db *DB) GetProjectSegments(ctx context.Context, projectID uuid.UUID) ([]models.Segment, error) {
	query := `
		SELECT
			id, project_id, segment_index, purpose, status,
			keyframe_asset_id, clip_video_asset_id, error_message,
			created_at, updated_at
		FROM segments
		WHERE project_id = $1
		ORDER BY segment_index
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var s models.Segment
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.SegmentIndex,
			&s.Purpose, &s.Status,
			&s.KeyframeAssetID, &s.ClipVideoAssetID, &s.ErrorMessage,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, s)
	}

	return segments, nil
}

func (db *DB) UpdateSegmentStatus(ctx context.Context, id uuid.UUID, status models.SegmentStatus) error {
	query := `UPDATE segments SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) SetSegmentKeyframe(ctx context.Context, id, assetID uuid.UUID) error {
	query := `
		UPDATE segments
		SET keyframe_asset_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, assetID, models.SegmentStatusGeneratingVideo, id)
	return err
}

func (db *DB) SetSegmentClip(ctx context.Context, id, assetID uuid.UUID) error {
	query := `
		UPDATE segments
		SET clip_video_asset_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, assetID, models.SegmentStatusCompleted, id)
	return err
}

func (db *DB) UpdateSegmentError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE segments
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.SegmentStatusFailed, errorMessage, id)
	return err
}

// ResetSegment returns one segment row to pending with a refreshed purpose,
// so re-planned projects never serve stale beat labels.
func (db *DB) ResetSegment(ctx context.Context, projectID uuid.UUID, segmentIndex int, purpose string) error {
	query := `
		UPDATE segments
		SET status = $1, purpose = $2, keyframe_asset_id = NULL, clip_video_asset_id = NULL,
		    error_message = NULL, updated_at = NOW()
		WHERE project_id = $3 AND segment_index = $4
	`
	_, err := db.ExecContext(ctx, query, models.SegmentStatusPending, purpose, projectID, segmentIndex)
	return err
}
