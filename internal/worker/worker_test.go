package worker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/marandi/trollreel/internal/faults"
	"github.com/marandi/trollreel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEventByCandidateID(t *testing.T) {
	resolution := &models.NewsResolution{
		Candidates: []models.NewsCandidate{
			{ID: "c1", Title: "Hat-trick", Opponent: "Luton", Competition: "Premier League", ActionDescription: "Towering header"},
			{ID: "c2", Title: "Red card", Opponent: "Arsenal", Competition: "FA Cup"},
		},
	}

	event, err := resolveEvent(resolution, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Hat-trick", event.Title)
	assert.Equal(t, "vs Luton (Premier League)", event.MatchContext)
	assert.Equal(t, "Towering header", event.WhatHappened)
}

func TestResolveEventUnknownCandidate(t *testing.T) {
	resolution := &models.NewsResolution{
		Candidates: []models.NewsCandidate{{ID: "c1"}},
	}

	_, err := resolveEvent(resolution, "missing")
	require.Error(t, err)
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestResolveEventPreSelected(t *testing.T) {
	resolution := &models.NewsResolution{
		SelectedEvent: &models.EventFactSheet{Title: "Overhead kick"},
	}

	event, err := resolveEvent(resolution, "")
	require.NoError(t, err)
	assert.Equal(t, "Overhead kick", event.Title)
}

func TestResolveEventNothingToSelect(t *testing.T) {
	_, err := resolveEvent(&models.NewsResolution{}, "")
	require.Error(t, err)
	assert.Equal(t, faults.KindValidationFailed, faults.KindOf(err))
}

func TestSegmentRowsFollowReorderedStoryboard(t *testing.T) {
	projectID := uuid.New()
	storyboard := []models.StoryboardSegment{
		{Purpose: models.PurposeReplay},
		{Purpose: models.PurposeHook},
		{Purpose: models.PurposeSetup},
		{Purpose: models.PurposePunchline},
		{Purpose: models.PurposeAction},
	}

	rows := segmentRows(projectID, storyboard)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, projectID, row.ProjectID)
		assert.Equal(t, i, row.SegmentIndex)
		assert.Equal(t, string(storyboard[i].Purpose), row.Purpose)
		assert.Equal(t, models.SegmentStatusPending, row.Status)
	}
	assert.Equal(t, "replay", rows[0].Purpose)
	assert.Equal(t, "action", rows[4].Purpose)
}
