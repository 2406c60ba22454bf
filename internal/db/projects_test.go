package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marandi/trollreel/internal/models"
)

// testDB connects to the database named by TEST_DATABASE_URL, skipping the
// test when none is configured.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	database, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestClaimProjectStatusSingleWinner(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	project := &models.Project{
		ID:       uuid.New(),
		PlayerID: "cr7",
		Query:    "last champions league goal",
		Status:   models.ProjectStatusAwaitingSelection,
	}
	require.NoError(t, database.CreateProject(ctx, project))

	won, err := database.ClaimProjectStatus(ctx, project.ID, models.ProjectStatusAwaitingSelection, models.ProjectStatusPlanning)
	require.NoError(t, err)
	assert.True(t, won)

	// A repeated claim must lose: the status already moved on.
	won, err = database.ClaimProjectStatus(ctx, project.ID, models.ProjectStatusAwaitingSelection, models.ProjectStatusPlanning)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := database.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusPlanning, got.Status)
}

func TestResetSegmentRefreshesPurpose(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	project := &models.Project{
		ID:       uuid.New(),
		PlayerID: "haaland",
		Query:    "hat-trick",
		Status:   models.ProjectStatusPlanning,
	}
	require.NoError(t, database.CreateProject(ctx, project))

	segment := &models.Segment{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		SegmentIndex: 0,
		Purpose:      string(models.PurposeHook),
		Status:       models.SegmentStatusCompleted,
	}
	require.NoError(t, database.CreateSegment(ctx, segment))

	require.NoError(t, database.ResetSegment(ctx, project.ID, 0, string(models.PurposeReplay)))

	rows, err := database.GetProjectSegments(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(models.PurposeReplay), rows[0].Purpose)
	assert.Equal(t, models.SegmentStatusPending, rows[0].Status)
	assert.Nil(t, rows[0].KeyframeAssetID)
	assert.Nil(t, rows[0].ClipVideoAssetID)
}
