package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/open-craft/sga-api/internal/models"
)

func TestGradingStateGetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingStateRepository(db)
	ctx := context.Background()

	state, created, err := repo.GetOrCreate(ctx, "anon-1", "block-1")
	require.NoError(t, err)
	require.True(t, created)

	data, err := state.Data()
	require.NoError(t, err)
	require.Nil(t, data.StaffScore)
	require.Empty(t, data.Comment)

	again, created, err := repo.GetOrCreate(ctx, "anon-1", "block-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, state.ID, again.ID)
}

func TestGradingStateUpdateRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingStateRepository(db)
	ctx := context.Background()

	state, _, err := repo.GetOrCreate(ctx, "anon-1", "block-1")
	require.NoError(t, err)

	pending := 7
	sha := "deadbeef"
	data := models.GradingStateData{StaffScore: &pending, Comment: "solid work", AnnotatedSHA1: &sha}
	require.NoError(t, state.SetData(data))
	require.NoError(t, repo.Update(ctx, &state))

	fetched, err := repo.ByModuleID(ctx, state.ID)
	require.NoError(t, err)
	roundTripped, err := fetched.Data()
	require.NoError(t, err)
	require.Equal(t, 7, *roundTripped.StaffScore)
	require.Equal(t, "solid work", roundTripped.Comment)
	require.Equal(t, "deadbeef", *roundTripped.AnnotatedSHA1)
}

func TestGradingStateRejectsForeignDocument(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingStateRepository(db)
	ctx := context.Background()

	corrupted := models.GradingState{
		StudentID: "anon-2",
		BlockID:   "block-1",
		State:     datatypes.JSON(`{"staff_score": 5, "unexpected_key": true}`),
	}
	require.NoError(t, db.Create(&corrupted).Error)

	_, err := repo.ByModuleID(ctx, corrupted.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed validation")
}

func TestGradingStateRejectsMalformedDocument(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradingStateRepository(db)
	ctx := context.Background()

	cases := []struct {
		name  string
		state string
		want  string
	}{
		{name: "truncated json", state: `{"staff_score": 5`, want: "not valid JSON"},
		{name: "fractional score", state: `{"staff_score": 5.5}`, want: "failed validation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := models.GradingState{
				StudentID: "anon-" + tc.name,
				BlockID:   "block-1",
				State:     datatypes.JSON(tc.state),
			}
			require.NoError(t, db.Create(&broken).Error)

			_, err := repo.ByModuleID(ctx, broken.ID)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
