package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/storage"
)

func TestLifecycleUploadStoresSubmissionAndBlob(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay", Points: 10})
	svc := env.lifecycle(t, 1024)
	ctx := context.Background()

	content := []byte("my essay submission")
	file := buildFileHeader(t, "essay.txt", content)

	state, err := svc.Upload(ctx, block.ID, "anon-1", file)
	require.NoError(t, err)
	require.NotNil(t, state.Uploaded)
	require.Equal(t, "essay.txt", state.Uploaded.Filename)
	require.True(t, state.UploadAllowed)
	require.Equal(t, 10, state.MaxScore)

	digest := sha1.Sum(content)
	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, hex.EncodeToString(digest[:]), "essay.txt")
	exists, err := env.store.Exists(ctx, path)
	require.NoError(t, err)
	require.True(t, exists)

	download, err := svc.DownloadSubmission(ctx, block.ID, "anon-1", false)
	require.NoError(t, err)
	defer download.Content.Close()
	require.Equal(t, "essay.txt", download.Filename)
	got, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestLifecycleUploadIdenticalContentKeepsHistory(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.lifecycle(t, 1024)
	ctx := context.Background()

	content := []byte("same bytes both times")
	_, err := svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "v1.txt", content))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "v1.txt", content))
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Submission{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestLifecycleUploadGate(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)

	t.Run("past due", func(t *testing.T) {
		env := newServiceEnv(t)
		block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay", DueDate: timePtr(past)})
		svc := env.lifecycle(t, 1024)

		_, err := svc.Upload(context.Background(), block.ID, "anon-1", buildFileHeader(t, "late.txt", []byte("late")))
		require.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("grace period keeps the window open", func(t *testing.T) {
		env := newServiceEnv(t)
		block := env.createBlock(t, models.Block{
			ID: "block-1", DisplayName: "Essay",
			DueDate: timePtr(past), GracePeriodSeconds: 3 * 60 * 60,
		})
		svc := env.lifecycle(t, 1024)

		_, err := svc.Upload(context.Background(), block.ID, "anon-1", buildFileHeader(t, "ok.txt", []byte("in time")))
		require.NoError(t, err)
	})

	t.Run("already scored", func(t *testing.T) {
		env := newServiceEnv(t)
		block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
		svc := env.lifecycle(t, 1024)
		ctx := context.Background()

		item := models.StudentItem{StudentID: "anon-1", CourseID: block.Course, ItemID: block.ID, ItemType: models.ItemType}
		require.NoError(t, env.scores.Set(ctx, item, 7, 10))

		_, err := svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "again.txt", []byte("again")))
		require.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("already finalized", func(t *testing.T) {
		env := newServiceEnv(t)
		block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
		svc := env.lifecycle(t, 1024)
		ctx := context.Background()

		_, err := svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "final.txt", []byte("final")))
		require.NoError(t, err)
		_, err = svc.Finalize(ctx, block.ID, "anon-1")
		require.NoError(t, err)

		_, err = svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "extra.txt", []byte("extra")))
		require.ErrorIs(t, err, ErrNotAllowed)
	})
}

func TestLifecycleUploadTooLarge(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.lifecycle(t, 8)

	_, err := svc.Upload(context.Background(), block.ID, "anon-1", buildFileHeader(t, "big.txt", []byte("way past eight bytes")))
	var tooLarge FileTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.EqualValues(t, 8, tooLarge.Limit)
}

func TestLifecycleFinalizeSetsTimestampOnce(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.lifecycle(t, 1024)
	ctx := context.Background()

	_, err := svc.Upload(ctx, block.ID, "anon-1", buildFileHeader(t, "essay.txt", []byte("done")))
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, block.ID, "anon-1")
	require.NoError(t, err)

	item := models.StudentItem{StudentID: "anon-1", CourseID: block.Course, ItemID: block.ID, ItemType: models.ItemType}
	first, err := env.submissions.Latest(ctx, item)
	require.NoError(t, err)
	require.NotNil(t, first.SubmittedAt)
	require.True(t, first.IsFinalized())

	_, err = svc.Finalize(ctx, block.ID, "anon-1")
	require.NoError(t, err)

	second, err := env.submissions.Latest(ctx, item)
	require.NoError(t, err)
	require.Equal(t, first.SubmittedAt.Unix(), second.SubmittedAt.Unix())
}

func TestLifecycleFinalizeWithoutUpload(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.lifecycle(t, 1024)

	_, err := svc.Finalize(context.Background(), block.ID, "anon-1")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestLifecycleSaveSettings(t *testing.T) {
	cases := []struct {
		name    string
		points  string
		weight  string
		wantErr error
	}{
		{name: "valid", points: "25", weight: "0.5"},
		{name: "points not integer", points: "many", wantErr: ErrPointsNotInteger},
		{name: "points decimal", points: "2.5", wantErr: ErrPointsNotInteger},
		{name: "points negative", points: "-3", wantErr: ErrPointsNegative},
		{name: "weight not decimal", weight: "heavy", wantErr: ErrWeightNotDecimal},
		{name: "weight negative", weight: "-0.1", wantErr: ErrWeightNegative},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newServiceEnv(t)
			block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay", Points: 10})
			svc := env.lifecycle(t, 1024)

			err := svc.SaveSettings(context.Background(), block.ID, dto.SaveSettingsRequest{
				DisplayName: "Renamed",
				Points:      tc.points,
				Weight:      tc.weight,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				var unchanged models.Block
				require.NoError(t, env.db.First(&unchanged, "id = ?", block.ID).Error)
				require.Equal(t, "Essay", unchanged.DisplayName)
				return
			}

			require.NoError(t, err)
			var updated models.Block
			require.NoError(t, env.db.First(&updated, "id = ?", block.ID).Error)
			require.Equal(t, "Renamed", updated.DisplayName)
			require.Equal(t, 25, updated.Points)
			require.NotNil(t, updated.Weight)
			require.InDelta(t, 0.5, *updated.Weight, 1e-9)
		})
	}
}

func TestLifecycleDownloadMissingBlobMessages(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.lifecycle(t, 1024)
	ctx := context.Background()

	// Submission row exists but its blob was never written.
	env.createSubmission(t, block.ID, "anon-1", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", "ghost.txt", true, time.Now())

	_, err := svc.DownloadSubmission(ctx, block.ID, "anon-1", false)
	var studentErr BlobNotFoundError
	require.ErrorAs(t, err, &studentErr)
	require.False(t, studentErr.StaffFacing)
	require.Contains(t, studentErr.Error(), "try uploading it again")

	_, err = svc.DownloadSubmission(ctx, block.ID, "anon-1", true)
	var staffErr BlobNotFoundError
	require.ErrorAs(t, err, &staffErr)
	require.True(t, staffErr.StaffFacing)
	require.Contains(t, staffErr.Error(), testSupport)
}

func TestLifecycleStudentStateAnswerVisibility(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{
		ID: "block-1", DisplayName: "Essay",
		ShowAnswer: "past_due", Solution: "<p>model answer</p>",
		DueDate: timePtr(time.Now().Add(-time.Hour)),
	})
	svc := env.lifecycle(t, 1024)

	state, err := svc.StudentState(context.Background(), block.ID, "anon-1", false)
	require.NoError(t, err)
	require.True(t, state.AnswerAvailable)
	require.Equal(t, "<p>model answer</p>", state.Solution)
	require.False(t, state.UploadAllowed)
	require.Nil(t, state.StaffDebug)
}

func TestLifecycleStudentStateWithholdsSolution(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{
		ID: "block-1", DisplayName: "Essay",
		ShowAnswer: "never", Solution: "<p>model answer</p>",
	})
	svc := env.lifecycle(t, 1024)

	state, err := svc.StudentState(context.Background(), block.ID, "anon-1", true)
	require.NoError(t, err)
	require.False(t, state.AnswerAvailable)
	require.Empty(t, state.Solution)
	require.NotNil(t, state.StaffDebug)
}

func TestLifecycleBlockNotFound(t *testing.T) {
	env := newServiceEnv(t)
	svc := env.lifecycle(t, 1024)

	_, err := svc.StudentState(context.Background(), "missing", "anon-1", false)
	require.True(t, errors.Is(err, ErrBlockNotFound))
}
