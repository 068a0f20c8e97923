package service

import (
	"context"
	"io"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/models"
)

func (e *serviceEnv) grading(t *testing.T, cache *redis.Client, ttl time.Duration) GradingService {
	t.Helper()
	return NewGradingService(e.blocks, e.submissions, e.scores, e.states, e.students, e.store, cache, ttl, 1024, testSupport, zerolog.Nop())
}

func TestGradingRosterTwoTierScores(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay", Points: 10})
	svc := env.grading(t, nil, 0)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "essay.txt", true, time.Now().Add(-time.Hour))

	staff := Actor{Username: "grader", Role: RoleStaff}
	instructor := Actor{Username: "prof", Role: RoleInstructor}

	data, err := svc.StaffGradingData(ctx, block.ID, staff)
	require.NoError(t, err)
	require.Len(t, data.Assignments, 1)
	row := data.Assignments[0]
	require.Equal(t, "alice", row.Username)
	require.Nil(t, row.Score)
	require.False(t, row.Approved)
	require.True(t, row.MayGrade)
	require.True(t, row.Finalized)

	// A plain staff grade stays pending: no authoritative score row yet.
	data, err = svc.EnterGrade(ctx, block.ID, staff, dto.EnterGradeRequest{ModuleID: row.ModuleID, Grade: "7", Comment: "solid work"})
	require.NoError(t, err)
	row = data.Assignments[0]
	require.NotNil(t, row.Score)
	require.Equal(t, 7, *row.Score)
	require.False(t, row.Approved)
	require.Equal(t, "solid work", row.Comment)

	item := models.StudentItem{StudentID: "anon-1", CourseID: block.Course, ItemID: block.ID, ItemType: models.ItemType}
	score, err := env.scores.Get(ctx, item)
	require.NoError(t, err)
	require.Nil(t, score)

	// The pending score is visible to the instructor as needing approval.
	data, err = svc.StaffGradingData(ctx, block.ID, instructor)
	require.NoError(t, err)
	require.True(t, data.Assignments[0].NeedsApproval)

	// An instructor grade commits the authoritative score.
	data, err = svc.EnterGrade(ctx, block.ID, instructor, dto.EnterGradeRequest{ModuleID: row.ModuleID, Grade: "9", Comment: "approved"})
	require.NoError(t, err)
	row = data.Assignments[0]
	require.NotNil(t, row.Score)
	require.Equal(t, 9, *row.Score)
	require.True(t, row.Approved)
	require.False(t, row.NeedsApproval)

	score, err = env.scores.Get(ctx, item)
	require.NoError(t, err)
	require.NotNil(t, score)
	require.Equal(t, 9, score.PointsEarned)
	require.Equal(t, 10, score.PointsPossible)

	// Once approved, a plain staff member may no longer regrade.
	data, err = svc.StaffGradingData(ctx, block.ID, staff)
	require.NoError(t, err)
	require.False(t, data.Assignments[0].MayGrade)
}

func TestGradingEnterGradeRejectsNonInteger(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.grading(t, nil, 0)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "essay.txt", true, time.Now())

	data, err := svc.StaffGradingData(ctx, block.ID, Actor{Username: "grader", Role: RoleStaff})
	require.NoError(t, err)
	moduleID := data.Assignments[0].ModuleID

	for _, grade := range []string{"", "  ", "seven", "7.5"} {
		_, err := svc.EnterGrade(ctx, block.ID, Actor{Username: "grader", Role: RoleStaff}, dto.EnterGradeRequest{ModuleID: moduleID, Grade: grade, Comment: "ignored"})
		require.ErrorIs(t, err, ErrInvalidGrade)
	}

	// A rejected grade leaves the stored state untouched.
	state, err := env.states.ByModuleID(ctx, moduleID)
	require.NoError(t, err)
	stateData, err := state.Data()
	require.NoError(t, err)
	require.Nil(t, stateData.StaffScore)
	require.Empty(t, stateData.Comment)
}

func TestGradingCommentIsSanitized(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.grading(t, nil, 0)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "essay.txt", true, time.Now())

	data, err := svc.StaffGradingData(ctx, block.ID, Actor{Username: "grader", Role: RoleStaff})
	require.NoError(t, err)

	data, err = svc.EnterGrade(ctx, block.ID, Actor{Username: "grader", Role: RoleStaff}, dto.EnterGradeRequest{
		ModuleID: data.Assignments[0].ModuleID,
		Grade:    "5",
		Comment:  `nice <script>alert("x")</script>work`,
	})
	require.NoError(t, err)
	require.NotContains(t, data.Assignments[0].Comment, "<script>")
	require.Contains(t, data.Assignments[0].Comment, "nice")
}

func TestGradingRemoveGradeClearsEverything(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay", Points: 10})
	svc := env.grading(t, nil, 0)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "essay.txt", true, time.Now())

	instructor := Actor{Username: "prof", Role: RoleInstructor}
	data, err := svc.StaffGradingData(ctx, block.ID, instructor)
	require.NoError(t, err)
	moduleID := data.Assignments[0].ModuleID

	_, err = svc.EnterGrade(ctx, block.ID, instructor, dto.EnterGradeRequest{ModuleID: moduleID, Grade: "8", Comment: "good"})
	require.NoError(t, err)
	_, err = svc.AnnotateUpload(ctx, block.ID, moduleID, buildFileHeader(t, "marked.txt", []byte("red ink")))
	require.NoError(t, err)

	data, err = svc.RemoveGrade(ctx, block.ID, instructor, dto.RemoveGradeRequest{ModuleID: moduleID, StudentID: "anon-1"})
	require.NoError(t, err)
	row := data.Assignments[0]
	require.Nil(t, row.Score)
	require.False(t, row.Approved)
	require.Nil(t, row.AnnotatedFilename)
	require.Empty(t, row.Comment)

	item := models.StudentItem{StudentID: "anon-1", CourseID: block.Course, ItemID: block.ID, ItemType: models.ItemType}
	score, err := env.scores.Get(ctx, item)
	require.NoError(t, err)
	require.Nil(t, score)

	state, err := env.states.ByModuleID(ctx, moduleID)
	require.NoError(t, err)
	stateData, err := state.Data()
	require.NoError(t, err)
	require.Nil(t, stateData.StaffScore)
	require.Nil(t, stateData.AnnotatedSHA1)
	require.Nil(t, stateData.AnnotatedTimestamp)
}

func TestGradingAnnotateUploadRoundTrip(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.grading(t, nil, 0)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "essay.txt", true, time.Now())

	data, err := svc.StaffGradingData(ctx, block.ID, Actor{Username: "grader", Role: RoleStaff})
	require.NoError(t, err)
	moduleID := data.Assignments[0].ModuleID

	content := []byte("annotated feedback")
	data, err = svc.AnnotateUpload(ctx, block.ID, moduleID, buildFileHeader(t, "feedback.txt", content))
	require.NoError(t, err)
	require.NotNil(t, data.Assignments[0].AnnotatedFilename)
	require.Equal(t, "feedback.txt", *data.Assignments[0].AnnotatedFilename)

	download, err := svc.AnnotatedDownload(ctx, block.ID, moduleID)
	require.NoError(t, err)
	defer download.Content.Close()
	got, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestGradingRosterSkipsUnmappedStudents(t *testing.T) {
	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.grading(t, nil, 0)

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "a.txt", true, time.Now())
	// No student row maps anon-ghost back to a user.
	env.createSubmission(t, block.ID, "anon-ghost", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "b.txt", true, time.Now())

	data, err := svc.StaffGradingData(context.Background(), block.ID, Actor{Username: "grader", Role: RoleStaff})
	require.NoError(t, err)
	require.Len(t, data.Assignments, 1)
	require.Equal(t, "alice", data.Assignments[0].Username)
}

func TestGradingRosterCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	cache := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	env := newServiceEnv(t)
	block := env.createBlock(t, models.Block{ID: "block-1", DisplayName: "Essay"})
	svc := env.grading(t, cache, time.Minute)
	ctx := context.Background()

	env.createStudent(t, "anon-1", "alice")
	env.createSubmission(t, block.ID, "anon-1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "a.txt", true, time.Now().Add(-time.Hour))

	staff := Actor{Username: "grader", Role: RoleStaff}
	first, err := svc.StaffGradingData(ctx, block.ID, staff)
	require.NoError(t, err)
	require.Len(t, first.Assignments, 1)

	// A row added behind the cache is invisible until invalidation.
	env.createStudent(t, "anon-2", "bob")
	env.createSubmission(t, block.ID, "anon-2", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "b.txt", true, time.Now())

	cached, err := svc.StaffGradingData(ctx, block.ID, staff)
	require.NoError(t, err)
	require.Len(t, cached.Assignments, 1)

	// Entering a grade invalidates both role variants of the roster.
	_, err = svc.EnterGrade(ctx, block.ID, staff, dto.EnterGradeRequest{ModuleID: first.Assignments[0].ModuleID, Grade: "3"})
	require.NoError(t, err)

	refreshed, err := svc.StaffGradingData(ctx, block.ID, staff)
	require.NoError(t, err)
	require.Len(t, refreshed.Assignments, 2)
}
