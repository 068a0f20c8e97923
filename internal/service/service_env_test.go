package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/repository"
	"github.com/open-craft/sga-api/internal/storage"
)

const (
	testCourse  = "course-v1:edX+101+2026"
	testOrg     = "edX"
	testSupport = "support@example.com"
)

type serviceEnv struct {
	db          *gorm.DB
	store       *storage.FSStore
	blocks      repository.BlockRepository
	students    repository.StudentRepository
	submissions repository.SubmissionRepository
	scores      repository.ScoreRepository
	states      repository.GradingStateRepository
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Block{}, &models.Student{}, &models.Submission{}, &models.Score{}, &models.GradingState{}))

	store, err := storage.NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	return &serviceEnv{
		db:          db,
		store:       store,
		blocks:      repository.NewBlockRepository(db),
		students:    repository.NewStudentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		scores:      repository.NewScoreRepository(db),
		states:      repository.NewGradingStateRepository(db),
	}
}

func (e *serviceEnv) lifecycle(t *testing.T, maxFileSize int64) LifecycleService {
	t.Helper()
	return NewLifecycleService(e.blocks, e.submissions, e.scores, e.states, e.store, maxFileSize, testSupport, zerolog.Nop())
}

func (e *serviceEnv) createBlock(t *testing.T, block models.Block) models.Block {
	t.Helper()
	if block.Org == "" {
		block.Org = testOrg
	}
	if block.Course == "" {
		block.Course = testCourse
	}
	if block.BlockType == "" {
		block.BlockType = models.ItemType
	}
	require.NoError(t, e.db.Create(&block).Error)
	return block
}

func (e *serviceEnv) createStudent(t *testing.T, anonymousID, username string) models.Student {
	t.Helper()
	student := models.Student{AnonymousID: anonymousID, Username: username, FullName: username + " Fullname"}
	require.NoError(t, e.db.Create(&student).Error)
	return student
}

// createSubmission writes a submission row directly, bypassing the upload
// path, so fixtures control the effective timestamp precisely.
func (e *serviceEnv) createSubmission(t *testing.T, blockID, studentID, sha1Hex, filename string, finalized bool, effective time.Time) models.Submission {
	t.Helper()
	answer := fmt.Sprintf(`{"sha1":%q,"filename":%q,"mimetype":"text/plain","finalized":%t}`, sha1Hex, filename, finalized)
	submission := models.Submission{
		UUID:      fmt.Sprintf("uuid-%s-%s", studentID, sha1Hex[:6]),
		StudentID: studentID,
		CourseID:  testCourse,
		ItemID:    blockID,
		ItemType:  models.ItemType,
		Answer:    datatypes.JSON(answer),
		CreatedAt: effective,
	}
	if finalized {
		submittedAt := effective
		submission.SubmittedAt = &submittedAt
	}
	require.NoError(t, e.db.Create(&submission).Error)
	return submission
}

// saveBlob writes content into the store at the canonical path for the block
// and returns the content's hex digest.
func (e *serviceEnv) saveBlob(t *testing.T, block models.Block, filename string, content []byte) string {
	t.Helper()
	digest := sha1.Sum(content)
	sha1Hex := hex.EncodeToString(digest[:])
	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, sha1Hex, filename)
	require.NoError(t, e.store.Save(context.Background(), path, bytes.NewReader(content)))
	return sha1Hex
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content)) + 1024)
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func timePtr(v time.Time) *time.Time {
	return &v
}
