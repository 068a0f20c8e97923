package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/repository"
	"github.com/open-craft/sga-api/internal/storage"
)

// RoleStaff and RoleInstructor are the grading-capable roles. Grades entered
// by plain staff stay pending until an instructor commits them.
const (
	RoleStaff      = "staff"
	RoleInstructor = "instructor"
)

// Actor identifies the staff member performing a grading operation.
type Actor struct {
	Username string
	Role     string
}

// IsInstructor reports whether the actor may commit authoritative scores.
func (a Actor) IsInstructor() bool {
	return strings.EqualFold(a.Role, RoleInstructor)
}

// GradingService drives the staff-facing workflow: the grading roster, grade
// entry and removal, and annotated file handling.
type GradingService interface {
	StaffGradingData(ctx context.Context, blockID string, actor Actor) (dto.StaffGradingDataResponse, error)
	EnterGrade(ctx context.Context, blockID string, actor Actor, payload dto.EnterGradeRequest) (dto.StaffGradingDataResponse, error)
	RemoveGrade(ctx context.Context, blockID string, actor Actor, payload dto.RemoveGradeRequest) (dto.StaffGradingDataResponse, error)
	AnnotateUpload(ctx context.Context, blockID string, moduleID uint, file *multipart.FileHeader) (dto.StaffGradingDataResponse, error)
	AnnotatedDownload(ctx context.Context, blockID string, moduleID uint) (Download, error)
}

type gradingService struct {
	blocks       repository.BlockRepository
	submissions  repository.SubmissionRepository
	scores       repository.ScoreRepository
	states       repository.GradingStateRepository
	students     repository.StudentRepository
	store        storage.Store
	cache        *redis.Client
	cacheTTL     time.Duration
	maxFileSize  int64
	supportEmail string
	sanitizer    *bluemonday.Policy
	logger       zerolog.Logger
	now          func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(
	blocks repository.BlockRepository,
	submissions repository.SubmissionRepository,
	scores repository.ScoreRepository,
	states repository.GradingStateRepository,
	students repository.StudentRepository,
	store storage.Store,
	cache *redis.Client,
	cacheTTL time.Duration,
	maxFileSize int64,
	supportEmail string,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		blocks:       blocks,
		submissions:  submissions,
		scores:       scores,
		states:       states,
		students:     students,
		store:        store,
		cache:        cache,
		cacheTTL:     cacheTTL,
		maxFileSize:  maxFileSize,
		supportEmail: supportEmail,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "grading_service").Logger(),
		now:          time.Now,
	}
}

func (s *gradingService) block(ctx context.Context, blockID string) (models.Block, error) {
	block, err := s.blocks.Get(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Block{}, ErrBlockNotFound
		}
		return models.Block{}, err
	}
	return block, nil
}

func rosterCacheKey(blockID string, actor Actor) string {
	role := RoleStaff
	if actor.IsInstructor() {
		role = RoleInstructor
	}
	return fmt.Sprintf("roster:block:%s:role:%s", blockID, role)
}

func (s *gradingService) invalidateRoster(ctx context.Context, blockID string) {
	if s.cache == nil {
		return
	}
	keys := []string{
		fmt.Sprintf("roster:block:%s:role:%s", blockID, RoleStaff),
		fmt.Sprintf("roster:block:%s:role:%s", blockID, RoleInstructor),
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Str("block", blockID).Msg("failed to invalidate roster cache")
	}
}

func (s *gradingService) StaffGradingData(ctx context.Context, blockID string, actor Actor) (dto.StaffGradingDataResponse, error) {
	cacheKey := rosterCacheKey(blockID, actor)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StaffGradingDataResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("block", blockID).Msg("roster cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read roster cache")
		}
	}

	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	response, err := s.buildRoster(ctx, block, actor)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store roster cache")
			}
		}
	}

	return response, nil
}

func (s *gradingService) buildRoster(ctx context.Context, block models.Block, actor Actor) (dto.StaffGradingDataResponse, error) {
	studentIDs, err := s.submissions.StudentIDsForItem(ctx, block.Course, block.ID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	instructor := actor.IsInstructor()
	rows := make([]dto.RosterRow, 0, len(studentIDs))

	for _, studentID := range studentIDs {
		item := models.StudentItem{
			StudentID: studentID,
			CourseID:  block.Course,
			ItemID:    block.ID,
			ItemType:  models.ItemType,
		}

		submission, err := s.submissions.Latest(ctx, item)
		if err != nil {
			return dto.StaffGradingDataResponse{}, err
		}
		if submission == nil {
			continue
		}

		answer, err := submission.AnswerData()
		if err != nil {
			return dto.StaffGradingDataResponse{}, err
		}

		student, err := s.students.ByAnonymousID(ctx, studentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Str("student", studentID).Msg("no user mapped for anonymous id, skipping roster row")
				continue
			}
			return dto.StaffGradingDataResponse{}, err
		}

		state, created, err := s.states.GetOrCreate(ctx, studentID, block.ID)
		if err != nil {
			return dto.StaffGradingDataResponse{}, err
		}
		if created {
			s.logger.Info().
				Str("course", block.Course).
				Str("block", block.ID).
				Str("student", student.Username).
				Msg("grading state initialized")
		}

		data, err := state.Data()
		if err != nil {
			return dto.StaffGradingDataResponse{}, err
		}

		authoritative, err := s.scores.Get(ctx, item)
		if err != nil {
			return dto.StaffGradingDataResponse{}, err
		}

		approved := authoritative != nil
		var score *int
		needsApproval := false
		if authoritative != nil {
			points := authoritative.PointsEarned
			score = &points
		} else {
			score = data.StaffScore
			needsApproval = score != nil
		}

		rows = append(rows, dto.RosterRow{
			ModuleID:          state.ID,
			StudentID:         studentID,
			SubmissionID:      submission.UUID,
			Username:          student.Username,
			FullName:          student.FullName,
			Filename:          answer.Filename,
			Timestamp:         submission.CreatedAt.UTC().Format(time.RFC3339),
			Score:             score,
			Approved:          approved,
			NeedsApproval:     instructor && needsApproval,
			MayGrade:          instructor || !approved,
			AnnotatedFilename: data.AnnotatedFilename,
			Comment:           data.Comment,
			Finalized:         submission.IsFinalized(),
		})
	}

	return dto.StaffGradingDataResponse{
		Assignments: rows,
		MaxScore:    block.MaxScore(),
		DisplayName: block.DisplayName,
	}, nil
}

func (s *gradingService) EnterGrade(ctx context.Context, blockID string, actor Actor, payload dto.EnterGradeRequest) (dto.StaffGradingDataResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	state, err := s.states.ByModuleID(ctx, payload.ModuleID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	rawGrade := strings.TrimSpace(payload.Grade)
	grade, parseErr := strconv.Atoi(rawGrade)
	if rawGrade == "" || parseErr != nil {
		s.logger.Error().
			Str("course", block.Course).
			Str("block", block.ID).
			Str("student", state.StudentID).
			Str("grade", rawGrade).
			Msg("enter_grade: invalid grade submitted")
		return dto.StaffGradingDataResponse{}, ErrInvalidGrade
	}

	data, err := state.Data()
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	item := models.StudentItem{
		StudentID: state.StudentID,
		CourseID:  block.Course,
		ItemID:    block.ID,
		ItemType:  models.ItemType,
	}

	if actor.IsInstructor() {
		if err := s.scores.Set(ctx, item, grade, block.MaxScore()); err != nil {
			return dto.StaffGradingDataResponse{}, err
		}
	} else {
		data.StaffScore = &grade
	}

	data.Comment = s.sanitizer.Sanitize(payload.Comment)
	if err := state.SetData(data); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}
	if err := s.states.Update(ctx, &state); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	s.invalidateRoster(ctx, blockID)
	s.logger.Info().
		Str("course", block.Course).
		Str("block", block.ID).
		Str("student", state.StudentID).
		Bool("instructor", actor.IsInstructor()).
		Msg("grade entered")

	return s.buildRoster(ctx, block, actor)
}

func (s *gradingService) RemoveGrade(ctx context.Context, blockID string, actor Actor, payload dto.RemoveGradeRequest) (dto.StaffGradingDataResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	item := models.StudentItem{
		StudentID: payload.StudentID,
		CourseID:  block.Course,
		ItemID:    block.ID,
		ItemType:  models.ItemType,
	}
	if err := s.scores.Reset(ctx, item); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	state, err := s.states.ByModuleID(ctx, payload.ModuleID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	// The pending score, comment and the whole annotated_* group are cleared
	// together in a single state write.
	data := models.GradingStateData{}
	data.ClearAnnotation()
	if err := state.SetData(data); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}
	if err := s.states.Update(ctx, &state); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	s.invalidateRoster(ctx, blockID)
	s.logger.Info().
		Str("course", block.Course).
		Str("block", block.ID).
		Str("student", payload.StudentID).
		Msg("grade removed")

	return s.buildRoster(ctx, block, actor)
}

func (s *gradingService) AnnotateUpload(ctx context.Context, blockID string, moduleID uint, file *multipart.FileHeader) (dto.StaffGradingDataResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	if file.Size > s.maxFileSize {
		return dto.StaffGradingDataResponse{}, FileTooLargeError{Limit: s.maxFileSize}
	}

	state, err := s.states.ByModuleID(ctx, moduleID)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	handle, err := file.Open()
	if err != nil {
		return dto.StaffGradingDataResponse{}, fmt.Errorf("failed to open annotated upload: %w", err)
	}
	defer handle.Close()

	sha1Hex, err := storage.HashReader(handle)
	if err != nil {
		return dto.StaffGradingDataResponse{}, fmt.Errorf("failed to fingerprint annotated upload: %w", err)
	}

	mimetypeValue := detectMimetype(file.Filename, handle)

	// A stale annotated blob at the same hash is never overwritten.
	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, sha1Hex, file.Filename)
	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}
	if !exists {
		if err := s.store.Save(ctx, path, handle); err != nil {
			return dto.StaffGradingDataResponse{}, err
		}
	}

	data, err := state.Data()
	if err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	filename := file.Filename
	timestamp := s.now()
	data.AnnotatedSHA1 = &sha1Hex
	data.AnnotatedFilename = &filename
	data.AnnotatedMimetype = &mimetypeValue
	data.AnnotatedTimestamp = &timestamp

	if err := state.SetData(data); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}
	if err := s.states.Update(ctx, &state); err != nil {
		return dto.StaffGradingDataResponse{}, err
	}

	s.invalidateRoster(ctx, blockID)
	s.logger.Info().
		Str("course", block.Course).
		Str("block", block.ID).
		Str("student", state.StudentID).
		Str("filename", filename).
		Msg("annotated file uploaded")

	return s.buildRoster(ctx, block, Actor{Role: RoleStaff})
}

func (s *gradingService) AnnotatedDownload(ctx context.Context, blockID string, moduleID uint) (Download, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return Download{}, err
	}

	state, err := s.states.ByModuleID(ctx, moduleID)
	if err != nil {
		return Download{}, err
	}

	data, err := state.Data()
	if err != nil {
		return Download{}, err
	}
	if data.AnnotatedSHA1 == nil || data.AnnotatedFilename == nil {
		return Download{}, ErrSubmissionNotFound
	}

	mimetypeValue := ""
	if data.AnnotatedMimetype != nil {
		mimetypeValue = *data.AnnotatedMimetype
	}

	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, *data.AnnotatedSHA1, *data.AnnotatedFilename)
	return openBlob(ctx, s.store, path, *data.AnnotatedFilename, mimetypeValue, s.supportEmail, true)
}
