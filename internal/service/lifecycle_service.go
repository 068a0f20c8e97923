package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/observability"
	"github.com/open-craft/sga-api/internal/policy"
	"github.com/open-craft/sga-api/internal/repository"
	"github.com/open-craft/sga-api/internal/storage"
)

// LifecycleService drives the student-facing submission workflow: uploads,
// finalization, state rendering, downloads and studio settings.
type LifecycleService interface {
	StudentState(ctx context.Context, blockID, studentID string, staffViewer bool) (dto.StudentStateResponse, error)
	SaveSettings(ctx context.Context, blockID string, payload dto.SaveSettingsRequest) error
	Upload(ctx context.Context, blockID, studentID string, file *multipart.FileHeader) (dto.StudentStateResponse, error)
	Finalize(ctx context.Context, blockID, studentID string) (dto.StudentStateResponse, error)
	DownloadSubmission(ctx context.Context, blockID, studentID string, staffFacing bool) (Download, error)
	DownloadAnnotated(ctx context.Context, blockID, studentID string, staffFacing bool) (Download, error)
}

type lifecycleService struct {
	blocks       repository.BlockRepository
	submissions  repository.SubmissionRepository
	scores       repository.ScoreRepository
	states       repository.GradingStateRepository
	store        storage.Store
	maxFileSize  int64
	supportEmail string
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewLifecycleService constructs the lifecycle service.
func NewLifecycleService(
	blocks repository.BlockRepository,
	submissions repository.SubmissionRepository,
	scores repository.ScoreRepository,
	states repository.GradingStateRepository,
	store storage.Store,
	maxFileSize int64,
	supportEmail string,
	logger zerolog.Logger,
) LifecycleService {
	return &lifecycleService{
		blocks:       blocks,
		submissions:  submissions,
		scores:       scores,
		states:       states,
		store:        store,
		maxFileSize:  maxFileSize,
		supportEmail: supportEmail,
		logger:       logger.With().Str("component", "lifecycle_service").Logger(),
		tracer:       otel.Tracer("github.com/open-craft/sga-api/internal/service/lifecycle"),
		now:          time.Now,
	}
}

func (s *lifecycleService) block(ctx context.Context, blockID string) (models.Block, error) {
	block, err := s.blocks.Get(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Block{}, ErrBlockNotFound
		}
		return models.Block{}, err
	}
	return block, nil
}

func studentItem(block models.Block, studentID string) models.StudentItem {
	return models.StudentItem{
		StudentID: studentID,
		CourseID:  block.Course,
		ItemID:    block.ID,
		ItemType:  models.ItemType,
	}
}

// uploadAllowed is the single gate for new uploads: the assignment must not be
// past due, no authoritative score may exist, and the current submission must
// not be finalized.
func (s *lifecycleService) uploadAllowed(ctx context.Context, block models.Block, submission *models.Submission, item models.StudentItem) (bool, error) {
	if block.PastDue(s.now()) {
		return false, nil
	}

	score, err := s.scores.Get(ctx, item)
	if err != nil {
		return false, err
	}
	if score != nil {
		return false, nil
	}

	return submission == nil || !submission.IsFinalized(), nil
}

func (s *lifecycleService) StudentState(ctx context.Context, blockID, studentID string, staffViewer bool) (dto.StudentStateResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	return s.studentState(ctx, block, studentID, staffViewer)
}

func (s *lifecycleService) studentState(ctx context.Context, block models.Block, studentID string, staffViewer bool) (dto.StudentStateResponse, error) {
	item := studentItem(block, studentID)

	submission, err := s.submissions.Latest(ctx, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	var uploaded *dto.UploadedFile
	if submission != nil {
		answer, err := submission.AnswerData()
		if err != nil {
			return dto.StudentStateResponse{}, err
		}
		if answer.Filename != "" {
			uploaded = &dto.UploadedFile{Filename: answer.Filename}
		}
	}

	state, created, err := s.states.GetOrCreate(ctx, studentID, block.ID)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	if created {
		s.logger.Info().
			Str("course", block.Course).
			Str("block", block.ID).
			Str("student", studentID).
			Msg("grading state initialized")
	}

	data, err := state.Data()
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	var annotated *dto.UploadedFile
	if data.AnnotatedSHA1 != nil && data.AnnotatedFilename != nil {
		annotated = &dto.UploadedFile{Filename: *data.AnnotatedFilename}
	}

	score, err := s.scores.Get(ctx, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	var graded *dto.GradedInfo
	if score != nil {
		graded = &dto.GradedInfo{Score: score.PointsEarned, Comment: data.Comment}
	}

	allowed, err := s.uploadAllowed(ctx, block, submission, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	attempt := assignmentAttempt{
		finalized:     submission != nil && submission.IsFinalized(),
		pastDue:       block.PastDue(s.now()),
		uploadAllowed: allowed,
	}
	answerAvailable := policy.AnswerAvailable(policy.Mode(block.ShowAnswer), staffViewer, attempt)

	response := dto.StudentStateResponse{
		DisplayName:     block.DisplayName,
		Uploaded:        uploaded,
		Annotated:       annotated,
		Graded:          graded,
		MaxScore:        block.MaxScore(),
		UploadAllowed:   allowed,
		MaxFileSize:     s.maxFileSize,
		AnswerAvailable: answerAvailable,
	}
	if answerAvailable {
		response.Solution = block.Solution
	}
	if staffViewer {
		response.StaffDebug = s.staffDebug(block)
	}

	return response, nil
}

// staffDebug assembles the explicit (name, value) field listing for the staff
// debug panel.
func (s *lifecycleService) staffDebug(block models.Block) *dto.StaffDebugInfo {
	return &dto.StaffDebugInfo{
		IsReleased: block.Released(s.now()),
		Location:   fmt.Sprintf("%s/%s/%s/%s", block.Org, block.Course, block.BlockType, block.ID),
		Category:   "StaffGradedAssignment",
		Fields: []dto.DebugField{
			{Name: "display_name", Value: block.DisplayName},
			{Name: "points", Value: block.Points},
			{Name: "weight", Value: block.Weight},
			{Name: "due_date", Value: block.DueDate},
			{Name: "grace_period_seconds", Value: block.GracePeriodSeconds},
			{Name: "show_answer", Value: block.ShowAnswer},
			{Name: "solution", Value: block.Solution},
		},
	}
}

func (s *lifecycleService) SaveSettings(ctx context.Context, blockID string, payload dto.SaveSettingsRequest) error {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return err
	}

	if payload.DisplayName != "" {
		block.DisplayName = payload.DisplayName
	}

	if payload.Points != "" {
		points, err := strconv.Atoi(strings.TrimSpace(payload.Points))
		if err != nil {
			return ErrPointsNotInteger
		}
		if points < 0 {
			return ErrPointsNegative
		}
		block.Points = points
	}

	if payload.Weight != "" {
		weight, err := strconv.ParseFloat(strings.TrimSpace(payload.Weight), 64)
		if err != nil {
			return ErrWeightNotDecimal
		}
		if weight < 0 {
			return ErrWeightNegative
		}
		block.Weight = &weight
	}

	return s.blocks.Update(ctx, &block)
}

func (s *lifecycleService) Upload(ctx context.Context, blockID, studentID string, file *multipart.FileHeader) (dto.StudentStateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("sga.block_id", blockID),
		attribute.String("sga.student_id", studentID),
	)

	block, err := s.block(ctx, blockID)
	if err != nil {
		span.RecordError(err)
		return dto.StudentStateResponse{}, err
	}

	item := studentItem(block, studentID)
	current, err := s.submissions.Latest(ctx, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	allowed, err := s.uploadAllowed(ctx, block, current, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	if !allowed {
		observability.UploadRejected().WithLabelValues("not_allowed").Inc()
		span.SetStatus(codes.Error, "upload not allowed")
		return dto.StudentStateResponse{}, ErrNotAllowed
	}

	if file.Size > s.maxFileSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.StudentStateResponse{}, FileTooLargeError{Limit: s.maxFileSize}
	}

	handle, err := file.Open()
	if err != nil {
		return dto.StudentStateResponse{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer handle.Close()

	sha1Hex, err := storage.HashReader(handle)
	if err != nil {
		return dto.StudentStateResponse{}, fmt.Errorf("failed to fingerprint upload: %w", err)
	}

	answer := models.Answer{
		SHA1:      sha1Hex,
		Filename:  file.Filename,
		Mimetype:  detectMimetype(file.Filename, handle),
		Finalized: boolPtr(false),
	}
	payload, err := json.Marshal(answer)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	submission := models.Submission{
		UUID:      uuid.NewString(),
		StudentID: item.StudentID,
		CourseID:  item.CourseID,
		ItemID:    item.ItemID,
		ItemType:  item.ItemType,
		Answer:    datatypes.JSON(payload),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.StudentStateResponse{}, err
	}

	// Content addressing makes the blob write idempotent: identical bytes map
	// to an identical path, so an existing blob is left alone.
	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, sha1Hex, file.Filename)
	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	if !exists {
		if err := s.store.Save(ctx, path, handle); err != nil {
			return dto.StudentStateResponse{}, err
		}
	}

	observability.UploadRequests().WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.String("sga.sha1", sha1Hex))
	s.logger.Info().
		Str("block", block.ID).
		Str("student", studentID).
		Str("sha1", sha1Hex).
		Str("filename", file.Filename).
		Msg("submission uploaded")

	return s.studentState(ctx, block, studentID, false)
}

func (s *lifecycleService) Finalize(ctx context.Context, blockID, studentID string) (dto.StudentStateResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	item := studentItem(block, studentID)
	submission, err := s.submissions.Latest(ctx, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	if submission == nil {
		return dto.StudentStateResponse{}, ErrSubmissionNotFound
	}

	// Finalizing twice is a no-op: the flag is checked before mutating so the
	// submitted_at timestamp is set exactly once.
	if submission.IsFinalized() {
		return s.studentState(ctx, block, studentID, false)
	}

	allowed, err := s.uploadAllowed(ctx, block, submission, item)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	if !allowed {
		return dto.StudentStateResponse{}, ErrNotAllowed
	}

	answer, err := submission.AnswerData()
	if err != nil {
		return dto.StudentStateResponse{}, err
	}
	answer.Finalized = boolPtr(true)
	payload, err := json.Marshal(answer)
	if err != nil {
		return dto.StudentStateResponse{}, err
	}

	submittedAt := s.now()
	submission.Answer = datatypes.JSON(payload)
	submission.SubmittedAt = &submittedAt
	if err := s.submissions.Save(ctx, submission); err != nil {
		return dto.StudentStateResponse{}, err
	}

	s.logger.Info().
		Str("block", block.ID).
		Str("student", studentID).
		Str("submission", submission.UUID).
		Msg("submission finalized")

	return s.studentState(ctx, block, studentID, false)
}

func (s *lifecycleService) DownloadSubmission(ctx context.Context, blockID, studentID string, staffFacing bool) (Download, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return Download{}, err
	}

	submission, err := s.submissions.Latest(ctx, studentItem(block, studentID))
	if err != nil {
		return Download{}, err
	}
	if submission == nil {
		return Download{}, ErrSubmissionNotFound
	}

	answer, err := submission.AnswerData()
	if err != nil {
		return Download{}, err
	}
	if answer.SHA1 == "" {
		return Download{}, ErrSubmissionNotFound
	}

	path := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, answer.SHA1, answer.Filename)
	return openBlob(ctx, s.store, path, answer.Filename, answer.Mimetype, s.supportEmail, staffFacing)
}

func (s *lifecycleService) DownloadAnnotated(ctx context.Context, blockID, studentID string, staffFacing bool) (Download, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return Download{}, err
	}

	state, _, err := s.states.GetOrCreate(ctx, studentID, block.ID)
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
	return openBlob(ctx, s.store, path, *data.AnnotatedFilename, mimetypeValue, s.supportEmail, staffFacing)
}

// detectMimetype prefers the original filename's extension and falls back to
// content sniffing when the extension is unknown. The reader is rewound either
// way.
func detectMimetype(filename string, handle multipart.File) string {
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}

	detected, err := mimetype.DetectReader(handle)
	if _, seekErr := handle.Seek(0, 0); seekErr != nil {
		return ""
	}
	if err != nil {
		return ""
	}
	return detected.String()
}

func boolPtr(v bool) *bool {
	return &v
}
