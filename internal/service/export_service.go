package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/observability"
	"github.com/open-craft/sga-api/internal/repository"
	"github.com/open-craft/sga-api/internal/storage"
)

// Queue dispatches background jobs. *nats.Conn satisfies it.
type Queue interface {
	Publish(subject string, data []byte) error
}

// ExportService prepares and builds bulk submission archives. Preparation is
// request-scoped; the build itself runs out-of-band on a worker.
type ExportService interface {
	Prepare(ctx context.Context, blockID, requester string) (dto.PrepareExportResponse, error)
	Status(ctx context.Context, blockID, requester string) (dto.ExportStatusResponse, error)
	DownloadArchive(ctx context.Context, blockID, requester string) (Download, error)
	Run(ctx context.Context, job dto.ExportJob) error
}

type exportService struct {
	blocks       repository.BlockRepository
	submissions  repository.SubmissionRepository
	students     repository.StudentRepository
	store        storage.Store
	queue        Queue
	subject      string
	supportEmail string
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewExportService constructs the export service.
func NewExportService(
	blocks repository.BlockRepository,
	submissions repository.SubmissionRepository,
	students repository.StudentRepository,
	store storage.Store,
	queue Queue,
	subject string,
	supportEmail string,
	logger zerolog.Logger,
) ExportService {
	return &exportService{
		blocks:       blocks,
		submissions:  submissions,
		students:     students,
		store:        store,
		queue:        queue,
		subject:      subject,
		supportEmail: supportEmail,
		logger:       logger.With().Str("component", "export_service").Logger(),
		tracer:       otel.Tracer("github.com/open-craft/sga-api/internal/service/export"),
		now:          time.Now,
	}
}

// archiveName derives the deterministic artifact name for one staff user's
// export of one block.
func archiveName(requester, blockID, courseID string) string {
	blockHash := md5.Sum([]byte(blockID))
	return fmt.Sprintf("%s_submissions_%s_%s", requester, hex.EncodeToString(blockHash[:]), slug(courseID))
}

// archivePath keys the stored zip by (requester, course, block) so exports by
// different staff users or for different blocks never collide.
func archivePath(block models.Block, requester string) string {
	return fmt.Sprintf("exports/%s/%s/%s.zip", block.Org, slug(block.Course), archiveName(requester, block.ID, block.Course))
}

func slug(value string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, value)
}

func (s *exportService) block(ctx context.Context, blockID string) (models.Block, error) {
	block, err := s.blocks.Get(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Block{}, ErrBlockNotFound
		}
		return models.Block{}, err
	}
	return block, nil
}

func (s *exportService) finalizedSubmissions(ctx context.Context, block models.Block) ([]models.Submission, error) {
	all, err := s.submissions.ListForItem(ctx, block.Course, block.ID)
	if err != nil {
		return nil, err
	}

	finalized := make([]models.Submission, 0, len(all))
	for _, submission := range all {
		if submission.IsFinalized() {
			finalized = append(finalized, submission)
		}
	}
	return finalized, nil
}

// archiveFresh reports whether the stored zip still reflects the current set
// of finalized submissions: its modified time must not predate the newest
// submission and its entry count must match the finalized count, which catches
// a reset that removed a submission without moving the newest timestamp.
func (s *exportService) archiveFresh(ctx context.Context, block models.Block, requester string, finalized []models.Submission) (bool, error) {
	path := archivePath(block, requester)

	modTime, err := s.store.ModTime(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if len(finalized) > 0 {
		newest := finalized[0].EffectiveTime()
		for _, submission := range finalized[1:] {
			if t := submission.EffectiveTime(); t.After(newest) {
				newest = t
			}
		}
		if modTime.Before(newest) {
			return false, nil
		}
	}

	entries, err := s.archiveEntryCount(ctx, path)
	if err != nil {
		return false, err
	}

	return entries == len(finalized), nil
}

func (s *exportService) archiveEntryCount(ctx context.Context, path string) (int, error) {
	reader, err := s.store.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}

	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, err
	}

	return len(archive.File), nil
}

func (s *exportService) Prepare(ctx context.Context, blockID, requester string) (dto.PrepareExportResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.PrepareExportResponse{}, err
	}

	finalized, err := s.finalizedSubmissions(ctx, block)
	if err != nil {
		return dto.PrepareExportResponse{}, err
	}

	fresh, err := s.archiveFresh(ctx, block, requester, finalized)
	if err != nil {
		return dto.PrepareExportResponse{}, err
	}
	if fresh {
		return dto.PrepareExportResponse{Downloadable: true}, nil
	}

	job := dto.ExportJob{BlockID: block.ID, CourseID: block.Course, Requester: requester}
	payload, err := json.Marshal(job)
	if err != nil {
		return dto.PrepareExportResponse{}, err
	}
	if err := s.queue.Publish(s.subject, payload); err != nil {
		return dto.PrepareExportResponse{}, fmt.Errorf("failed to enqueue export job: %w", err)
	}

	observability.ExportJobs().WithLabelValues("enqueued").Inc()
	s.logger.Info().
		Str("block", block.ID).
		Str("requester", requester).
		Msg("export job enqueued")

	return dto.PrepareExportResponse{Downloadable: false}, nil
}

func (s *exportService) Status(ctx context.Context, blockID, requester string) (dto.ExportStatusResponse, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return dto.ExportStatusResponse{}, err
	}

	finalized, err := s.finalizedSubmissions(ctx, block)
	if err != nil {
		return dto.ExportStatusResponse{}, err
	}

	fresh, err := s.archiveFresh(ctx, block, requester, finalized)
	if err != nil {
		return dto.ExportStatusResponse{}, err
	}

	return dto.ExportStatusResponse{ZipAvailable: fresh}, nil
}

func (s *exportService) DownloadArchive(ctx context.Context, blockID, requester string) (Download, error) {
	block, err := s.block(ctx, blockID)
	if err != nil {
		return Download{}, err
	}

	path := archivePath(block, requester)
	filename := archiveName(requester, block.ID, block.Course) + ".zip"
	return openBlob(ctx, s.store, path, filename, "application/zip", s.supportEmail, true)
}

// Run builds the archive. It executes on the worker, not in the request path;
// its only observable outcome is the refreshed archive blob.
func (s *exportService) Run(ctx context.Context, job dto.ExportJob) error {
	ctx, span := s.tracer.Start(ctx, "export.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("sga.block_id", job.BlockID),
		attribute.String("sga.requester", job.Requester),
	)

	start := s.now()
	defer func() {
		observability.ExportDuration().Observe(time.Since(start).Seconds())
	}()

	block, err := s.block(ctx, job.BlockID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "block lookup failed")
		observability.ExportJobs().WithLabelValues("failed").Inc()
		return err
	}

	finalized, err := s.finalizedSubmissions(ctx, block)
	if err != nil {
		observability.ExportJobs().WithLabelValues("failed").Inc()
		return err
	}

	// Prior staged files are removed up front so runs never accumulate.
	staging := filepath.Join(os.TempDir(), archiveName(job.Requester, block.ID, block.Course))
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, submission := range finalized {
		if err := s.stageSubmission(ctx, block, submission, staging); err != nil {
			// Partial failure is tolerated: the archive is built from
			// whatever staged successfully.
			s.logger.Error().Err(err).
				Str("student", submission.StudentID).
				Str("submission", submission.UUID).
				Msg("unable to stage submission, skipping")
		}
	}

	archive, err := zipDirectory(staging)
	if err != nil {
		observability.ExportJobs().WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to compress staged submissions: %w", err)
	}

	path := archivePath(block, job.Requester)
	if err := s.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("failed to remove prior archive: %w", err)
	}
	if err := s.store.Save(ctx, path, bytes.NewReader(archive)); err != nil {
		observability.ExportJobs().WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to store archive: %w", err)
	}

	observability.ExportJobs().WithLabelValues("completed").Inc()
	s.logger.Info().
		Str("block", block.ID).
		Str("requester", job.Requester).
		Int("submissions", len(finalized)).
		Msg("export archive built")

	return nil
}

func (s *exportService) stageSubmission(ctx context.Context, block models.Block, submission models.Submission, staging string) error {
	answer, err := submission.AnswerData()
	if err != nil {
		return err
	}
	if answer.SHA1 == "" {
		return fmt.Errorf("submission %s has no stored file", submission.UUID)
	}

	student, err := s.students.ByAnonymousID(ctx, submission.StudentID)
	if err != nil {
		return fmt.Errorf("failed to resolve student %s: %w", submission.StudentID, err)
	}

	source := storage.BlobPath(block.Org, block.Course, block.BlockType, block.ID, answer.SHA1, answer.Filename)
	reader, err := s.store.Open(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer reader.Close()

	staged := filepath.Join(staging, fmt.Sprintf("%s_%s%s", student.Username, answer.SHA1, filepath.Ext(answer.Filename)))
	target, err := os.Create(staged)
	if err != nil {
		return err
	}
	defer target.Close()

	_, err = io.Copy(target, reader)
	return err
}

func zipDirectory(dir string) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := zip.NewWriter(buf)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		file, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		dest, err := writer.Create(entry.Name())
		if err != nil {
			file.Close()
			return nil, err
		}
		if _, err := io.Copy(dest, file); err != nil {
			file.Close()
			return nil, err
		}
		file.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
