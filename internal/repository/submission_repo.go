package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/models"
)

// SubmissionRepository defines data operations for submission versions. It
// plays the role of the external scoring service's submission table.
type SubmissionRepository interface {
	// Create inserts a new submission version; versions are never mutated on
	// re-upload, only superseded.
	Create(ctx context.Context, submission *models.Submission) error
	// Save persists in-place edits made at finalize time.
	Save(ctx context.Context, submission *models.Submission) error
	// Latest returns the most recent submission for the student item, or nil
	// when the student has not uploaded yet.
	Latest(ctx context.Context, item models.StudentItem) (*models.Submission, error)
	// ListForItem returns all submissions for a block, newest first by
	// effective timestamp.
	ListForItem(ctx context.Context, courseID, itemID string) ([]models.Submission, error)
	// StudentIDsForItem lists the distinct students with at least one
	// submission for the block.
	StudentIDsForItem(ctx context.Context, courseID, itemID string) ([]string, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Save(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) Latest(ctx context.Context, item models.StudentItem) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND item_id = ? AND item_type = ?",
			item.StudentID, item.CourseID, item.ItemID, item.ItemType).
		Order("created_at DESC, id DESC").
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &submission, nil
}

func (r *submissionRepository) ListForItem(ctx context.Context, courseID, itemID string) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND item_id = ? AND item_type = ?", courseID, itemID, models.ItemType).
		Order("COALESCE(submitted_at, created_at) DESC, id DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) StudentIDsForItem(ctx context.Context, courseID, itemID string) ([]string, error) {
	var studentIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("course_id = ? AND item_id = ? AND item_type = ?", courseID, itemID, models.ItemType).
		Distinct("student_id").
		Pluck("student_id", &studentIDs).Error
	if err != nil {
		return nil, err
	}

	return studentIDs, nil
}
