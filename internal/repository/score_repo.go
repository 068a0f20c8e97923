package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/open-craft/sga-api/internal/models"
)

// ScoreRepository defines data operations for authoritative scores. It plays
// the role of the external scoring service's score API.
type ScoreRepository interface {
	// Get returns the committed score for a student item, or nil when unscored.
	Get(ctx context.Context, item models.StudentItem) (*models.Score, error)
	// Set commits an authoritative score, replacing any prior one.
	Set(ctx context.Context, item models.StudentItem, pointsEarned, pointsPossible int) error
	// Reset removes the committed score. Resetting an unscored item is a no-op.
	Reset(ctx context.Context, item models.StudentItem) error
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates the repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Get(ctx context.Context, item models.StudentItem) (*models.Score, error) {
	var score models.Score
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND item_id = ?", item.StudentID, item.CourseID, item.ItemID).
		First(&score).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &score, nil
}

func (r *scoreRepository) Set(ctx context.Context, item models.StudentItem, pointsEarned, pointsPossible int) error {
	score := models.Score{
		StudentID:      item.StudentID,
		CourseID:       item.CourseID,
		ItemID:         item.ItemID,
		PointsEarned:   pointsEarned,
		PointsPossible: pointsPossible,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"points_earned", "points_possible", "updated_at"}),
		}).
		Create(&score).Error
}

func (r *scoreRepository) Reset(ctx context.Context, item models.StudentItem) error {
	return r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND item_id = ?", item.StudentID, item.CourseID, item.ItemID).
		Delete(&models.Score{}).Error
}
