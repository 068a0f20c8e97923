package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/models"
)

// StudentRepository resolves anonymized student identifiers.
type StudentRepository interface {
	ByAnonymousID(ctx context.Context, anonymousID string) (models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) ByAnonymousID(ctx context.Context, anonymousID string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, "anonymous_id = ?", anonymousID).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}
