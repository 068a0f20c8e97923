package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/models"
)

// BlockRepository defines data operations for assignment blocks.
type BlockRepository interface {
	Get(ctx context.Context, id string) (models.Block, error)
	Create(ctx context.Context, block *models.Block) error
	Update(ctx context.Context, block *models.Block) error
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository instantiates the repository.
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) Get(ctx context.Context, id string) (models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).First(&block, "id = ?", id).Error; err != nil {
		return models.Block{}, err
	}

	return block, nil
}

func (r *blockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *blockRepository) Update(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Save(block).Error
}
