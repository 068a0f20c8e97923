package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/open-craft/sga-api/internal/models"
)

// gradingStateSchema constrains the per-student state blob. Unknown keys are
// rejected so a corrupted or foreign document surfaces as an error instead of
// silently losing fields on the next write.
const gradingStateSchema = `{
	"type": "object",
	"properties": {
		"staff_score": {"type": ["integer", "null"]},
		"comment": {"type": "string"},
		"annotated_sha1": {"type": ["string", "null"]},
		"annotated_filename": {"type": ["string", "null"]},
		"annotated_mimetype": {"type": ["string", "null"]},
		"annotated_timestamp": {"type": ["string", "null"]}
	},
	"additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func stateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("grading_state.json", bytes.NewReader([]byte(gradingStateSchema))); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("grading_state.json")
	})
	return compiledSchema, schemaErr
}

// GradingStateRepository stores per-student grading state blobs.
type GradingStateRepository interface {
	// GetOrCreate returns the state for (student, block), creating an empty
	// document on first access. The created flag lets callers log creation once.
	GetOrCreate(ctx context.Context, studentID, blockID string) (models.GradingState, bool, error)
	// ByModuleID fetches a state row by its primary key.
	ByModuleID(ctx context.Context, moduleID uint) (models.GradingState, error)
	// Update persists the state blob.
	Update(ctx context.Context, state *models.GradingState) error
}

type gradingStateRepository struct {
	db *gorm.DB
}

// NewGradingStateRepository instantiates the repository.
func NewGradingStateRepository(db *gorm.DB) GradingStateRepository {
	return &gradingStateRepository{db: db}
}

func (r *gradingStateRepository) GetOrCreate(ctx context.Context, studentID, blockID string) (models.GradingState, bool, error) {
	state := models.GradingState{StudentID: studentID, BlockID: blockID}
	if err := state.SetData(models.GradingStateData{}); err != nil {
		return models.GradingState{}, false, err
	}

	result := r.db.WithContext(ctx).
		Where(models.GradingState{StudentID: studentID, BlockID: blockID}).
		Attrs(models.GradingState{State: state.State}).
		FirstOrCreate(&state)
	if result.Error != nil {
		return models.GradingState{}, false, result.Error
	}

	created := result.RowsAffected > 0
	if !created {
		if err := validateState(state); err != nil {
			return models.GradingState{}, false, err
		}
	}

	return state, created, nil
}

func (r *gradingStateRepository) ByModuleID(ctx context.Context, moduleID uint) (models.GradingState, error) {
	var state models.GradingState
	if err := r.db.WithContext(ctx).First(&state, moduleID).Error; err != nil {
		return models.GradingState{}, err
	}

	if err := validateState(state); err != nil {
		return models.GradingState{}, err
	}

	return state, nil
}

func (r *gradingStateRepository) Update(ctx context.Context, state *models.GradingState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

func validateState(state models.GradingState) error {
	if len(state.State) == 0 {
		return nil
	}

	schema, err := stateSchema()
	if err != nil {
		return fmt.Errorf("failed to compile grading state schema: %w", err)
	}

	// Numbers must decode as json.Number, not float64, for the integer
	// constraint on staff_score to validate.
	decoder := json.NewDecoder(bytes.NewReader(state.State))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("grading state for student %s is not valid JSON: %w", state.StudentID, err)
	}

	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("grading state for student %s failed validation: %w", state.StudentID, err)
	}

	return nil
}
