package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// GradingStateData is the JSON document persisted per student and block. The
// annotated_* fields are written and cleared as a group.
type GradingStateData struct {
	StaffScore         *int       `json:"staff_score"`
	Comment            string     `json:"comment"`
	AnnotatedSHA1      *string    `json:"annotated_sha1"`
	AnnotatedFilename  *string    `json:"annotated_filename"`
	AnnotatedMimetype  *string    `json:"annotated_mimetype"`
	AnnotatedTimestamp *time.Time `json:"annotated_timestamp"`
}

// ClearAnnotation drops the annotated file overlay as a unit.
func (d *GradingStateData) ClearAnnotation() {
	d.AnnotatedSHA1 = nil
	d.AnnotatedFilename = nil
	d.AnnotatedMimetype = nil
	d.AnnotatedTimestamp = nil
}

// GradingState stores staff feedback for one student on one block. Created
// lazily on the first staff or upload interaction.
type GradingState struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	StudentID string         `gorm:"size:64;index:idx_grading_state,unique;not null" json:"student_id"`
	BlockID   string         `gorm:"size:255;index:idx_grading_state,unique;not null" json:"block_id"`
	State     datatypes.JSON `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Data decodes the state column. An empty column yields zero-value data.
func (g GradingState) Data() (GradingStateData, error) {
	if len(g.State) == 0 {
		return GradingStateData{}, nil
	}
	var data GradingStateData
	if err := json.Unmarshal(g.State, &data); err != nil {
		return GradingStateData{}, err
	}
	return data, nil
}

// SetData encodes the provided document into the state column.
func (g *GradingState) SetData(data GradingStateData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	g.State = datatypes.JSON(payload)
	return nil
}
