package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// StudentItem is the composite identity the scoring tables are keyed by.
type StudentItem struct {
	StudentID string
	CourseID  string
	ItemID    string
	ItemType  string
}

// Answer is the payload stored inside a submission's answer JSON column.
type Answer struct {
	SHA1      string `json:"sha1"`
	Filename  string `json:"filename"`
	Mimetype  string `json:"mimetype"`
	Finalized *bool  `json:"finalized,omitempty"`
}

// Submission is one uploaded answer version for a student item. A student may
// accumulate several rows; the newest one is the current submission.
type Submission struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	StudentID   string         `gorm:"size:64;index:idx_submission_item;not null" json:"student_id"`
	CourseID    string         `gorm:"size:255;index:idx_submission_item;not null" json:"course_id"`
	ItemID      string         `gorm:"size:255;index:idx_submission_item;not null" json:"item_id"`
	ItemType    string         `gorm:"size:64;not null" json:"item_type"`
	Answer      datatypes.JSON `json:"answer"`
	SubmittedAt *time.Time     `json:"submitted_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AnswerData decodes the answer column. An empty column yields a zero Answer.
func (s Submission) AnswerData() (Answer, error) {
	if len(s.Answer) == 0 {
		return Answer{}, nil
	}
	var answer Answer
	if err := json.Unmarshal(s.Answer, &answer); err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// IsFinalized reports whether the student marked this submission as final.
// Rows written before the finalized flag existed carry an answer without the
// key and count as finalized. An empty or missing answer is never finalized.
func (s Submission) IsFinalized() bool {
	if len(s.Answer) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(s.Answer, &fields); err != nil || len(fields) == 0 {
		return false
	}
	raw, ok := fields["finalized"]
	if !ok {
		return true
	}
	var finalized bool
	if err := json.Unmarshal(raw, &finalized); err != nil {
		return false
	}
	return finalized
}

// EffectiveTime is the submission timestamp used for ordering and export
// staleness checks: the finalize time when set, the creation time otherwise.
func (s Submission) EffectiveTime() time.Time {
	if s.SubmittedAt != nil {
		return *s.SubmittedAt
	}
	return s.CreatedAt
}

// Item returns the composite scoring identity of this submission.
func (s Submission) Item() StudentItem {
	return StudentItem{
		StudentID: s.StudentID,
		CourseID:  s.CourseID,
		ItemID:    s.ItemID,
		ItemType:  s.ItemType,
	}
}
