package models

import "time"

// Score is the authoritative grade committed by an instructor for a student
// item. A pending (non-instructor) grade never produces a Score row; it lives
// in the grading state until approved.
type Score struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	StudentID      string    `gorm:"size:64;index:idx_score_item,unique;not null" json:"student_id"`
	CourseID       string    `gorm:"size:255;index:idx_score_item,unique;not null" json:"course_id"`
	ItemID         string    `gorm:"size:255;index:idx_score_item,unique;not null" json:"item_id"`
	PointsEarned   int       `gorm:"not null" json:"points_earned"`
	PointsPossible int       `gorm:"not null" json:"points_possible"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
