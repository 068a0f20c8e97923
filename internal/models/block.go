package models

import "time"

// ItemType identifies staff graded assignment submissions within the scoring tables.
const ItemType = "sga"

// DefaultMaxScore is used when a block has no explicit points value.
const DefaultMaxScore = 100

// Block is a staff graded assignment definition placed in a course.
type Block struct {
	ID                 string     `gorm:"primaryKey;size:255" json:"id"`
	Org                string     `gorm:"size:255;not null" json:"org"`
	Course             string     `gorm:"size:255;not null" json:"course"`
	BlockType          string     `gorm:"size:64;not null;default:sga" json:"block_type"`
	DisplayName        string     `gorm:"size:255;not null" json:"display_name"`
	Points             int        `gorm:"not null;default:100" json:"points"`
	Weight             *float64   `json:"weight"`
	DueDate            *time.Time `json:"due_date"`
	GracePeriodSeconds int        `gorm:"not null;default:0" json:"grace_period_seconds"`
	ShowAnswer         string     `gorm:"size:32;not null;default:past_due" json:"show_answer"`
	Solution           string     `gorm:"type:text" json:"solution"`
	Start              *time.Time `json:"start"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// MaxScore returns the maximum score staff may award for this block.
func (b Block) MaxScore() int {
	if b.Points <= 0 {
		return DefaultMaxScore
	}
	return b.Points
}

// PastDue reports whether the due date, extended by the grace period, has passed.
// A block without a due date is never past due.
func (b Block) PastDue(reference time.Time) bool {
	if b.DueDate == nil {
		return false
	}
	deadline := b.DueDate.Add(time.Duration(b.GracePeriodSeconds) * time.Second)
	return reference.After(deadline)
}

// Released reports whether the block's start date has passed.
func (b Block) Released(reference time.Time) bool {
	return b.Start != nil && b.Start.Before(reference)
}
