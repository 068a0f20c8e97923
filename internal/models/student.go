package models

import "time"

// Student maps an anonymized per-course identifier back to a real user.
type Student struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AnonymousID string    `gorm:"size:64;uniqueIndex;not null" json:"anonymous_id"`
	Username    string    `gorm:"size:255;not null" json:"username"`
	FullName    string    `gorm:"size:255" json:"full_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
