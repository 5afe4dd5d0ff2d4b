package models

import "time"

// Like marks that a user liked a freet; one row per (user, freet) pair.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_like_pair;not null" json:"user_id"`
	FreetID   uint      `gorm:"uniqueIndex:idx_like_pair;not null" json:"freet_id"`
	CreatedAt time.Time `json:"created_at"`
}
