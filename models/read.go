package models

import "time"

// Read marks that a user has opened a freet's extended text. Interactions
// with a freet that carries a read-more body require a read record first.
type Read struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FreetID   uint      `gorm:"uniqueIndex:idx_read_pair;index;not null" json:"freet_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_read_pair;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
