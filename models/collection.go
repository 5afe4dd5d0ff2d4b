package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxCollectionNameLen caps collection names.
const MaxCollectionNameLen = 24

// Collection is a user-owned, named set of freets. Names are unique per
// owner; membership lives in the collection_freets join table.
type Collection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_collection_owner_name;index;not null" json:"user_id"`
	Name      string    `gorm:"size:24;uniqueIndex:idx_collection_owner_name;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Freets []Freet `gorm:"many2many:collection_freets" json:"freets,omitempty"`
}

func (c *Collection) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

func (c *Collection) BeforeUpdate(tx *gorm.DB) error {
	c.UpdatedAt = time.Now()
	return nil
}
