package models

import (
	"time"

	"gorm.io/gorm"
)

// Feed filter values a user may choose between.
const (
	FilterDefault  = "default"
	FilterOriginal = "original"
	FilterRefreets = "refreets"
)

// User represents an account. Passwords are stored as bcrypt hashes only.
// Usernames are unique; lookups compare them case-insensitively.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Bio          string    `gorm:"size:140" json:"bio"`
	Filter       string    `gorm:"size:16;default:'default'" json:"filter"`
	Provider     string    `gorm:"size:32" json:"provider"`
	ProviderID   string    `gorm:"size:255" json:"provider_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Freets       []Freet   `gorm:"foreignKey:AuthorID" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// ValidFilter reports whether s is an accepted feed filter value.
func ValidFilter(s string) bool {
	switch s {
	case FilterDefault, FilterOriginal, FilterRefreets:
		return true
	}
	return false
}
