package models

import "time"

// Content limits enforced on freet creation.
const (
	MaxContentLen  = 140
	MaxReadMoreLen = 600
)

// Freet represents a short post. A freet may re-share another freet
// (RefreetOfID) or reply to one (ReplyToID); counters on the target are
// maintained with atomic updates by the owning handlers.
//
// Categories are not stored here: a freet's category set is exactly its
// active relevance entries.
type Freet struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AuthorID     uint      `gorm:"index;not null" json:"author_id"`
	Content      string    `gorm:"size:140;not null" json:"content"`
	ReadMore     string    `gorm:"size:600" json:"read_more"`
	LikeCount    int       `gorm:"not null;default:0" json:"likes"`
	RefreetCount int       `gorm:"not null;default:0" json:"refreets"`
	ReplyCount   int       `gorm:"not null;default:0" json:"replies"`
	RefreetOfID  *uint     `gorm:"index" json:"refreet_of_id"`
	ReplyToID    *uint     `gorm:"index" json:"reply_to_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Author    User   `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	RefreetOf *Freet `gorm:"foreignKey:RefreetOfID" json:"refreet_of,omitempty"`
	ReplyTo   *Freet `gorm:"foreignKey:ReplyToID" json:"reply_to,omitempty"`

	// Filled from active relevance entries when serving responses.
	Categories []string `gorm:"-" json:"categories"`
}

// IsRefreet reports whether the freet re-shares another freet.
func (f *Freet) IsRefreet() bool { return f.RefreetOfID != nil }

// IsReply reports whether the freet replies to another freet.
func (f *Freet) IsReply() bool { return f.ReplyToID != nil }
