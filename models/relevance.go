package models

import "time"

// MaxCategoryLen bounds category label length.
const MaxCategoryLen = 24

// Relevance is the per-(category, freet) voting record that feeds a
// category ranking. Entries are deactivated when the category is removed
// from the freet and reactivated (same row, vote history preserved) when
// it is re-applied; they are hard-deleted only when the freet is deleted.
//
// Invariant: 0 <= RelevantVotes <= TotalVotes and
// Score == RelevantVotes/TotalVotes (0 when TotalVotes is 0).
type Relevance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Category      string    `gorm:"size:24;uniqueIndex:idx_relevance_pair;index;not null" json:"category"`
	FreetID       uint      `gorm:"uniqueIndex:idx_relevance_pair;index;not null" json:"freet_id"`
	RelevantVotes int       `gorm:"not null;default:0" json:"relevant_votes"`
	TotalVotes    int       `gorm:"not null;default:0" json:"total_votes"`
	Score         float64   `gorm:"not null;default:0" json:"score"`
	Active        bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Freet Freet `gorm:"foreignKey:FreetID" json:"freet"`
}

// Recompute refreshes the derived score from the vote counts.
func (r *Relevance) Recompute() {
	if r.TotalVotes == 0 {
		r.Score = 0
		return
	}
	r.Score = float64(r.RelevantVotes) / float64(r.TotalVotes)
}
