package models

import "time"

// Vote choices.
const (
	VoteRelevant   = "relevant"
	VoteIrrelevant = "irrelevant"
)

// RelevanceVote records a single user's vote on a relevance entry. The
// unique (relevance, user) pair guarantees a voter appears in at most one
// of the two voter sets.
type RelevanceVote struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RelevanceID uint      `gorm:"uniqueIndex:idx_vote_pair;index;not null" json:"relevance_id"`
	UserID      uint      `gorm:"uniqueIndex:idx_vote_pair;index;not null" json:"user_id"`
	Choice      string    `gorm:"size:12;not null" json:"choice"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidVote reports whether s is an accepted vote choice.
func ValidVote(s string) bool {
	return s == VoteRelevant || s == VoteIrrelevant
}
