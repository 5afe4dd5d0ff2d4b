package models

import "time"

// Follow is a directed edge: follower follows followee. Keeping a single
// row per edge makes the following/followed-by views symmetric by
// construction.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"uniqueIndex:idx_follow_edge;not null" json:"follower_id"`
	FolloweeID uint      `gorm:"uniqueIndex:idx_follow_edge;not null" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}
