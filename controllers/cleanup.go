package controllers

import (
	"gorm.io/gorm"

	"github.com/freetapp/freet/models"
)

// bumpCounter atomically adjusts a freet counter column. Decrements are
// guarded so the counter never drops below zero.
func bumpCounter(tx *gorm.DB, freetID uint, column string, delta int) error {
	if delta >= 0 {
		return tx.Model(&models.Freet{}).Where("id = ?", freetID).
			UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
	}
	n := -delta
	return tx.Model(&models.Freet{}).Where("id = ? AND "+column+" >= ?", freetID, n).
		UpdateColumn(column, gorm.Expr(column+" - ?", n)).Error
}

// retractVote undoes one vote against a relevance entry and recomputes the
// score. Tolerates counters already at zero so purge passes stay idempotent.
func retractVote(tx *gorm.DB, entryID uint, choice string) error {
	if err := tx.Model(&models.Relevance{}).Where("id = ? AND total_votes > 0", entryID).
		UpdateColumn("total_votes", gorm.Expr("total_votes - 1")).Error; err != nil {
		return err
	}
	if choice == models.VoteRelevant {
		if err := tx.Model(&models.Relevance{}).Where("id = ? AND relevant_votes > 0", entryID).
			UpdateColumn("relevant_votes", gorm.Expr("relevant_votes - 1")).Error; err != nil {
			return err
		}
	}
	return recomputeScore(tx, entryID)
}

// recomputeScore refreshes the stored score from the current counters.
func recomputeScore(tx *gorm.DB, entryID uint) error {
	var entry models.Relevance
	if err := tx.First(&entry, entryID).Error; err != nil {
		return err
	}
	entry.Recompute()
	return tx.Model(&models.Relevance{}).Where("id = ?", entryID).
		UpdateColumn("score", entry.Score).Error
}

// deleteFreetCascade removes a freet and everything hanging off it. Counter
// adjustments on the refreet/reply target run first, while the row still
// exists, then dependent rows are swept.
func deleteFreetCascade(tx *gorm.DB, freet *models.Freet) error {
	if freet.RefreetOfID != nil {
		if err := bumpCounter(tx, *freet.RefreetOfID, "refreet_count", -1); err != nil {
			return err
		}
	}
	if freet.ReplyToID != nil {
		if err := bumpCounter(tx, *freet.ReplyToID, "reply_count", -1); err != nil {
			return err
		}
	}

	if err := tx.Where("freet_id = ?", freet.ID).Delete(&models.Like{}).Error; err != nil {
		return err
	}

	var entryIDs []uint
	if err := tx.Model(&models.Relevance{}).Where("freet_id = ?", freet.ID).
		Pluck("id", &entryIDs).Error; err != nil {
		return err
	}
	if len(entryIDs) > 0 {
		if err := tx.Where("relevance_id IN ?", entryIDs).Delete(&models.RelevanceVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", entryIDs).Delete(&models.Relevance{}).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("freet_id = ?", freet.ID).Delete(&models.Read{}).Error; err != nil {
		return err
	}

	if err := tx.Exec("DELETE FROM collection_freets WHERE freet_id = ?", freet.ID).Error; err != nil {
		return err
	}

	return tx.Delete(&models.Freet{}, freet.ID).Error
}

// deleteUserCascade removes a user and everything they own. Counters on
// other users' freets are adjusted exactly once; the per-freet cascade is
// not re-run for freets that are deleted wholesale here.
func deleteUserCascade(tx *gorm.DB, user *models.User) error {
	var authored []models.Freet
	if err := tx.Where("author_id = ?", user.ID).Find(&authored).Error; err != nil {
		return err
	}
	authoredIDs := make([]uint, 0, len(authored))
	for _, f := range authored {
		authoredIDs = append(authoredIDs, f.ID)
	}

	// Likes the user placed on other freets release one like each.
	var likes []models.Like
	if err := tx.Where("user_id = ?", user.ID).Find(&likes).Error; err != nil {
		return err
	}
	for _, like := range likes {
		if err := bumpCounter(tx, like.FreetID, "like_count", -1); err != nil {
			return err
		}
	}

	// Refreets and replies authored by the user release their target counters.
	for _, f := range authored {
		if f.RefreetOfID != nil {
			if err := bumpCounter(tx, *f.RefreetOfID, "refreet_count", -1); err != nil {
				return err
			}
		}
		if f.ReplyToID != nil {
			if err := bumpCounter(tx, *f.ReplyToID, "reply_count", -1); err != nil {
				return err
			}
		}
	}

	// Purge the user's votes with retract semantics before their rows go.
	var votes []models.RelevanceVote
	if err := tx.Where("user_id = ?", user.ID).Find(&votes).Error; err != nil {
		return err
	}
	for _, v := range votes {
		if err := retractVote(tx, v.RelevanceID, v.Choice); err != nil {
			return err
		}
	}
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.RelevanceVote{}).Error; err != nil {
		return err
	}

	// Relevance entries on authored freets go entirely, votes first.
	if len(authoredIDs) > 0 {
		var entryIDs []uint
		if err := tx.Model(&models.Relevance{}).Where("freet_id IN ?", authoredIDs).
			Pluck("id", &entryIDs).Error; err != nil {
			return err
		}
		if len(entryIDs) > 0 {
			if err := tx.Where("relevance_id IN ?", entryIDs).Delete(&models.RelevanceVote{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", entryIDs).Delete(&models.Relevance{}).Error; err != nil {
				return err
			}
		}
	}

	if err := tx.Where("follower_id = ? OR followee_id = ?", user.ID, user.ID).
		Delete(&models.Follow{}).Error; err != nil {
		return err
	}

	if err := tx.Where("user_id = ?", user.ID).Delete(&models.Like{}).Error; err != nil {
		return err
	}
	if len(authoredIDs) > 0 {
		if err := tx.Where("freet_id IN ?", authoredIDs).Delete(&models.Like{}).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("user_id = ?", user.ID).Delete(&models.Read{}).Error; err != nil {
		return err
	}
	if len(authoredIDs) > 0 {
		if err := tx.Where("freet_id IN ?", authoredIDs).Delete(&models.Read{}).Error; err != nil {
			return err
		}
	}

	// The user's own collections go away; their freets leave everyone else's.
	var collectionIDs []uint
	if err := tx.Model(&models.Collection{}).Where("user_id = ?", user.ID).
		Pluck("id", &collectionIDs).Error; err != nil {
		return err
	}
	if len(collectionIDs) > 0 {
		if err := tx.Exec("DELETE FROM collection_freets WHERE collection_id IN ?", collectionIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", collectionIDs).Delete(&models.Collection{}).Error; err != nil {
			return err
		}
	}
	if len(authoredIDs) > 0 {
		if err := tx.Exec("DELETE FROM collection_freets WHERE freet_id IN ?", authoredIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", authoredIDs).Delete(&models.Freet{}).Error; err != nil {
			return err
		}
	}

	return tx.Delete(&models.User{}, user.ID).Error
}

// tagFreet creates or reactivates the relevance entry for (category, freet).
// A reactivated entry keeps its id and historical vote counts.
func tagFreet(tx *gorm.DB, freetID uint, category string) error {
	var entry models.Relevance
	err := tx.Where("category = ? AND freet_id = ?", category, freetID).First(&entry).Error
	if err == nil {
		if entry.Active {
			return nil
		}
		return tx.Model(&models.Relevance{}).Where("id = ?", entry.ID).
			UpdateColumn("active", true).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	entry = models.Relevance{Category: category, FreetID: freetID, Active: true}
	return tx.Create(&entry).Error
}

// untagFreet deactivates the relevance entry for (category, freet) when present.
func untagFreet(tx *gorm.DB, freetID uint, category string) error {
	return tx.Model(&models.Relevance{}).
		Where("category = ? AND freet_id = ? AND active = ?", category, freetID, true).
		UpdateColumn("active", false).Error
}

// hasRead reports whether the user has a read record for the freet.
func hasRead(db *gorm.DB, freetID, userID uint) bool {
	var count int64
	db.Model(&models.Read{}).Where("freet_id = ? AND user_id = ?", freetID, userID).Count(&count)
	return count > 0
}

// interactionAllowed enforces read-more gating: freets with an extended body
// may only be liked, refreeted or replied to after the actor has read it.
func interactionAllowed(db *gorm.DB, freet *models.Freet, userID uint) bool {
	if freet.ReadMore == "" {
		return true
	}
	return hasRead(db, freet.ID, userID)
}

// attachCategories fills the transient Categories field from active
// relevance entries for each freet.
func attachCategories(db *gorm.DB, freets []models.Freet) {
	if len(freets) == 0 {
		return
	}
	ids := make([]uint, 0, len(freets))
	for _, f := range freets {
		ids = append(ids, f.ID)
	}
	var entries []models.Relevance
	if err := db.Where("freet_id IN ? AND active = ?", ids, true).
		Order("category ASC").Find(&entries).Error; err != nil {
		return
	}
	byFreet := make(map[uint][]string, len(freets))
	for _, e := range entries {
		byFreet[e.FreetID] = append(byFreet[e.FreetID], e.Category)
	}
	for i := range freets {
		if cats, ok := byFreet[freets[i].ID]; ok {
			freets[i].Categories = cats
		} else {
			freets[i].Categories = []string{}
		}
	}
}
