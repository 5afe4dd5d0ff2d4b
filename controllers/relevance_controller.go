package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/utils"
)

// RelevanceController serves category rankings and vote endpoints.
type RelevanceController struct {
	db *gorm.DB
}

// NewRelevanceController creates a RelevanceController.
func NewRelevanceController(db *gorm.DB) *RelevanceController {
	return &RelevanceController{db: db}
}

// Rank returns the active entries for a category ordered by score.
func (r *RelevanceController) Rank(ctx *gin.Context) {
	category := utils.NormalizeCategory(ctx.Query("category"))
	if category == "" {
		utils.Error(ctx, http.StatusBadRequest, 40070, "missing category")
		return
	}

	cacheKey := "cache:relevance:" + category
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var entries []models.Relevance
	if err := r.db.Preload("Freet").Preload("Freet.Author").
		Where("category = ? AND active = ?", category, true).
		Order("score DESC, total_votes DESC, id ASC").
		Find(&entries).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load ranking")
		return
	}

	payload := gin.H{"category": category, "entries": entries}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// Vote records a relevant/irrelevant vote on an active entry.
func (r *RelevanceController) Vote(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		RelevanceID uint   `json:"relevance_id" binding:"required"`
		Vote        string `json:"vote" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40071, "invalid request payload")
		return
	}
	if !models.ValidVote(req.Vote) {
		utils.Error(ctx, http.StatusBadRequest, 40072, "vote must be relevant or irrelevant")
		return
	}

	var entry models.Relevance
	if err := r.db.First(&entry, req.RelevanceID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40430, "relevance entry not found")
		return
	}
	if !entry.Active {
		utils.Error(ctx, http.StatusBadRequest, 40073, "relevance entry is inactive")
		return
	}

	var count int64
	r.db.Model(&models.RelevanceVote{}).
		Where("relevance_id = ? AND user_id = ?", entry.ID, userID).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40920, "already voted")
		return
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		vote := models.RelevanceVote{RelevanceID: entry.ID, UserID: userID, Choice: req.Vote}
		if err := tx.Create(&vote).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"total_votes": gorm.Expr("total_votes + 1"),
		}
		if req.Vote == models.VoteRelevant {
			updates["relevant_votes"] = gorm.Expr("relevant_votes + 1")
		}
		if err := tx.Model(&models.Relevance{}).Where("id = ?", entry.ID).
			UpdateColumns(updates).Error; err != nil {
			return err
		}
		return recomputeScore(tx, entry.ID)
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to record vote")
		return
	}

	utils.InvalidateByPrefix("cache:relevance:" + entry.Category)

	if err := r.db.First(&entry, entry.ID).Error; err == nil {
		utils.Success(ctx, entry)
		return
	}
	utils.Success(ctx, gin.H{"voted": req.RelevanceID})
}

// Retract removes the caller's vote, restoring the pre-vote state.
func (r *RelevanceController) Retract(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	entryID := strings.TrimSpace(ctx.Param("id"))
	var entry models.Relevance
	if err := r.db.First(&entry, entryID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40430, "relevance entry not found")
		return
	}
	if !entry.Active {
		utils.Error(ctx, http.StatusBadRequest, 40073, "relevance entry is inactive")
		return
	}

	var vote models.RelevanceVote
	if err := r.db.Where("relevance_id = ? AND user_id = ?", entry.ID, userID).
		First(&vote).Error; err != nil {
		utils.Error(ctx, http.StatusConflict, 40921, "no vote to retract")
		return
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.RelevanceVote{}, vote.ID).Error; err != nil {
			return err
		}
		return retractVote(tx, entry.ID, vote.Choice)
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to retract vote")
		return
	}

	utils.InvalidateByPrefix("cache:relevance:" + entry.Category)

	if err := r.db.First(&entry, entry.ID).Error; err == nil {
		utils.Success(ctx, entry)
		return
	}
	utils.Success(ctx, gin.H{"retracted": fmt.Sprint(entry.ID)})
}
