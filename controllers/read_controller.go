package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/utils"
)

// ReadController records read-more reads.
type ReadController struct {
	db *gorm.DB
}

// NewReadController creates a ReadController.
func NewReadController(db *gorm.DB) *ReadController {
	return &ReadController{db: db}
}

// Create marks a freet's extended body as read by the caller.
func (r *ReadController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		FreetID uint `json:"freet_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}

	var freet models.Freet
	if err := r.db.First(&freet, req.FreetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}
	if freet.ReadMore == "" {
		utils.Error(ctx, http.StatusBadRequest, 40081, "freet has no read more body")
		return
	}
	if hasRead(r.db, freet.ID, userID) {
		utils.Error(ctx, http.StatusConflict, 40930, "already read")
		return
	}

	record := models.Read{FreetID: freet.ID, UserID: userID}
	if err := r.db.Create(&record).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to record read")
		return
	}

	utils.Success(ctx, gin.H{"freet_id": freet.ID, "read_more": freet.ReadMore})
}
