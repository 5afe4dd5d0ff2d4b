package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/utils"
)

// CollectionController handles named freet collections.
type CollectionController struct {
	db *gorm.DB
}

// NewCollectionController creates a CollectionController.
func NewCollectionController(db *gorm.DB) *CollectionController {
	return &CollectionController{db: db}
}

// List returns a user's collections with their freets.
func (c *CollectionController) List(ctx *gin.Context) {
	ownerID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	if q := strings.TrimSpace(ctx.Query("user_id")); q != "" {
		var parsed uint
		if _, err := fmt.Sscanf(q, "%d", &parsed); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40090, "invalid user_id")
			return
		}
		ownerID = parsed
	}

	var collections []models.Collection
	if err := c.db.Preload("Freets").Preload("Freets.Author").
		Where("user_id = ?", ownerID).
		Order("created_at DESC").Find(&collections).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to list collections")
		return
	}

	utils.Success(ctx, gin.H{"items": collections})
}

// Create makes a new empty collection for the caller.
func (c *CollectionController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40091, "invalid request payload")
		return
	}

	name := utils.Sanitize(strings.TrimSpace(req.Name))
	if name == "" || len([]rune(name)) > models.MaxCollectionNameLen {
		utils.Error(ctx, http.StatusBadRequest, 40092,
			fmt.Sprintf("name must be nonblank and at most %d characters", models.MaxCollectionNameLen))
		return
	}

	var count int64
	c.db.Model(&models.Collection{}).Where("user_id = ? AND name = ?", userID, name).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40940, "collection name already in use")
		return
	}

	collection := models.Collection{UserID: userID, Name: name}
	if err := c.db.Create(&collection).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to create collection")
		return
	}

	utils.Success(ctx, collection)
}

// Update renames a collection and/or applies one add/remove membership command.
func (c *CollectionController) Update(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	collection, ok := c.ownedCollection(ctx, userID)
	if !ok {
		return
	}

	var req struct {
		Name    string `json:"name"`
		Command string `json:"command"`
		FreetID uint   `json:"freet_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40091, "invalid request payload")
		return
	}

	newName := ""
	if req.Name != "" {
		newName = utils.Sanitize(strings.TrimSpace(req.Name))
		if newName == "" || len([]rune(newName)) > models.MaxCollectionNameLen {
			utils.Error(ctx, http.StatusBadRequest, 40092,
				fmt.Sprintf("name must be nonblank and at most %d characters", models.MaxCollectionNameLen))
			return
		}
		var count int64
		c.db.Model(&models.Collection{}).
			Where("user_id = ? AND name = ? AND id <> ?", userID, newName, collection.ID).Count(&count)
		if count > 0 {
			utils.Error(ctx, http.StatusConflict, 40940, "collection name already in use")
			return
		}
	}

	switch req.Command {
	case "":
		// rename only
	case "add":
		var freet models.Freet
		if err := c.db.First(&freet, req.FreetID).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
			return
		}
		var count int64
		c.db.Table("collection_freets").
			Where("collection_id = ? AND freet_id = ?", collection.ID, req.FreetID).Count(&count)
		if count > 0 {
			utils.Error(ctx, http.StatusBadRequest, 40093, "freet already in collection")
			return
		}
	case "remove":
		var count int64
		c.db.Table("collection_freets").
			Where("collection_id = ? AND freet_id = ?", collection.ID, req.FreetID).Count(&count)
		if count == 0 {
			utils.Error(ctx, http.StatusBadRequest, 40094, "freet not in collection")
			return
		}
	default:
		utils.Error(ctx, http.StatusBadRequest, 40095, "command must be add or remove")
		return
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if newName != "" {
			if err := tx.Model(&models.Collection{}).Where("id = ?", collection.ID).
				Update("name", newName).Error; err != nil {
				return err
			}
		}
		switch req.Command {
		case "add":
			return tx.Exec("INSERT INTO collection_freets (collection_id, freet_id) VALUES (?, ?)",
				collection.ID, req.FreetID).Error
		case "remove":
			return tx.Exec("DELETE FROM collection_freets WHERE collection_id = ? AND freet_id = ?",
				collection.ID, req.FreetID).Error
		}
		return nil
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to update collection")
		return
	}
	if newName != "" {
		collection.Name = newName
	}

	if err := c.db.Preload("Freets").First(&collection, collection.ID).Error; err == nil {
		utils.Success(ctx, collection)
		return
	}
	utils.Success(ctx, gin.H{"updated": collection.ID})
}

// Delete removes a collection the caller owns.
func (c *CollectionController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	collection, ok := c.ownedCollection(ctx, userID)
	if !ok {
		return
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM collection_freets WHERE collection_id = ?", collection.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Collection{}, collection.ID).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50095, "failed to delete collection")
		return
	}

	utils.Success(ctx, gin.H{"deleted": collection.ID})
}

func (c *CollectionController) ownedCollection(ctx *gin.Context, userID uint) (models.Collection, bool) {
	id := strings.TrimSpace(ctx.Param("id"))
	var collection models.Collection
	if err := c.db.First(&collection, id).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40440, "collection not found")
		return collection, false
	}
	if collection.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40320, "not the owner")
		return collection, false
	}
	return collection, true
}
