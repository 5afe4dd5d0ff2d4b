package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freetapp/freet/config"
	"github.com/freetapp/freet/middleware"
	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/utils"
)

// FreetController handles freet CRUD, the home feed and like endpoints.
type FreetController struct {
	db *gorm.DB
}

// NewFreetController creates a FreetController.
func NewFreetController(db *gorm.DB) *FreetController {
	return &FreetController{db: db}
}

// ListFreets serves the home feed, or an author's freets when ?author= is set.
func (f *FreetController) ListFreets(ctx *gin.Context) {
	if author := strings.TrimSpace(ctx.Query("author")); author != "" {
		f.listByAuthor(ctx, author)
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := f.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	filter := user.Filter
	if q := strings.TrimSpace(ctx.Query("filter")); q != "" {
		if !models.ValidFilter(q) {
			utils.Error(ctx, http.StatusBadRequest, 40020, "filter must be one of default, original, refreets")
			return
		}
		filter = q
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var authorIDs []uint
	if err := f.db.Model(&models.Follow{}).Where("follower_id = ?", userID).
		Pluck("followee_id", &authorIDs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to load follows")
		return
	}
	authorIDs = utils.UniqueUint(append(authorIDs, userID))

	query := f.db.Preload("Author").Where("author_id IN ?", authorIDs)
	switch filter {
	case models.FilterOriginal:
		query = query.Where("refreet_of_id IS NULL")
	case models.FilterRefreets:
		query = query.Where("refreet_of_id IS NOT NULL")
	}

	var total int64
	if err := query.Model(&models.Freet{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count freets")
		return
	}

	var freets []models.Freet
	if err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&freets).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list freets")
		return
	}
	attachCategories(f.db, freets)

	utils.Success(ctx, gin.H{
		"items": freets,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

func (f *FreetController) listByAuthor(ctx *gin.Context, author string) {
	var user models.User
	if err := f.db.Where("LOWER(username) = LOWER(?)", author).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40411, "user not found")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := f.db.Model(&models.Freet{}).Where("author_id = ?", user.ID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to count freets")
		return
	}

	var freets []models.Freet
	if err := f.db.Preload("Author").Where("author_id = ?", user.ID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&freets).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to list freets")
		return
	}
	attachCategories(f.db, freets)

	utils.Success(ctx, gin.H{
		"items": freets,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// ListReplies returns replies to a freet, newest first.
func (f *FreetController) ListReplies(ctx *gin.Context) {
	freetID := strings.TrimSpace(ctx.Param("id"))
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := fmt.Sprintf("cache:replies:%s:page=%d:size=%d", freetID, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var parent models.Freet
	if err := f.db.First(&parent, freetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}

	var total int64
	if err := f.db.Model(&models.Freet{}).Where("reply_to_id = ?", parent.ID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to count replies")
		return
	}

	var replies []models.Freet
	if err := f.db.Preload("Author").Where("reply_to_id = ?", parent.ID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&replies).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to list replies")
		return
	}
	attachCategories(f.db, replies)

	payload := gin.H{
		"items": replies,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// CreateFreet creates a freet, refreet or reply.
func (f *FreetController) CreateFreet(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		Content    string `json:"content"`
		ReadMore   string `json:"read_more"`
		Categories string `json:"categories"`
		RefreetOf  *uint  `json:"refreet_of"`
		ReplyTo    *uint  `json:"reply_to"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}

	if req.RefreetOf != nil && req.ReplyTo != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "a freet cannot be both a refreet and a reply")
		return
	}

	content := utils.Sanitize(strings.TrimSpace(req.Content))
	if len([]rune(content)) > models.MaxContentLen {
		utils.Error(ctx, http.StatusBadRequest, 40023, fmt.Sprintf("content exceeds %d characters", models.MaxContentLen))
		return
	}
	if content == "" && req.RefreetOf == nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "content must not be blank")
		return
	}

	readMore := utils.Sanitize(strings.TrimSpace(req.ReadMore))
	if len([]rune(readMore)) > models.MaxReadMoreLen {
		utils.Error(ctx, http.StatusBadRequest, 40024, fmt.Sprintf("read_more exceeds %d characters", models.MaxReadMoreLen))
		return
	}

	categories, err := utils.ParseCategories(req.Categories)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, err.Error())
		return
	}
	if len(categories) > 0 && (req.RefreetOf != nil || req.ReplyTo != nil) {
		utils.Error(ctx, http.StatusBadRequest, 40026, "refreets and replies cannot carry categories")
		return
	}

	var refreetTarget, replyTarget *models.Freet
	if req.RefreetOf != nil {
		var target models.Freet
		if err := f.db.First(&target, *req.RefreetOf).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
			return
		}
		if !interactionAllowed(f.db, &target, userID) {
			utils.Error(ctx, http.StatusForbidden, 40310, "read the freet before refreeting it")
			return
		}
		var count int64
		f.db.Model(&models.Freet{}).
			Where("author_id = ? AND refreet_of_id = ?", userID, target.ID).Count(&count)
		if count > 0 {
			utils.Error(ctx, http.StatusConflict, 40910, "already refreeted")
			return
		}
		refreetTarget = &target
	}
	if req.ReplyTo != nil {
		var target models.Freet
		if err := f.db.First(&target, *req.ReplyTo).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
			return
		}
		if !interactionAllowed(f.db, &target, userID) {
			utils.Error(ctx, http.StatusForbidden, 40311, "read the freet before replying to it")
			return
		}
		replyTarget = &target
	}

	freet := models.Freet{
		AuthorID:    userID,
		Content:     content,
		ReadMore:    readMore,
		RefreetOfID: req.RefreetOf,
		ReplyToID:   req.ReplyTo,
	}

	err = f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&freet).Error; err != nil {
			return err
		}
		if refreetTarget != nil {
			if err := bumpCounter(tx, refreetTarget.ID, "refreet_count", 1); err != nil {
				return err
			}
		}
		if replyTarget != nil {
			if err := bumpCounter(tx, replyTarget.ID, "reply_count", 1); err != nil {
				return err
			}
		}
		for _, cat := range categories {
			if err := tagFreet(tx, freet.ID, cat); err != nil {
				return err
			}
		}
		// The author has trivially read their own extended body.
		if readMore != "" {
			if err := tx.Create(&models.Read{FreetID: freet.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to create freet")
		return
	}

	if replyTarget != nil {
		utils.InvalidateByPrefix(fmt.Sprintf("cache:replies:%d", replyTarget.ID))
	}
	for _, cat := range categories {
		utils.InvalidateByPrefix("cache:relevance:" + cat)
	}
	var author models.User
	if err := f.db.First(&author, userID).Error; err == nil {
		freet.Author = author
		utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(author.Username))
	}
	freet.Categories = categories

	utils.Success(ctx, freet)
}

// UpdateFreet changes a freet's category set; nothing else is mutable.
func (f *FreetController) UpdateFreet(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	freetID := strings.TrimSpace(ctx.Param("id"))
	var freet models.Freet
	if err := f.db.First(&freet, freetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}
	if freet.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40312, "not the author")
		return
	}
	if freet.IsRefreet() || freet.IsReply() {
		utils.Error(ctx, http.StatusBadRequest, 40026, "refreets and replies cannot carry categories")
		return
	}

	var req struct {
		Categories string `json:"categories"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}

	desired, err := utils.ParseCategories(req.Categories)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, err.Error())
		return
	}
	desiredSet := make(map[string]bool, len(desired))
	for _, cat := range desired {
		desiredSet[cat] = true
	}

	var current []string
	if err := f.db.Model(&models.Relevance{}).
		Where("freet_id = ? AND active = ?", freet.ID, true).
		Pluck("category", &current).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to load categories")
		return
	}
	currentSet := make(map[string]bool, len(current))
	for _, cat := range current {
		currentSet[cat] = true
	}

	touched := []string{}
	err = f.db.Transaction(func(tx *gorm.DB) error {
		for _, cat := range desired {
			if !currentSet[cat] {
				if err := tagFreet(tx, freet.ID, cat); err != nil {
					return err
				}
				touched = append(touched, cat)
			}
		}
		for _, cat := range current {
			if !desiredSet[cat] {
				if err := untagFreet(tx, freet.ID, cat); err != nil {
					return err
				}
				touched = append(touched, cat)
			}
		}
		return nil
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to update categories")
		return
	}

	for _, cat := range touched {
		utils.InvalidateByPrefix("cache:relevance:" + cat)
	}

	freet.Categories = desired
	utils.Success(ctx, freet)
}

// DeleteFreet removes a freet the caller authored.
func (f *FreetController) DeleteFreet(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	freetID := strings.TrimSpace(ctx.Param("id"))
	var freet models.Freet
	if err := f.db.First(&freet, freetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}
	if freet.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40312, "not the author")
		return
	}

	var categories []string
	if err := f.db.Model(&models.Relevance{}).Where("freet_id = ?", freet.ID).
		Pluck("category", &categories).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to load categories")
		return
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return deleteFreetCascade(tx, &freet)
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to delete freet")
		return
	}

	for _, cat := range categories {
		utils.InvalidateByPrefix("cache:relevance:" + cat)
	}
	utils.InvalidateByPrefix(fmt.Sprintf("cache:replies:%d", freet.ID))
	if freet.ReplyToID != nil {
		utils.InvalidateByPrefix(fmt.Sprintf("cache:replies:%d", *freet.ReplyToID))
	}

	utils.Success(ctx, gin.H{"deleted": freet.ID})
}

// LikeFreet records a like and bumps the counter.
func (f *FreetController) LikeFreet(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	freetID := strings.TrimSpace(ctx.Param("id"))
	var freet models.Freet
	if err := f.db.First(&freet, freetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}
	if !interactionAllowed(f.db, &freet, userID) {
		utils.Error(ctx, http.StatusForbidden, 40313, "read the freet before liking it")
		return
	}

	var count int64
	f.db.Model(&models.Like{}).Where("user_id = ? AND freet_id = ?", userID, freet.ID).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40911, "already liked")
		return
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Like{UserID: userID, FreetID: freet.ID}).Error; err != nil {
			return err
		}
		return bumpCounter(tx, freet.ID, "like_count", 1)
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to like freet")
		return
	}

	utils.Success(ctx, gin.H{"liked": freet.ID})
}

// UnlikeFreet removes a like and drops the counter.
func (f *FreetController) UnlikeFreet(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	freetID := strings.TrimSpace(ctx.Param("id"))
	var freet models.Freet
	if err := f.db.First(&freet, freetID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "freet not found")
		return
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND freet_id = ?", userID, freet.ID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return bumpCounter(tx, freet.ID, "like_count", -1)
	})
	if err == gorm.ErrRecordNotFound {
		utils.Error(ctx, http.StatusConflict, 40912, "not liked")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to unlike freet")
		return
	}

	utils.Success(ctx, gin.H{"unliked": freet.ID})
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := config.Get().FeedPageSize
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}
