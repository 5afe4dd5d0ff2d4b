package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/freetapp/freet/config"
	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/utils"
)

// AuthController handles authentication and account endpoints including local and third-party providers.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Bio      string `json:"bio"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be nonempty letters, digits or underscores")
		return
	}
	if !validPassword(req.Password) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "password must be nonempty and contain no whitespace")
		return
	}

	bio := utils.Sanitize(strings.TrimSpace(req.Bio))
	if len([]rune(bio)) > models.MaxContentLen {
		utils.Error(ctx, http.StatusBadRequest, 40002, fmt.Sprintf("bio exceeds %d characters", models.MaxContentLen))
		return
	}

	var count int64
	if err := a.db.Model(&models.User{}).Where("LOWER(username) = LOWER(?)", req.Username).Count(&count).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to check username")
		return
	}
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Bio:          bio,
		Filter:       models.FilterDefault,
	}

	if err := a.db.Create(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(user),
	})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	token := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, exists := ctx.Get("user_id")
	if !exists {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	utils.Success(ctx, sanitizeUserResponse(user))
}

// profileCommand is one tagged field update. Unknown fields are rejected
// so a typo never silently drops an update.
type profileCommand struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// UpdateProfile applies a list of per-field update commands. Each command
// is validated independently; the whole batch is rejected when any single
// command fails.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, exists := ctx.Get("user_id")
	if !exists {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var req struct {
		Commands []profileCommand `json:"commands" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || len(req.Commands) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	oldUsername := user.Username

	updates := map[string]interface{}{}
	for _, cmd := range req.Commands {
		switch cmd.Field {
		case "username":
			uname := strings.TrimSpace(cmd.Value)
			if !validUsername(uname) {
				utils.Error(ctx, http.StatusBadRequest, 40031, "username must be nonempty letters, digits or underscores")
				return
			}
			var count int64
			if err := a.db.Model(&models.User{}).
				Where("LOWER(username) = LOWER(?) AND id <> ?", uname, user.ID).
				Count(&count).Error; err != nil {
				utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to check username")
				return
			}
			if count > 0 {
				utils.Error(ctx, http.StatusConflict, 40902, "username already exists")
				return
			}
			updates["username"] = uname
			user.Username = uname
		case "password":
			if !validPassword(cmd.Value) {
				utils.Error(ctx, http.StatusBadRequest, 40032, "password must be nonempty and contain no whitespace")
				return
			}
			hash, err := utils.HashPassword(cmd.Value)
			if err != nil {
				utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to hash password")
				return
			}
			updates["password_hash"] = hash
		case "bio":
			bio := utils.Sanitize(strings.TrimSpace(cmd.Value))
			if len([]rune(bio)) > models.MaxContentLen {
				utils.Error(ctx, http.StatusBadRequest, 40033, fmt.Sprintf("bio exceeds %d characters", models.MaxContentLen))
				return
			}
			updates["bio"] = bio
			user.Bio = bio
		case "filter":
			if !models.ValidFilter(cmd.Value) {
				utils.Error(ctx, http.StatusBadRequest, 40034, "filter must be one of default, original, refreets")
				return
			}
			updates["filter"] = cmd.Value
			user.Filter = cmd.Value
		default:
			utils.Error(ctx, http.StatusBadRequest, 40035, fmt.Sprintf("unknown field: %s", cmd.Field))
			return
		}
	}

	updates["updated_at"] = time.Now()
	if err := a.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to update profile")
		return
	}

	utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(oldUsername))
	utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(user.Username))

	utils.Success(ctx, sanitizeUserResponse(user))
}

// DeleteAccount removes the authenticated user and everything they own.
func (a *AuthController) DeleteAccount(ctx *gin.Context) {
	userID, exists := ctx.Get("user_id")
	if !exists {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	err := a.db.Transaction(func(tx *gorm.DB) error {
		return deleteUserCascade(tx, &user)
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to delete account")
		return
	}

	utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(user.Username))
	utils.InvalidateByPrefix("cache:relevance:")
	utils.InvalidateByPrefix("cache:replies:")

	utils.Success(ctx, gin.H{"message": "account deleted"})
}

// GetUserPublic returns public user info by username, including follow counts.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	uname := strings.TrimSpace(ctx.Param("username"))
	if uname == "" {
		utils.Error(ctx, http.StatusBadRequest, 40051, "missing username")
		return
	}
	// cache keys are lowercased so invalidation by canonical username hits
	cacheKey := "cache:user:public:" + strings.ToLower(uname)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	var user models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", uname).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40411, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to get user")
		return
	}

	var followers, following, freets int64
	a.db.Model(&models.Follow{}).Where("followee_id = ?", user.ID).Count(&followers)
	a.db.Model(&models.Follow{}).Where("follower_id = ?", user.ID).Count(&following)
	a.db.Model(&models.Freet{}).Where("author_id = ?", user.ID).Count(&freets)

	payload := gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"bio":        user.Bio,
		"followers":  followers,
		"following":  following,
		"freets":     freets,
		"created_at": user.CreatedAt,
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// Follow makes the caller follow another user by username.
func (a *AuthController) Follow(ctx *gin.Context) {
	userID := ctx.GetUint("user_id")

	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}

	var target models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", strings.TrimSpace(req.Username)).First(&target).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40412, "user not found")
		return
	}
	if target.ID == userID {
		utils.Error(ctx, http.StatusBadRequest, 40061, "cannot follow yourself")
		return
	}

	var count int64
	a.db.Model(&models.Follow{}).Where("follower_id = ? AND followee_id = ?", userID, target.ID).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40903, "already following")
		return
	}

	edge := models.Follow{FollowerID: userID, FolloweeID: target.ID}
	if err := a.db.Create(&edge).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to follow")
		return
	}

	a.invalidateFollowCaches(userID, target.Username)
	utils.Success(ctx, gin.H{"following": target.Username})
}

// Unfollow removes a follow edge by username.
func (a *AuthController) Unfollow(ctx *gin.Context) {
	userID := ctx.GetUint("user_id")

	uname := strings.TrimSpace(ctx.Param("username"))
	var target models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", uname).First(&target).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40412, "user not found")
		return
	}

	res := a.db.Where("follower_id = ? AND followee_id = ?", userID, target.ID).Delete(&models.Follow{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to unfollow")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusConflict, 40904, "not following")
		return
	}

	a.invalidateFollowCaches(userID, target.Username)
	utils.Success(ctx, gin.H{"unfollowed": target.Username})
}

// Cached profiles carry follow counts for both sides of the edge.
func (a *AuthController) invalidateFollowCaches(followerID uint, targetUsername string) {
	utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(targetUsername))
	var follower models.User
	if err := a.db.First(&follower, followerID).Error; err == nil {
		utils.InvalidateByPrefix("cache:user:public:" + strings.ToLower(follower.Username))
	}
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	userInfo, err := a.fetchOAuthUser(provider, token)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, err.Error())
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, userInfo)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"token": jwtToken, "user": sanitizeUserResponse(*user)})
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (a *AuthController) fetchOAuthUser(provider string, token *oauth2.Token) (*oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(token)
	case "google":
		return fetchGoogleUser(token)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID       string
	Username string
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Username:   a.ensureUniqueUsername(data.Username, provider, data.ID),
		Provider:   provider,
		ProviderID: data.ID,
		Filter:     models.FilterDefault,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fetchGitHubUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://api.github.com/user", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:       fmt.Sprintf("%d", payload.ID),
		Username: payload.Login,
	}, nil
}

func fetchGoogleUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:       payload.ID,
		Username: payload.Name,
	}, nil
}

// Helpers for validation
func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' {
			continue
		}
		return false
	}
	return true
}

func validPassword(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t\r\n")
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) string {
	base = sanitizeUsername(base)
	if base == "" {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
		if base == "" {
			base = fmt.Sprintf("user_%s", id)
		}
	}

	candidate := base
	suffix := 1
	for {
		var count int64
		if err := a.db.Model(&models.User{}).Where("LOWER(username) = LOWER(?)", candidate).Count(&count).Error; err != nil {
			return candidate
		}
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
		suffix++
	}
}

func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"bio":        user.Bio,
		"filter":     user.Filter,
		"provider":   user.Provider,
		"created_at": user.CreatedAt,
	}
}
