package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/freetapp/freet/middleware"
	"github.com/freetapp/freet/models"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// newTestApp builds an in-memory database and a router without rate
// limiting so tests can hammer endpoints freely.
func newTestApp(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Freet{},
		&models.Like{},
		&models.Relevance{},
		&models.RelevanceVote{},
		&models.Read{},
		&models.Collection{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	authController := NewAuthController(db)
	freetController := NewFreetController(db)
	readController := NewReadController(db)
	relevanceController := NewRelevanceController(db)
	collectionController := NewCollectionController(db)

	r := gin.New()
	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)
	authGroup.DELETE("/account", middleware.AuthRequired(), authController.DeleteAccount)

	api.GET("/users/:username", authController.GetUserPublic)
	api.GET("/relevance", relevanceController.Rank)
	api.GET("/freets/:id/replies", freetController.ListReplies)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.POST("/users/follow", authController.Follow)
	protected.DELETE("/users/follow/:username", authController.Unfollow)
	protected.GET("/freets", freetController.ListFreets)
	protected.POST("/freets", freetController.CreateFreet)
	protected.PUT("/freets/:id", freetController.UpdateFreet)
	protected.DELETE("/freets/:id", freetController.DeleteFreet)
	protected.POST("/freets/:id/like", freetController.LikeFreet)
	protected.DELETE("/freets/:id/like", freetController.UnlikeFreet)
	protected.POST("/reads", readController.Create)
	protected.POST("/relevance", relevanceController.Vote)
	protected.DELETE("/relevance/:id/vote", relevanceController.Retract)
	protected.GET("/collections", collectionController.List)
	protected.POST("/collections", collectionController.Create)
	protected.PUT("/collections/:id", collectionController.Update)
	protected.DELETE("/collections/:id", collectionController.Delete)

	return r, db
}

func doRequest(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return env
}

// registerUser creates an account and returns its token and id.
func registerUser(t *testing.T, r http.Handler, username string) (string, uint) {
	t.Helper()
	w := doRequest(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"password": "hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var data struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	return data.Token, data.User.ID
}

// createFreet posts a freet and returns its id.
func createFreet(t *testing.T, r http.Handler, token string, body gin.H) uint {
	t.Helper()
	w := doRequest(t, r, http.MethodPost, "/api/v1/freets", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("create freet: status %d body %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var data struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode freet: %v", err)
	}
	return data.ID
}
