package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freetapp/freet/config"
	"github.com/freetapp/freet/controllers"
	"github.com/freetapp/freet/middleware"
	"github.com/freetapp/freet/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	freetController := controllers.NewFreetController(db)
	readController := controllers.NewReadController(db)
	relevanceController := controllers.NewRelevanceController(db)
	collectionController := controllers.NewCollectionController(db)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)
	authGroup.DELETE("/account", middleware.AuthRequired(), authController.DeleteAccount)

	// Public endpoints: profiles, rankings, reply threads
	api.GET("/users/:username", authController.GetUserPublic)
	api.GET("/relevance", relevanceController.Rank)
	api.GET("/freets/:id/replies", freetController.ListReplies)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

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

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
