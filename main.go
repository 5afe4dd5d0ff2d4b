package main

import (
	"github.com/freetapp/freet/config"
	"github.com/freetapp/freet/models"
	"github.com/freetapp/freet/routes"
	"github.com/freetapp/freet/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Follow{},
		&models.Freet{},
		&models.Like{},
		&models.Relevance{},
		&models.RelevanceVote{},
		&models.Read{},
		&models.Collection{},
	)

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
