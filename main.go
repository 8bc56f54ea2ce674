package main

import (
	"context"
	"time"

	"github.com/cppla/piazza/config"
	"github.com/cppla/piazza/controllers"
	"github.com/cppla/piazza/models"
	"github.com/cppla/piazza/repository"
	"github.com/cppla/piazza/routes"
	"github.com/cppla/piazza/services"
	"github.com/cppla/piazza/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.User{}, &models.Post{}, &models.Comment{})
	utils.InitRedis(cfg)

	store := repository.NewGormStore(db)
	clock := services.SystemClock{}
	lifecycle := services.NewLifecycleService(store, services.Options{
		Clock:      clock,
		Policy:     services.NewExpiryPolicy(time.Duration(cfg.PostLifespanMinutes) * time.Minute),
		MaxRetries: cfg.VoteMaxRetries,
		Logger:     utils.Logger.Named("posts"),
	})
	query := services.NewQueryService(store, lifecycle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.StartExpirySweeper(ctx, lifecycle, time.Duration(cfg.ExpirySweepSeconds)*time.Second)

	postController := controllers.NewPostController(lifecycle, query, clock, time.Duration(cfg.ListCacheSeconds)*time.Second)
	r := routes.SetupRouter(cfg, postController)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, cancel); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
