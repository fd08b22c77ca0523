package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playmatatu/experiment/internal/api"
	"github.com/playmatatu/experiment/internal/api/handlers"
	"github.com/playmatatu/experiment/internal/assign"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/config"
	"github.com/playmatatu/experiment/internal/database"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/flow"
	"github.com/playmatatu/experiment/internal/migrations"
	"github.com/playmatatu/experiment/internal/redis"
	"github.com/playmatatu/experiment/internal/sessionstate"
	"github.com/playmatatu/experiment/internal/steps"
	"github.com/playmatatu/experiment/internal/store"
	"github.com/playmatatu/experiment/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	entities := store.New(db)
	sessions := sessionstate.New(rdb, time.Duration(cfg.SessionTimeoutMin)*time.Minute)
	bus := events.NewBus(rdb)

	progress := func(playerID, indexKey, doneKey string) steps.Progress {
		return steps.NewRedisProgress(rdb, playerID, indexKey, doneKey)
	}
	resolver := flow.NewResolver(cfg.GateFlags(),
		steps.Static(cfg.IntroSteps...), steps.Static(cfg.ExitSteps...),
		progress, entities)
	service := flow.NewService(flow.NewLoader(entities, sessions), resolver)

	hub := ws.NewHub(service, sessions)
	go hub.Run(ctx)
	if err := bus.Subscribe(ctx, hub.Notify); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", events.Channel, err)
	}

	// Workers only drive managed experiments
	if !cfg.UnmanagedAssignment {
		go assign.StartAssignWorker(ctx, entities, bus, time.Duration(cfg.AssignPollSeconds)*time.Second)
	}
	go assign.StartEndWorker(ctx, entities, bus, time.Duration(cfg.EndPollSeconds)*time.Second)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	api.SetupRoutes(ctx, router, api.Deps{
		Config:   cfg,
		Issuer:   auth.NewIssuer(cfg.JWTSecret, time.Duration(cfg.SessionTimeoutMin)*time.Minute),
		Sessions: sessions,
		Players:  entities,
		Admin:    entities,
		Viewer:   service,
		Bus:      bus,
		Hub:      hub,
		Health:   []handlers.Pinger{entities, sessions},
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting experiment server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
