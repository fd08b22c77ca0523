package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/playmatatu/experiment/internal/config"
	"github.com/playmatatu/experiment/internal/database"
	"github.com/playmatatu/experiment/internal/middleware"
	"github.com/playmatatu/experiment/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	adminKey := os.Getenv("ADMIN_KEY")
	if adminKey == "" {
		adminKey = "change-me-in-production"
		log.Printf("WARNING: Using default admin key. Set ADMIN_KEY env var in production!")
	}
	hash, err := middleware.HashAdminKey(adminKey)
	if err != nil {
		log.Fatalf("Failed to hash admin key: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	s := store.New(db)

	if err := s.SetExperimentOpen(ctx, true); err != nil {
		log.Fatalf("Failed to open experiment: %v", err)
	}

	// SEED_PLAYER_COUNT=0 seeds a game without a headcount
	var t store.Treatment
	if n, err := strconv.Atoi(os.Getenv("SEED_PLAYER_COUNT")); err == nil {
		if n > 0 {
			t.PlayerCount = &n
		}
	} else {
		n := 2
		t.PlayerCount = &n
	}
	g, err := s.CreateGame(ctx, t)
	if err != nil {
		log.Fatalf("Failed to create game: %v", err)
	}

	log.Printf("✓ Experiment seeded successfully")
	log.Printf("  Game: %s", g.ID)
	log.Println("\nSet this in the server environment:")
	log.Printf("  ADMIN_KEY_HASH=%s", hash)
	log.Println("\nThen call /api/v1/admin with header:")
	log.Printf("  X-Admin-Key: %s", adminKey)
}
