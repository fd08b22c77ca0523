package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/store"
)

// AdminStore is the write side used by the admin endpoints.
type AdminStore interface {
	SetExperimentOpen(ctx context.Context, open bool) error
	CreateGame(ctx context.Context, t store.Treatment) (*models.Game, error)
	GetGame(ctx context.Context, id string) (*models.Game, error)
	GamePlayers(ctx context.Context, gameID string) ([]models.Player, error)
	AssignPlayer(ctx context.Context, playerID, gameID string) error
	StartGame(ctx context.Context, gameID string) (*store.Placement, error)
	EndGame(ctx context.Context, gameID string) error
	EndPlayer(ctx context.Context, playerID string) error
}

// SetExperimentOpen opens or closes the experiment to new assignments.
func SetExperimentOpen(s AdminStore, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Open *bool `json:"open" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open required"})
			return
		}

		ctx := c.Request.Context()
		if err := s.SetExperimentOpen(ctx, *req.Open); err != nil {
			log.Printf("[ADMIN] Failed to set experiment_open: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update globals"})
			return
		}
		log.Printf("[ADMIN] experiment_open=%v", *req.Open)
		events.Publish(ctx, bus, events.Event{Type: events.TypeGlobals, All: true})
		c.JSON(http.StatusOK, gin.H{"experiment_open": *req.Open})
	}
}

// CreateGame creates a lobby game for a treatment.
func CreateGame(s AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerCount *int `json:"player_count"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.PlayerCount != nil && *req.PlayerCount < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_count must be at least 1"})
			return
		}

		g, err := s.CreateGame(c.Request.Context(), store.Treatment{PlayerCount: req.PlayerCount})
		if err != nil {
			log.Printf("[ADMIN] Failed to create game: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create game"})
			return
		}
		log.Printf("[ADMIN] Game created: %s", g.ID)
		c.JSON(http.StatusCreated, gameResponse(g, nil))
	}
}

// GetGameDetail returns a game with its assigned players.
func GetGameDetail(s AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := s.GetGame(ctx, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch game %s: %v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch game"})
			return
		}
		players, err := s.GamePlayers(ctx, g.ID)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch players of game %s: %v", g.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch game"})
			return
		}
		c.JSON(http.StatusOK, gameResponse(g, players))
	}
}

// AssignPlayer attaches a waiting player to a lobby game.
func AssignPlayer(s AdminStore, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"player_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_id required"})
			return
		}

		ctx := c.Request.Context()
		gameID := c.Param("id")
		err := s.AssignPlayer(ctx, req.PlayerID, gameID)
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "player or game not assignable"})
			return
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to assign %s to %s: %v", req.PlayerID, gameID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign player"})
			return
		}
		events.Publish(ctx, bus, events.Event{Type: events.TypePlayerUpdated, PlayerIDs: []string{req.PlayerID}, GameID: gameID})
		c.JSON(http.StatusOK, gin.H{"player_id": req.PlayerID, "game_id": gameID})
	}
}

// StartGame moves a lobby game to running and places its players.
func StartGame(s AdminStore, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		gameID := c.Param("id")
		pl, err := s.StartGame(ctx, gameID)
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "game not in lobby"})
			return
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to start game %s: %v", gameID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start game"})
			return
		}
		log.Printf("[ADMIN] Game %s started with %d players", gameID, len(pl.PlayerIDs))
		events.Publish(ctx, bus, events.Event{Type: events.TypeGameUpdated, GameID: gameID, PlayerIDs: pl.PlayerIDs})
		c.JSON(http.StatusOK, gin.H{
			"game_id":    pl.GameID,
			"round_id":   pl.RoundID,
			"stage_id":   pl.StageID,
			"player_ids": pl.PlayerIDs,
		})
	}
}

// EndGame flags a game as ended.
func EndGame(s AdminStore, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		gameID := c.Param("id")
		err := s.EndGame(ctx, gameID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to end game %s: %v", gameID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end game"})
			return
		}
		events.Publish(ctx, bus, events.Event{Type: events.TypeGameUpdated, GameID: gameID})
		c.JSON(http.StatusOK, gin.H{"game_id": gameID, "has_ended": true})
	}
}

// EndPlayer marks a player finished.
func EndPlayer(s AdminStore, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		playerID := c.Param("id")
		err := s.EndPlayer(ctx, playerID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		if err != nil {
			log.Printf("[ADMIN] Failed to end player %s: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end player"})
			return
		}
		events.Publish(ctx, bus, events.Event{Type: events.TypePlayerEnded, PlayerIDs: []string{playerID}})
		c.JSON(http.StatusOK, gin.H{"player_id": playerID, "ended": true})
	}
}

func gameResponse(g *models.Game, players []models.Player) gin.H {
	t := store.DecodeTreatment(g.Treatment)
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return gin.H{
		"id":           g.ID,
		"status":       g.Status,
		"has_ended":    g.HasEnded,
		"player_count": t.PlayerCount,
		"player_ids":   ids,
		"created_at":   g.CreatedAt,
	}
}
