package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/flow"
	"github.com/playmatatu/experiment/internal/middleware"
	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/steps"
)

// SessionState is the per-session state the participant endpoints write.
type SessionState interface {
	Consent(ctx context.Context, sid string) error
	Consented(ctx context.Context, sid string) (bool, error)
	BeginResolving(ctx context.Context, sid string) (bool, error)
	EndResolving(ctx context.Context, sid string) error
	BindPlayer(ctx context.Context, sid, playerID string) error
}

// PlayerCreator creates or resumes players by identifier.
type PlayerCreator interface {
	GetOrCreatePlayer(ctx context.Context, identifier string) (*models.Player, bool, error)
}

// Viewer renders views and advances step sequences. Current renders without
// capturing URL parameters.
type Viewer interface {
	Render(ctx context.Context, sessionID, rawQuery string) (flow.Rendered, error)
	Current(ctx context.Context, sessionID string) (flow.Rendered, error)
	Advance(ctx context.Context, sessionID, sequence string) (string, error)
}

const maxIdentifierLen = 128

// CreateSession issues a token for a new browser session.
func CreateSession(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := uuid.NewString()
		token, err := iss.Issue(sid)
		if err != nil {
			log.Printf("[SESSION] Failed to issue token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token, "session_id": sid})
	}
}

// GiveConsent records the session's consent.
func GiveConsent(state SessionState, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.Claims(c)
		ctx := c.Request.Context()

		if err := state.Consent(ctx, claims.SessionID); err != nil {
			log.Printf("[SESSION] Failed to record consent for %s: %v", claims.SessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record consent"})
			return
		}
		events.Publish(ctx, bus, events.Event{Type: events.TypeConsent, SessionIDs: []string{claims.SessionID}})
		c.JSON(http.StatusOK, gin.H{"consented": true})
	}
}

// CreatePlayer creates the session's player, or resumes the player already
// registered under the identifier, and binds it to the session.
func CreatePlayer(state SessionState, players PlayerCreator, bus events.Publisher, requireConsent bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Identifier string `json:"identifier" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "identifier required"})
			return
		}
		identifier := strings.TrimSpace(req.Identifier)
		if identifier == "" || len(identifier) > maxIdentifierLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid identifier"})
			return
		}

		claims := middleware.Claims(c)
		sid := claims.SessionID
		ctx := c.Request.Context()

		if requireConsent {
			ok, err := state.Consented(ctx, sid)
			if err != nil {
				log.Printf("[SESSION] Failed to read consent for %s: %v", sid, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create player"})
				return
			}
			if !ok {
				c.JSON(http.StatusForbidden, gin.H{"error": "consent required"})
				return
			}
		}

		acquired, err := state.BeginResolving(ctx, sid)
		if err != nil {
			log.Printf("[SESSION] Failed to set resolving flag for %s: %v", sid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create player"})
			return
		}
		if !acquired {
			c.JSON(http.StatusConflict, gin.H{"error": "player creation already in progress"})
			return
		}
		events.Publish(ctx, bus, events.Event{Type: events.TypePlayerCreated, SessionIDs: []string{sid}})
		defer func() {
			if err := state.EndResolving(context.Background(), sid); err != nil {
				log.Printf("[SESSION] Failed to clear resolving flag for %s: %v", sid, err)
			}
			events.Publish(context.Background(), bus, events.Event{Type: events.TypePlayerCreated, SessionIDs: []string{sid}})
		}()

		player, created, err := players.GetOrCreatePlayer(ctx, identifier)
		if err != nil {
			log.Printf("[DB] Failed to create player for session %s: %v", sid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create player"})
			return
		}
		if err := state.BindPlayer(ctx, sid, player.ID); err != nil {
			log.Printf("[SESSION] Failed to bind player %s to %s: %v", player.ID, sid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create player"})
			return
		}

		log.Printf("[SESSION] session=%s player=%s created=%v", sid, player.ID, created)
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"player_id": player.ID, "created": created})
	}
}

// GetView returns the screen the session should show. The request's query
// string is the participant's page query.
func GetView(v Viewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.Claims(c)
		query := c.Request.URL.Query()
		query.Del("token")

		r, err := v.Render(c.Request.Context(), claims.SessionID, query.Encode())
		if err != nil {
			log.Printf("[GATE] render for session %s: %v", claims.SessionID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "view unavailable"})
			return
		}
		c.JSON(http.StatusOK, r.View)
	}
}

// AdvanceStep completes the current intro or exit step.
func AdvanceStep(v Viewer, bus events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Sequence string `json:"sequence" binding:"required,oneof=intro exit"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sequence must be intro or exit"})
			return
		}

		claims := middleware.Claims(c)
		ctx := c.Request.Context()
		playerID, err := v.Advance(ctx, claims.SessionID, req.Sequence)
		switch {
		case errors.Is(err, flow.ErrNotOnStep), errors.Is(err, steps.ErrDone):
			c.JSON(http.StatusConflict, gin.H{"error": "not on a " + req.Sequence + " step"})
			return
		case err != nil:
			log.Printf("[STEPS] advance %s for session %s: %v", req.Sequence, claims.SessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to advance step"})
			return
		}

		events.Publish(ctx, bus, events.Event{
			Type:       events.TypeSteps,
			SessionIDs: []string{claims.SessionID},
			PlayerIDs:  []string{playerID},
		})

		r, err := v.Current(ctx, claims.SessionID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"advanced": true})
			return
		}
		c.JSON(http.StatusOK, r.View)
	}
}
