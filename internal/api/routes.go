package api

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/api/handlers"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/config"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/middleware"
	"github.com/playmatatu/experiment/internal/ws"
)

// Deps bundles what the routes need.
type Deps struct {
	Config   *config.Config
	Issuer   *auth.Issuer
	Sessions handlers.SessionState
	Players  handlers.PlayerCreator
	Admin    handlers.AdminStore
	Viewer   handlers.Viewer
	Bus      events.Publisher
	Hub      *ws.Hub
	Health   []handlers.Pinger
}

// SetupRoutes configures all API routes
func SetupRoutes(ctx context.Context, router *gin.Engine, d Deps) {
	cfg := d.Config

	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	health := handlers.HealthCheck(d.Health...)
	router.GET("/health", health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health)
		v1.POST("/session", handlers.CreateSession(d.Issuer))

		participant := v1.Group("")
		participant.Use(middleware.RequireSession(d.Issuer))
		{
			participant.POST("/consent", handlers.GiveConsent(d.Sessions, d.Bus))
			participant.POST("/player", handlers.CreatePlayer(d.Sessions, d.Players, d.Bus, !cfg.DisableConsent))
			participant.GET("/view", handlers.GetView(d.Viewer))
			participant.POST("/steps/advance", handlers.AdvanceStep(d.Viewer, d.Bus))
			participant.GET("/ws", middleware.WebSocketCORSCheck(cfg), ws.HandleWebSocket(ctx, d.Hub))
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg))
		{
			admin.PUT("/globals/experiment-open", handlers.SetExperimentOpen(d.Admin, d.Bus))
			admin.POST("/games", handlers.CreateGame(d.Admin))
			admin.GET("/games/:id", handlers.GetGameDetail(d.Admin))
			admin.POST("/games/:id/players", handlers.AssignPlayer(d.Admin, d.Bus))
			admin.POST("/games/:id/start", handlers.StartGame(d.Admin, d.Bus))
			admin.POST("/games/:id/end", handlers.EndGame(d.Admin, d.Bus))
			admin.POST("/players/:id/end", handlers.EndPlayer(d.Admin, d.Bus))
		}
	}
}
