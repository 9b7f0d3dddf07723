package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/handler"
	"github.com/snsgroups/proctor-backend/internal/middleware"
	"github.com/snsgroups/proctor-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Attempt Lifecycle (REST) ───────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	{
		attempts.POST("/:contest_id/start", handlers.Attempt.Start)
		attempts.GET("/:contest_id/state", handlers.Attempt.State)
		attempts.POST("/:contest_id/answer", handlers.Attempt.Answer)
		attempts.POST("/:contest_id/review", handlers.Attempt.Review)
		attempts.POST("/:contest_id/cursor", handlers.Attempt.Cursor)
		attempts.POST("/:contest_id/finish", handlers.Attempt.Finish)
	}

	// ─── 2. Proctoring Stream (WebSocket) ──────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/attempts/:contest_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
