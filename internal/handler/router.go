package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maibvn/pal/internal/metrics"
	"github.com/maibvn/pal/internal/middleware"
)

type RouterDeps struct {
	Documents       *DocumentHandler
	Chat            *ChatHandler
	Health          *HealthHandler
	ShowErrorDetail bool
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Use(showErrorDetail(deps.ShowErrorDetail))
	api.GET("/", deps.Health.Info)
	api.GET("/health", deps.Health.Health)
	api.GET("/metrics", metrics.Handler())

	limited := api.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimitWindow, deps.RateLimitMax))

	limited.POST("/documents/upload", deps.Documents.Upload)
	limited.GET("/documents", deps.Documents.List)
	limited.GET("/documents/stats/summary", deps.Documents.Stats)
	limited.GET("/documents/:id", deps.Documents.Get)
	limited.GET("/documents/:id/file", deps.Documents.Download)
	limited.POST("/documents/:id/reprocess", deps.Documents.Reprocess)
	limited.DELETE("/documents/:id", deps.Documents.Delete)

	limited.POST("/chat", deps.Chat.Send)
	limited.GET("/chat/sessions", deps.Chat.ListSessions)
	limited.GET("/chat/sessions/:sessionId", deps.Chat.GetSession)
	limited.PUT("/chat/sessions/:sessionId", deps.Chat.RenameSession)
	limited.DELETE("/chat/sessions/:sessionId", deps.Chat.DeleteSession)
}
