package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maibvn/pal/internal/pkg/response"
)

type HealthHandler struct {
	started time.Time
	version string
	env     string
}

func NewHealthHandler(version, env string) *HealthHandler {
	return &HealthHandler{started: time.Now(), version: version, env: env}
}

func (h *HealthHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "ok",
		"uptime":    int64(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *HealthHandler) Info(c *gin.Context) {
	response.Success(c, gin.H{
		"name":        "pal",
		"version":     h.version,
		"environment": h.env,
		"endpoints": gin.H{
			"health":    "/api/v1/health",
			"chat":      "/api/v1/chat",
			"documents": "/api/v1/documents",
			"metrics":   "/api/v1/metrics",
		},
	})
}
