package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/vestra/chain_service/internal/infrastructure/cache"
	"github.com/vestra/chain_service/internal/infrastructure/database"
)

// HealthHandlers exposes liveness and readiness probes
type HealthHandlers struct {
	db        *sqlx.DB
	redis     cache.RedisClient
	version   string
	startTime time.Time
}

// NewHealthHandlers creates a new HealthHandlers instance
func NewHealthHandlers(db *sqlx.DB, redis cache.RedisClient, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		redis:     redis,
		version:   version,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health/liveness
func (h *HealthHandlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "alive",
		"version": h.version,
		"uptime":  time.Since(h.startTime).String(),
	})
}

// Readiness handles GET /health/readiness. Unready when the database or
// redis cannot be reached.
func (h *HealthHandlers) Readiness(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unready"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"version": h.version,
		"checks":  checks,
	})
}
