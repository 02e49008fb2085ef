package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vestra/chain_service/internal/api/handlers"
	"github.com/vestra/chain_service/internal/api/middleware"
	"github.com/vestra/chain_service/pkg/logger"
)

// Handlers bundles everything SetupRoutes wires up
type Handlers struct {
	Health      *handlers.HealthHandlers
	Webhook     *handlers.DepositWebhookHandlers
	Diagnostics *handlers.DiagnosticsHandlers
	Withdrawal  *handlers.WithdrawalHandlers
}

// SetupRoutes configures all application routes
func SetupRoutes(h Handlers, log *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Probes and metrics
	router.GET("/health/liveness", h.Health.Liveness)
	router.GET("/health/readiness", h.Health.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Push ingestion path. GET is the provider's endpoint check.
	router.POST("/deposits/webhook", h.Webhook.Receive)
	router.GET("/deposits/webhook", h.Webhook.Liveness)

	// Withdrawal lifecycle
	withdrawals := router.Group("/withdrawals")
	{
		withdrawals.POST("", h.Withdrawal.Create)
		withdrawals.GET("", h.Withdrawal.List)
		withdrawals.GET("/:id", h.Withdrawal.Get)
		withdrawals.POST("/:id/approve", h.Withdrawal.Approve)
		withdrawals.POST("/:id/reject", h.Withdrawal.Reject)
	}

	// Read-only diagnostics consumed by the admin tool
	diagnostics := router.Group("/diagnostics")
	{
		diagnostics.GET("/config", h.Diagnostics.GetConfig)
		diagnostics.GET("/checkpoints", h.Diagnostics.GetCheckpoints)
		diagnostics.GET("/counts", h.Diagnostics.GetCounts)
		diagnostics.GET("/events", h.Diagnostics.ListEvents)
		diagnostics.GET("/scan-logs", h.Diagnostics.ListScanLogs)
		diagnostics.GET("/withdrawal-worker", h.Diagnostics.GetWithdrawalWorker)
	}

	return router
}
