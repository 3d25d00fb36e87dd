// Package api exposes the reconciliation workflow over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/opname-service/internal/application"
	"github.com/wms-platform/opname-service/pkg/idempotency"
	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/metrics"
	"github.com/wms-platform/opname-service/pkg/middleware"
)

// BasePath prefixes every workflow route
const BasePath = "/api/v1/opname"

// RouterConfig holds what the router needs. Idempotency, ScanRateLimit and
// Ready are optional.
type RouterConfig struct {
	ServiceName string
	Service     *application.OpnameService
	Queries     *application.QueryService
	Verifier    middleware.TokenVerifier
	Logger      *logging.Logger
	Metrics     *metrics.Metrics

	Idempotency *idempotency.Config
	// ScanRateLimit is a limiter rate such as "600-M" applied per caller to
	// the scan routes.
	ScanRateLimit string
	Ready         func() error
}

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(cfg *RouterConfig) (*gin.Engine, error) {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(cfg.ServiceName, cfg.Logger.Logger))
	router.Use(middleware.Metrics(cfg.Metrics))
	router.Use(middleware.Tracing(cfg.ServiceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())
	router.HandleMethodNotAllowed = true

	ready := cfg.Ready
	if ready == nil {
		ready = func() error { return nil }
	}
	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, ready))
	router.GET("/metrics", middleware.MetricsEndpoint(cfg.Metrics))

	api := router.Group(BasePath)
	api.Use(middleware.Authenticate(cfg.Verifier))
	if cfg.Idempotency != nil {
		api.Use(idempotency.Middleware(cfg.Idempotency))
	}

	svc, queries, logger := cfg.Service, cfg.Queries, cfg.Logger
	sessions := api.Group("/sessions")
	{
		sessions.POST("", createSessionHandler(svc, logger))
		sessions.GET("", listSessionsHandler(queries, logger))
		sessions.GET("/:sessionId", getSessionHandler(queries, logger))
		sessions.POST("/:sessionId/complete", completeSessionHandler(svc, logger))
		sessions.GET("/:sessionId/discrepancies", getDiscrepanciesHandler(queries, logger))
		sessions.PUT("/:sessionId/discrepancies", resolveDiscrepanciesHandler(svc, logger))
		sessions.POST("/:sessionId/lock", lockSessionHandler(svc, logger))
		sessions.GET("/:sessionId/verification", verificationHandler(queries, logger))
	}

	scans := sessions.Group("/:sessionId/scans")
	if cfg.ScanRateLimit != "" {
		limit, err := middleware.RateLimit(cfg.ScanRateLimit)
		if err != nil {
			return nil, err
		}
		scans.Use(limit)
	}
	{
		scans.POST("", recordScanHandler(svc, logger))
		scans.POST("/bulk", recordBulkScanHandler(svc, logger))
		scans.DELETE("/:scanId", retractScanHandler(svc, logger))
	}

	return router, nil
}

// CallerID scopes idempotency keys to the authenticated caller
func CallerID(c *gin.Context) string {
	if p, ok := middleware.GetPrincipal(c); ok {
		return p.ID
	}
	return ""
}
