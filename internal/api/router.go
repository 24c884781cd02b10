package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/config"
	"github.com/jengzang/riskzone-engine/internal/handler"
	"github.com/jengzang/riskzone-engine/internal/metrics"
	"github.com/jengzang/riskzone-engine/internal/middleware"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted under /api/v1
type Handlers struct {
	RiskZones *handler.RiskZoneHandler
	Routes    *handler.RouteHandler
	Posture   *handler.PostureHandler
	Geo       *handler.GeoHandler
}

// SetupRouter builds the gin engine with middleware and routes
func SetupRouter(cfg *config.Config, h Handlers, limiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(logger), middleware.Recovery(logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Risk zone engine is running",
			"time":    time.Now().UTC(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret, cfg.AuthRequired), middleware.RateLimit(limiter))
	{
		zones := v1.Group("/risk-zones")
		{
			zones.GET("", h.RiskZones.List)
			zones.POST("/recalculate", h.RiskZones.Recalculate)
			zones.POST("/refresh", h.RiskZones.Refresh)
			zones.DELETE("/adjustments/:id", h.RiskZones.RevokeAdjustment)
			zones.GET("/:cell_id", h.RiskZones.Get)
			zones.GET("/:cell_id/history", h.RiskZones.History)
			zones.GET("/:cell_id/adjustments", h.RiskZones.Adjustments)
			zones.POST("/:cell_id/adjustments", h.RiskZones.CreateAdjustment)
		}

		events := v1.Group("/security-events")
		{
			events.POST("", h.RiskZones.RecordEvent)
			events.POST("/:id/archive", h.RiskZones.ArchiveEvent)
		}

		v1.POST("/routes/analyze", h.Routes.Analyze)
		v1.GET("/corridors", h.Routes.Corridors)
		v1.GET("/security/posture", h.Posture.Summary)
		v1.POST("/geo/locate", h.Geo.Locate)
	}

	return r
}
