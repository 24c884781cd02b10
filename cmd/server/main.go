package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/riskzone-engine/internal/api"
	"github.com/jengzang/riskzone-engine/internal/app"
	"github.com/jengzang/riskzone-engine/internal/config"
	"github.com/jengzang/riskzone-engine/internal/handler"
	"github.com/jengzang/riskzone-engine/internal/logger"
	"github.com/jengzang/riskzone-engine/internal/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "riskzone-engine")
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
		go sweepLimiter(ctx, limiter)
	}

	router := api.SetupRouter(cfg, api.Handlers{
		RiskZones: handler.NewRiskZoneHandler(a.Zones, a.Batch, zl.Named("http")),
		Routes:    handler.NewRouteHandler(a.Analyzer),
		Posture:   handler.NewPostureHandler(a.Posture, zl.Named("http")),
		Geo:       handler.NewGeoHandler(a.Geo, zl.Named("http")),
	}, limiter, zl)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("Server starting", zap.String("addr", cfg.Port), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown failed", zap.Error(err))
	}
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
