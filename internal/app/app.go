// Package app wires the stores, engines and services shared by the server and riskctl.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jengzang/riskzone-engine/internal/batch"
	"github.com/jengzang/riskzone-engine/internal/cache"
	"github.com/jengzang/riskzone-engine/internal/config"
	"github.com/jengzang/riskzone-engine/internal/corridor"
	"github.com/jengzang/riskzone-engine/internal/database"
	"github.com/jengzang/riskzone-engine/internal/geocoding"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/internal/posture"
	"github.com/jengzang/riskzone-engine/internal/repository"
	"github.com/jengzang/riskzone-engine/internal/scoring"
	"github.com/jengzang/riskzone-engine/internal/service"
	"go.uber.org/zap"
)

// App holds every long-lived component
type App struct {
	DB       *sql.DB
	Redis    *redis.Client // nil when REDIS_ADDR is unset
	Store    *repository.RiskStore
	Engine   *scoring.Engine
	Batch    *batch.Service
	Zones    *service.RiskZoneService
	Analyzer *corridor.Analyzer
	Posture  *posture.Aggregator
	Geo      *geoindex.Adapter // nil when GEOCODER_URL is unset
}

// ScoringConfig derives the engine constants from the environment configuration
func ScoringConfig(cfg *config.Config) scoring.Config {
	sc := scoring.DefaultConfig()
	if cfg.ScoreWindowDays > 0 {
		sc.WindowDays = cfg.ScoreWindowDays
	}
	if cfg.ScoreHalfLifeDays > 0 {
		sc.HalfLifeDays = cfg.ScoreHalfLifeDays
	}
	if cfg.ScoreVerificationBonus > 0 {
		sc.VerificationBonus = cfg.ScoreVerificationBonus
	}
	return sc
}

// New opens the database, applies migrations and builds the component graph
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Open(database.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		URL:    cfg.DatabaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &App{DB: db}
	if err := a.build(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := database.NewMigrationManager(a.DB, cfg.DBDriver, logger).RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Store = repository.NewRiskStore(a.DB, cfg.DBDriver)

	engine, err := scoring.NewEngine(a.Store, ScoringConfig(cfg), logger.Named("scoring"))
	if err != nil {
		return err
	}
	a.Engine = engine

	var scoreCache service.ScoreCache
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return err
		}
		a.Redis = client
		sc := cache.NewScoreCache(client, cfg.ScoreCacheTTL, logger)
		engine.SetListener(sc)
		scoreCache = sc
	}

	a.Batch = batch.NewService(engine, a.Store, batch.Options{
		Workers:  cfg.BatchWorkers,
		MaxCells: cfg.BatchMaxCells,
	}, logger.Named("batch"))
	a.Zones = service.NewRiskZoneService(a.Store, engine, scoreCache, logger.Named("zones"))

	registry, err := corridor.LoadRegistryFile(cfg.CorridorCatalog)
	if err != nil {
		return fmt.Errorf("failed to load corridor catalog: %w", err)
	}
	a.Analyzer = corridor.NewAnalyzer(registry, corridor.DefaultOptions())
	logger.Info("Corridor catalog loaded",
		zap.String("version", registry.Version()),
		zap.Int("corridors", len(registry.Corridors())),
	)

	a.Posture = posture.NewAggregator(a.Store, logger.Named("posture"))

	if cfg.GeocoderURL != "" {
		client := geocoding.NewClient(geocoding.Config{
			BaseURL:    cfg.GeocoderURL,
			Timeout:    cfg.GeocoderTimeout,
			RetryCount: 2,
		}, logger.Named("geocoder"))
		a.Geo = geoindex.NewAdapter(client, logger.Named("geoindex"))
	}
	return nil
}

// Close releases the database and redis connections
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
