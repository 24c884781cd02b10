// Package geocoding is an HTTP client for the external geocoding service
// that resolves addresses and coordinates to H3 cells.
package geocoding

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds the geocoder endpoint settings
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryCount  int
	MaxFailures uint32        // consecutive failures before the breaker opens
	OpenTimeout time.Duration // how long the breaker stays open
}

// locationResponse is the geocoder payload
type locationResponse struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	CellID     string  `json:"cell_id"`
	Resolution int     `json:"resolution"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client calls the geocoding service behind a circuit breaker
type Client struct {
	httpClient *resty.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a geocoding client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json")

	maxFailures := cfg.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geocoder",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geocoder circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}
}

// Geocode resolves a free-text address
func (c *Client) Geocode(ctx context.Context, address string, resolution int) (*geoindex.Location, error) {
	return c.get(ctx, "/geocode", map[string]string{
		"address":    address,
		"resolution": strconv.Itoa(resolution),
	})
}

// GeocodeFromCoordinates resolves a coordinate pair
func (c *Client) GeocodeFromCoordinates(ctx context.Context, lat, lng float64, resolution int) (*geoindex.Location, error) {
	return c.get(ctx, "/reverse", map[string]string{
		"lat":        strconv.FormatFloat(lat, 'f', -1, 64),
		"lng":        strconv.FormatFloat(lng, 'f', -1, 64),
		"resolution": strconv.Itoa(resolution),
	})
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (*geoindex.Location, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var (
			result locationResponse
			apiErr errorResponse
		)
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&result).
			SetError(&apiErr).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("failed to call geocoder: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("geocoder returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return &geoindex.Location{
			Lat:        result.Lat,
			Lng:        result.Lng,
			CellID:     result.CellID,
			Resolution: result.Resolution,
		}, nil
	})
	if err != nil {
		c.logger.Warn("Geocoder request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return out.(*geoindex.Location), nil
}
