package geoindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/geo/s2"
	"go.uber.org/zap"
)

// ErrGeocodingFailed wraps every failure of the geocoding collaborator
var ErrGeocodingFailed = errors.New("geocoding failed")

// ErrInvalidInput is returned for empty addresses and out-of-range coordinates
var ErrInvalidInput = errors.New("invalid geocoding input")

// Location is the result of resolving an address or coordinate pair
type Location struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	CellID     string  `json:"cell_id"`
	Resolution int     `json:"resolution"`
}

// Geocoder is the external geocoding collaborator
type Geocoder interface {
	Geocode(ctx context.Context, address string, resolution int) (*Location, error)
	GeocodeFromCoordinates(ctx context.Context, lat, lng float64, resolution int) (*Location, error)
}

// Adapter validates geocoder inputs and outputs
type Adapter struct {
	geocoder Geocoder
	logger   *zap.Logger
}

// NewAdapter creates a new geo-index adapter
func NewAdapter(geocoder Geocoder, logger *zap.Logger) *Adapter {
	return &Adapter{geocoder: geocoder, logger: logger}
}

// ValidCoordinates reports whether lat/lng is a usable point.
// The unset pair (0, 0) is treated as missing.
func ValidCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

// Locate resolves an address to a cell at the requested resolution
func (a *Adapter) Locate(ctx context.Context, address string, resolution int) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	res := NormalizeResolution(resolution)

	loc, err := a.geocoder.Geocode(ctx, address, res)
	if err != nil {
		a.logger.Warn("Geocoding address failed", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}
	if !ValidCoordinates(loc.Lat, loc.Lng) {
		return nil, fmt.Errorf("%w: geocoder returned invalid coordinates (%f, %f)", ErrGeocodingFailed, loc.Lat, loc.Lng)
	}
	return a.checkResult(loc, res)
}

// LocateCoordinates resolves a coordinate pair to a cell at the requested resolution
func (a *Adapter) LocateCoordinates(ctx context.Context, lat, lng float64, resolution int) (*Location, error) {
	if !ValidCoordinates(lat, lng) {
		return nil, fmt.Errorf("%w: coordinates (%f, %f)", ErrInvalidInput, lat, lng)
	}
	res := NormalizeResolution(resolution)

	loc, err := a.geocoder.GeocodeFromCoordinates(ctx, lat, lng, res)
	if err != nil {
		a.logger.Warn("Geocoding coordinates failed",
			zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}
	loc.Lat, loc.Lng = lat, lng
	return a.checkResult(loc, res)
}

// checkResult validates the cell returned by the collaborator
func (a *Adapter) checkResult(loc *Location, res int) (*Location, error) {
	info, err := ValidateCell(loc.CellID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}
	if info.Resolution != res {
		return nil, fmt.Errorf("%w: geocoder returned resolution %d, requested %d", ErrGeocodingFailed, info.Resolution, res)
	}
	loc.CellID = info.ID
	loc.Resolution = info.Resolution
	return loc, nil
}
