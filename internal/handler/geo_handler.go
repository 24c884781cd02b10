package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/pkg/response"
	"go.uber.org/zap"
)

// GeoHandler resolves addresses and coordinates to cells
type GeoHandler struct {
	adapter *geoindex.Adapter // nil when no geocoder is configured
	logger  *zap.Logger
}

// NewGeoHandler creates a new geo handler
func NewGeoHandler(adapter *geoindex.Adapter, logger *zap.Logger) *GeoHandler {
	return &GeoHandler{adapter: adapter, logger: logger}
}

type locateRequest struct {
	Address    string   `json:"address"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	Resolution int      `json:"resolution"`
}

// Locate resolves an address or a coordinate pair
// POST /api/v1/geo/locate
func (h *GeoHandler) Locate(c *gin.Context) {
	if h.adapter == nil {
		response.ServiceUnavailable(c, "geocoder is not configured")
		return
	}

	var req locateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var (
		loc *geoindex.Location
		err error
	)
	switch {
	case req.Lat != nil && req.Lng != nil:
		loc, err = h.adapter.LocateCoordinates(c.Request.Context(), *req.Lat, *req.Lng, req.Resolution)
	case req.Address != "":
		loc, err = h.adapter.Locate(c.Request.Context(), req.Address, req.Resolution)
	default:
		response.BadRequest(c, "address or lat/lng is required")
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, loc)
}
