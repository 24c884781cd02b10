package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/corridor"
	"github.com/jengzang/riskzone-engine/internal/metrics"
	"github.com/jengzang/riskzone-engine/pkg/response"
)

// RouteHandler handles HTTP requests for corridor route analysis
type RouteHandler struct {
	analyzer *corridor.Analyzer
}

// NewRouteHandler creates a new route handler
func NewRouteHandler(analyzer *corridor.Analyzer) *RouteHandler {
	return &RouteHandler{analyzer: analyzer}
}

type analyzeRouteRequest struct {
	Origin      corridor.Point `json:"origin"`
	Destination corridor.Point `json:"destination"`
}

// Analyze classifies a route against the corridor catalog.
// Missing endpoints yield is_analyzed=false, not an error.
// POST /api/v1/routes/analyze
func (h *RouteHandler) Analyze(c *gin.Context) {
	var req analyzeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result := h.analyzer.AnalyzeRoute(req.Origin, req.Destination)
	metrics.RouteAnalyses.WithLabelValues(result.Status, result.OverallRiskLevel).Inc()

	response.Success(c, result)
}

// Corridors lists the corridor catalog with its segments
// GET /api/v1/corridors
func (h *RouteHandler) Corridors(c *gin.Context) {
	reg := h.analyzer.Registry()

	type corridorView struct {
		corridor.Corridor
		Segments []corridor.Segment `json:"segments"`
	}

	corridors := reg.Corridors()
	views := make([]corridorView, 0, len(corridors))
	for _, cor := range corridors {
		view := corridorView{Corridor: cor, Segments: make([]corridor.Segment, 0, len(cor.SegmentIDs))}
		for _, id := range cor.SegmentIDs {
			if seg, ok := reg.Segment(id); ok {
				view.Segments = append(view.Segments, seg)
			}
		}
		views = append(views, view)
	}

	response.Success(c, gin.H{
		"version":   reg.Version(),
		"corridors": views,
	})
}
