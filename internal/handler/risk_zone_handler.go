package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/batch"
	"github.com/jengzang/riskzone-engine/internal/middleware"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/service"
	"github.com/jengzang/riskzone-engine/pkg/response"
	"go.uber.org/zap"
)

// RiskZoneHandler handles HTTP requests for zone scores, events and adjustments
type RiskZoneHandler struct {
	zones  *service.RiskZoneService
	batch  *batch.Service
	logger *zap.Logger
}

// NewRiskZoneHandler creates a new risk zone handler
func NewRiskZoneHandler(zones *service.RiskZoneService, batchService *batch.Service, logger *zap.Logger) *RiskZoneHandler {
	return &RiskZoneHandler{zones: zones, batch: batchService, logger: logger}
}

type recalculateRequest struct {
	CellIDs []string `json:"cell_ids"`
}

// Recalculate recalculates a batch of cells
// POST /api/v1/risk-zones/recalculate
func (h *RiskZoneHandler) Recalculate(c *gin.Context) {
	var req recalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.batch.RecalculateManyAs(c.Request.Context(), req.CellIDs, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}

// Refresh recalculates every known cell
// POST /api/v1/risk-zones/refresh
func (h *RiskZoneHandler) Refresh(c *gin.Context) {
	result, err := h.batch.RefreshAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}

// List lists zone scores
// GET /api/v1/risk-zones
func (h *RiskZoneHandler) List(c *gin.Context) {
	var filter models.ScoreFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	scores, err := h.zones.ListScores(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, gin.H{
		"data":  scores,
		"count": len(scores),
	})
}

// Get retrieves the current score of a cell
// GET /api/v1/risk-zones/:cell_id
func (h *RiskZoneHandler) Get(c *gin.Context) {
	score, err := h.zones.GetScore(c.Request.Context(), c.Param("cell_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, score)
}

// History retrieves the audit trail of a cell
// GET /api/v1/risk-zones/:cell_id/history
func (h *RiskZoneHandler) History(c *gin.Context) {
	var filter models.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	history, err := h.zones.History(c.Request.Context(), c.Param("cell_id"), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, history)
}

// Adjustments lists every adjustment of a cell
// GET /api/v1/risk-zones/:cell_id/adjustments
func (h *RiskZoneHandler) Adjustments(c *gin.Context) {
	adjustments, err := h.zones.Adjustments(c.Request.Context(), c.Param("cell_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, adjustments)
}

// CreateAdjustment stores an analyst adjustment
// POST /api/v1/risk-zones/:cell_id/adjustments
func (h *RiskZoneHandler) CreateAdjustment(c *gin.Context) {
	var req service.CreateAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.zones.CreateAdjustment(c.Request.Context(), c.Param("cell_id"), req, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Created(c, result)
}

// RevokeAdjustment deactivates an adjustment
// DELETE /api/v1/risk-zones/adjustments/:id
func (h *RiskZoneHandler) RevokeAdjustment(c *gin.Context) {
	result, err := h.zones.RevokeAdjustment(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}

// RecordEvent stores a security event and recalculates its cell
// POST /api/v1/security-events
func (h *RiskZoneHandler) RecordEvent(c *gin.Context) {
	var event models.SecurityEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	// the token's organization scopes the event; the body value only applies without one
	if org := c.GetString("organization_id"); org != "" {
		event.OrganizationID = org
	}

	result, err := h.zones.RecordEvent(c.Request.Context(), &event, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Created(c, result)
}

// ArchiveEvent soft-archives a security event
// POST /api/v1/security-events/:id/archive
func (h *RiskZoneHandler) ArchiveEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid event ID")
		return
	}

	result, err := h.zones.ArchiveEvent(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}
