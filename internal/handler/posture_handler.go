package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/posture"
	"github.com/jengzang/riskzone-engine/pkg/response"
	"go.uber.org/zap"
)

// PostureHandler serves the security dashboard rollup
type PostureHandler struct {
	aggregator *posture.Aggregator
	logger     *zap.Logger
}

// NewPostureHandler creates a new posture handler
func NewPostureHandler(aggregator *posture.Aggregator, logger *zap.Logger) *PostureHandler {
	return &PostureHandler{aggregator: aggregator, logger: logger}
}

// Summary returns the posture of an organization, defaulting to the caller's
// GET /api/v1/security/posture?organization_id=
func (h *PostureHandler) Summary(c *gin.Context) {
	org := c.Query("organization_id")
	if org == "" {
		org = c.GetString("organization_id")
	}

	summary, err := h.aggregator.Summary(c.Request.Context(), org)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response.Success(c, summary)
}
