package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/riskzone-engine/internal/batch"
	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/internal/repository"
	"github.com/jengzang/riskzone-engine/internal/service"
	"github.com/jengzang/riskzone-engine/pkg/response"
	"go.uber.org/zap"
)

// respondError maps input errors to 400, missing rows to 404 and everything else to 500
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case service.IsInputError(err),
		errors.Is(err, batch.ErrEmptyBatch),
		errors.Is(err, batch.ErrBatchTooLarge),
		errors.Is(err, geoindex.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, geoindex.ErrGeocodingFailed):
		logger.Warn("Geocoder failure", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, 502, err.Error())
	default:
		_ = c.Error(err)
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, "internal error")
	}
}
