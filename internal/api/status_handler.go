package api

import (
	"context"
	"net/http"

	"PhenomenonIndexer/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CheckpointReader the projection progress as seen by the status endpoint
type CheckpointReader interface {
	Checkpoint(ctx context.Context) (*model.Checkpoint, error)
}

type StatusHandler struct {
	projection CheckpointReader
	chainID    uint64
	logger     *logrus.Logger
}

func NewStatusHandler(projection CheckpointReader, chainID uint64, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		projection: projection,
		chainID:    chainID,
		logger:     logger,
	}
}

// Healthz GET /healthz, 503 when the projection store is unreachable
func (h *StatusHandler) Healthz(c *gin.Context) {
	cp, err := h.projection.Checkpoint(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	resp := gin.H{"status": "ok", "chainId": h.chainID}
	if cp != nil {
		resp["block"] = cp.BlockNumber
		resp["logIndex"] = cp.LogIndex
		resp["updatedAt"] = cp.UpdatedAt
	}
	c.JSON(http.StatusOK, resp)
}
