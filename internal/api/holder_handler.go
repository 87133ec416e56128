package api

import (
	"errors"
	"net/http"
	"strings"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/neynar"
	"PhenomenonIndexer/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HolderHandler per-address holdings and social profiles
type HolderHandler struct {
	gameService *service.GameQueryService
	logger      *logrus.Logger
}

func NewHolderHandler(gameService *service.GameQueryService, logger *logrus.Logger) *HolderHandler {
	return &HolderHandler{
		gameService: gameService,
		logger:      logger,
	}
}

// GetHolder GET /api/holders/:address
func (h *HolderHandler) GetHolder(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be a 0x address"})
		return
	}
	result, err := h.gameService.Holder(c.Request.Context(), address)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", RequestID(c)).Error("GetHolder failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetProfiles GET /api/profiles?addresses=0x..,0x..
func (h *HolderHandler) GetProfiles(c *gin.Context) {
	param := c.Query("addresses")
	if param == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "addresses is required"})
		return
	}
	addrs := neynar.ValidAddresses(strings.Split(param, ","))
	if len(addrs) == 0 {
		c.JSON(http.StatusOK, gin.H{"users": map[string]interfaces.Profile{}})
		return
	}

	users, err := h.gameService.Profiles(c.Request.Context(), addrs)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"users": users})
	case errors.Is(err, service.ErrProfilesDisabled):
		c.JSON(http.StatusOK, gin.H{"users": map[string]interfaces.Profile{}})
	case errors.Is(err, neynar.ErrTooManyAddresses):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		status := http.StatusBadGateway
		if upstream, ok := neynar.IsAPIError(err); ok && upstream >= 400 {
			status = upstream
		}
		h.logger.WithError(err).WithField("request_id", RequestID(c)).Warn("GetProfiles failed")
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
