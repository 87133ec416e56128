package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChangeFeed buffered change notifications, optional
type ChangeFeed interface {
	Recent(ctx context.Context, gameID string, since float64) ([]interfaces.GameChange, error)
}

// GameHandler game read endpoints for the miniapp
type GameHandler struct {
	gameService *service.GameQueryService
	changes     ChangeFeed
	logger      *logrus.Logger
}

// NewGameHandler changes may be nil
func NewGameHandler(gameService *service.GameQueryService, changes ChangeFeed, logger *logrus.Logger) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		changes:     changes,
		logger:      logger,
	}
}

// ListGames GET /api/games?status=started&page=1&page_size=20
func (h *GameHandler) ListGames(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.gameService.ListGames(c.Request.Context(), status, page, pageSize)
	if err != nil {
		h.fail(c, "ListGames", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Config GET /api/config
func (h *GameHandler) Config(c *gin.Context) {
	result, err := h.gameService.Config(c.Request.Context())
	if err != nil {
		h.fail(c, "Config", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CurrentGame GET /api/games/current
func (h *GameHandler) CurrentGame(c *gin.Context) {
	result, err := h.gameService.CurrentGame(c.Request.Context())
	if err != nil {
		h.fail(c, "CurrentGame", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PriorGames GET /api/games/prior?page=1&page_size=20
func (h *GameHandler) PriorGames(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.gameService.PriorGames(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, "PriorGames", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

// GetGame GET /api/games/:id
func (h *GameHandler) GetGame(c *gin.Context) {
	result, err := h.gameService.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetGame", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GameEvents GET /api/games/:id/events?limit=50, newest first
func (h *GameHandler) GameEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	result, err := h.gameService.Events(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, "GameEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

// GameChanges GET /api/games/:id/changes?since=<score>, buffered notifications after since
func (h *GameHandler) GameChanges(c *gin.Context) {
	if h.changes == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change feed disabled"})
		return
	}
	since, err := strconv.ParseFloat(c.DefaultQuery("since", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a number"})
		return
	}
	result, err := h.changes.Recent(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		h.fail(c, "GameChanges", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

func (h *GameHandler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, service.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithError(err).WithField("request_id", RequestID(c)).Error(op + " failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
