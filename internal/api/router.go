package api

import (
	"time"

	"PhenomenonIndexer/internal/metrics"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// Handlers everything the router serves; Metrics may be nil
type Handlers struct {
	Games   *GameHandler
	Holders *HolderHandler
	Status  *StatusHandler
	Metrics *metrics.Collectors
	Pprof   bool
}

// NewRouter registers the read API. Static game paths go before /:id.
func NewRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), AccessLog(logger))
	if h.Pprof {
		pprof.Register(r)
	}

	r.GET("/healthz", h.Status.Healthz)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	g := r.Group("/api")
	g.GET("/config", h.Games.Config)
	g.GET("/games", h.Games.ListGames)
	g.GET("/games/current", h.Games.CurrentGame)
	g.GET("/games/prior", h.Games.PriorGames)
	g.GET("/games/:id", h.Games.GetGame)
	g.GET("/games/:id/events", h.Games.GameEvents)
	g.GET("/games/:id/changes", h.Games.GameChanges)
	g.GET("/holders/:address", h.Holders.GetHolder)
	g.GET("/profiles", h.Holders.GetProfiles)
	return r
}

// RequestIDMiddleware propagates X-Request-ID or assigns a fresh uuid
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestID id assigned by RequestIDMiddleware
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}

// AccessLog one logrus line per request
func AccessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": RequestID(c),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Debug("http request")
	}
}
