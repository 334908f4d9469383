package api

import (
	"net/http"
	"strconv"
	"time"

	"textile-sync/internal/engine"
	"textile-sync/internal/models"
	"textile-sync/internal/session"
	"textile-sync/internal/stats"
	"textile-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the operational read surface: health, metrics, cache
// snapshots, derived statistics and a refetch trigger. The UI proper is a
// separate consumer and out of scope here.
type Handler struct {
	engine   *engine.Engine
	resolver *session.Resolver
}

// NewHandler creates the HTTP handler.
func NewHandler(eng *engine.Engine, resolver *session.Resolver) *Handler {
	return &Handler{engine: eng, resolver: resolver}
}

// SetupRoutes sets up HTTP routes.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/actor", h.getActor)
		v1.GET("/entities/:kind", h.getEntities)
		v1.GET("/stats/summary", h.getSummary)
		v1.GET("/stats/categories", h.getCategories)
		v1.GET("/stats/growth", h.getGrowth)
		v1.POST("/refetch", h.refetch)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getActor reports the resolved session identity.
func (h *Handler) getActor(c *gin.Context) {
	actor := h.resolver.Actor()
	if actor == nil {
		c.JSON(http.StatusOK, gin.H{"authenticity": models.AuthenticityAnonymous})
		return
	}
	c.JSON(http.StatusOK, actor)
}

// getEntities returns the current cache snapshot for one entity kind.
func (h *Handler) getEntities(c *gin.Context) {
	kind := c.Param("kind")

	known := false
	for _, k := range models.Kinds {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown entity kind"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":    kind,
		"records": h.engine.Cache().All(kind),
	})
}

func (h *Handler) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, stats.Summarize(h.engine.Cache()))
}

func (h *Handler) getCategories(c *gin.Context) {
	c.JSON(http.StatusOK, stats.CategoryHistogram(h.engine.Cache()))
}

func (h *Handler) getGrowth(c *gin.Context) {
	c.JSON(http.StatusOK, stats.MonthlyGrowth(h.engine.Cache(), time.Now()))
}

// refetch triggers a full fetch of every entity kind.
func (h *Handler) refetch(c *gin.Context) {
	if err := h.engine.FetchAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Refetch incomplete",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refetched"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
