// Package api exposes the HTTP surface: the ingestion endpoint,
// health/readiness, Prometheus metrics, and a handful of read-only
// operator endpoints for monitoring and buyer inspection.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"leadgen/internal/classify"
	"leadgen/internal/idempotency"
	"leadgen/internal/models"
	"leadgen/internal/service"
	"leadgen/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Store is the slice of internal/store the read-only operator endpoints
// depend on. The ingestion endpoint itself talks only to Ingestor.
type Store interface {
	GetBuyer(ctx context.Context, id int64) (*models.Buyer, error)
	BuyerOffersByBuyer(ctx context.Context, buyerID int64) ([]models.BuyerOffer, error)
	StuckRoutedLeads(ctx context.Context, olderThan time.Duration, limit int) ([]models.Lead, error)
}

// Ingestor is the slice of IngestionService the ingestion endpoint depends
// on, narrowed so handler tests can substitute a fake.
type Ingestor interface {
	CreateLead(ctx context.Context, req *service.CreateLeadRequest, hostname, path string) (*service.CreateLeadResponse, error)
}

// Handler contains HTTP handlers.
type Handler struct {
	ingestion Ingestor
	store     Store
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(ingestion Ingestor, store Store) *Handler {
	return &Handler{
		ingestion: ingestion,
		store:     store,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/leads", h.createLead)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/buyers/:id", h.getBuyer)
		v1.GET("/monitoring/stuck-leads", h.stuckLeads)
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

// createLead handles POST /api/leads, the ingestion contract.
func (h *Handler) createLead(c *gin.Context) {
	var req service.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeLeadError(c, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	if sourceIDHeader := c.GetHeader("source_id"); sourceIDHeader != "" {
		id, err := strconv.ParseInt(sourceIDHeader, 10, 64)
		if err != nil {
			writeLeadError(c, http.StatusBadRequest, "invalid_source_id_header", err.Error())
			return
		}
		req.SourceID = &id
	}

	resp, err := h.ingestion.CreateLead(c.Request.Context(), &req, c.Request.Host, c.Request.URL.Path)
	if err != nil {
		status, code := leadErrorStatus(err)
		h.logger.Warn("ingestion rejected",
			zap.String("code", code),
			util.RedactedEmail("email", req.Email),
			util.RedactedPhone("phone", req.Phone),
		)
		writeLeadError(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// getBuyer handles GET /api/v1/buyers/:id: read-only enrollment and
// eligibility-input visibility for operator debugging. No write path.
func (h *Handler) getBuyer(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeLeadError(c, http.StatusBadRequest, "invalid_buyer_id", err.Error())
		return
	}

	buyer, err := h.store.GetBuyer(c.Request.Context(), id)
	if err != nil {
		writeLeadError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if buyer == nil {
		writeLeadError(c, http.StatusNotFound, "buyer_not_found", "no such buyer")
		return
	}

	offers, err := h.store.BuyerOffersByBuyer(c.Request.Context(), id)
	if err != nil {
		writeLeadError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"buyer":        buyer,
		"buyer_offers": offers,
	})
}

// stuckLeads handles GET /api/v1/monitoring/stuck-leads: routed leads that
// have sat past max_age_minutes (default 30) without reaching delivered.
func (h *Handler) stuckLeads(c *gin.Context) {
	maxAgeMinutes := 30
	if raw := c.Query("max_age_minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeLeadError(c, http.StatusBadRequest, "invalid_max_age_minutes", "must be a positive integer")
			return
		}
		maxAgeMinutes = v
	}

	leads, err := h.store.StuckRoutedLeads(c.Request.Context(), time.Duration(maxAgeMinutes)*time.Minute, 200)
	if err != nil {
		writeLeadError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"max_age_minutes": maxAgeMinutes,
		"count":           len(leads),
		"leads":           leads,
	})
}

// writeLeadError writes the {detail:{code,message}} error body the
// ingestion API contract requires.
func writeLeadError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"detail": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// leadErrorStatus maps a classification/idempotency sentinel error to its
// HTTP status: 400 for invalid input or derivation failure, 409 for
// ambiguous source mapping, 5xx left to the default case for anything
// unclassified (a store or transport fault).
func leadErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, classify.ErrAmbiguousSourceMapping):
		return http.StatusConflict, "ambiguous_source_mapping"
	case errors.Is(err, classify.ErrInvalidSourceKey):
		return http.StatusBadRequest, "invalid_source_key"
	case errors.Is(err, classify.ErrSourceNotFound):
		return http.StatusBadRequest, "source_not_found"
	case errors.Is(err, classify.ErrUnmappedSource):
		return http.StatusBadRequest, "unmapped_source"
	case errors.Is(err, classify.ErrSourceInactive):
		return http.StatusBadRequest, "source_inactive"
	case errors.Is(err, classify.ErrMissingHostHeader):
		return http.StatusBadRequest, "missing_host_header"
	case errors.Is(err, classify.ErrOfferInactive):
		return http.StatusBadRequest, "offer_inactive"
	case errors.Is(err, idempotency.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_idempotency_key"
	case errors.Is(err, idempotency.ErrDerivationFailed):
		return http.StatusBadRequest, "idempotency_derivation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// prometheusMiddleware collects HTTP metrics.
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
