package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/models"
	"github.com/smarttransit/pricing-engine/internal/services"
)

// PricingHandler exposes the admin pricing surface: manual batch runs,
// read-only previews, config management and price reverts.
type PricingHandler struct {
	scheduler *services.PricingSchedulerService
	logger    *logrus.Logger
}

// NewPricingHandler creates a new PricingHandler.
func NewPricingHandler(scheduler *services.PricingSchedulerService, logger *logrus.Logger) *PricingHandler {
	return &PricingHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// RunBatch triggers a pricing batch outside the timer cadence
// POST /api/v1/admin/pricing/run
func (h *PricingHandler) RunBatch(c *gin.Context) {
	result, err := h.scheduler.RunManualUpdate()
	if err != nil {
		if errors.Is(err, services.ErrBatchAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "A pricing batch is already running"})
			return
		}
		h.logger.WithError(err).Error("Manual pricing batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Pricing batch failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status returns the scheduler's run state
// GET /api/v1/admin/pricing/status
func (h *PricingHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// Health returns scheduler health statistics
// GET /api/v1/admin/pricing/health
func (h *PricingHandler) Health(c *gin.Context) {
	health, err := h.scheduler.Health()
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute scheduler health")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute scheduler health"})
		return
	}

	c.JSON(http.StatusOK, health)
}

type previewRequest struct {
	Trips     []models.PricingTrip     `json:"trips" binding:"required"`
	Overrides *models.PricingOverrides `json:"config_overrides,omitempty"`
}

// Preview recomputes prices for the given trips without persisting
// POST /api/v1/admin/pricing/preview
func (h *PricingHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	config := h.scheduler.PricingConfig()
	if req.Overrides != nil {
		config = config.Merge(*req.Overrides)
	}

	quotes, err := services.CalculateBatchPricing(req.Trips, config, time.Now())
	if err != nil {
		respondPricingError(c, h.logger, err, "Price preview failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": quotes, "count": len(quotes)})
}

type explainRequest struct {
	Trip      models.PricingTrip       `json:"trip" binding:"required"`
	Overrides *models.PricingOverrides `json:"config_overrides,omitempty"`
}

// Explain breaks one trip's computed price into its factors
// POST /api/v1/admin/pricing/explain
func (h *PricingHandler) Explain(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	config := h.scheduler.PricingConfig()
	if req.Overrides != nil {
		config = config.Merge(*req.Overrides)
	}

	factors, err := services.GetPricingFactors(req.Trip, config, time.Now())
	if err != nil {
		respondPricingError(c, h.logger, err, "Price explanation failed")
		return
	}

	c.JSON(http.StatusOK, factors)
}

// UpdateConfig replaces the pricing configuration wholesale
// PUT /api/v1/admin/pricing/config
func (h *PricingHandler) UpdateConfig(c *gin.Context) {
	var config models.PricingConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.scheduler.SetPricingConfig(config); err != nil {
		respondPricingError(c, h.logger, err, "Failed to replace pricing configuration")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Pricing configuration updated"})
}

// RevertPrice restores a trip's pre-adjustment price
// POST /api/v1/admin/trips/:id/revert-price
func (h *PricingHandler) RevertPrice(c *gin.Context) {
	tripID := c.Param("id")

	if err := h.scheduler.RevertPrice(tripID); err != nil {
		var notFound *models.NotFoundError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNoOriginalPrice):
			c.JSON(http.StatusConflict, gin.H{"error": "Trip has no original price to revert to"})
		default:
			h.logger.WithError(err).WithField("trip_id", tripID).Error("Failed to revert trip price")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revert trip price"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trip price reverted"})
}

// respondPricingError maps service errors to HTTP codes: precondition
// violations are the caller's fault, everything else is ours.
func respondPricingError(c *gin.Context, logger *logrus.Logger, err error, logMessage string) {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.WithError(err).Error(logMessage)
	c.JSON(http.StatusInternalServerError, gin.H{"error": logMessage})
}
