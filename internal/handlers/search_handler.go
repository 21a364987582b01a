package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/models"
	"github.com/smarttransit/pricing-engine/internal/services"
)

// SearchHandler exposes the trip ranking surface.
type SearchHandler struct {
	ranking     *services.SearchRankingService
	preferences *services.PreferenceService
	logger      *logrus.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(ranking *services.SearchRankingService, preferences *services.PreferenceService, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		ranking:     ranking,
		preferences: preferences,
		logger:      logger,
	}
}

type rankRequest struct {
	UserID      string                  `json:"user_id,omitempty"`
	Trips       []models.Trip           `json:"trips,omitempty"`
	Preferences *models.UserPreferences `json:"preferences,omitempty"`
	Filters     models.SearchFilters    `json:"filters"`
	Options     models.RankOptions      `json:"options"`
}

// RankTrips ranks search candidates for a passenger. Preferences come
// from the request when given, otherwise they are inferred from the
// user's booking history.
// POST /api/v1/search/rank
func (h *SearchHandler) RankTrips(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	var prefs models.UserPreferences
	switch {
	case req.Preferences != nil:
		prefs = *req.Preferences
	case req.UserID != "":
		resolved, err := h.preferences.GetUserPreferences(c.Request.Context(), req.UserID)
		if err != nil {
			var validationErr *models.ValidationError
			if errors.As(err, &validationErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to resolve user preferences")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user preferences"})
			return
		}
		prefs = resolved
	}

	ranked, err := h.ranking.RankTrips(req.Trips, prefs, req.Filters, req.Options)
	if err != nil {
		h.logger.WithError(err).Error("Trip ranking failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Trip ranking failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": ranked, "count": len(ranked)})
}
