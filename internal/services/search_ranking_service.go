package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/metrics"
	"github.com/smarttransit/pricing-engine/internal/models"
)

const defaultCandidateLimit = 50

// CandidateStore supplies rankable trips when a search request does not
// bring its own candidates.
type CandidateStore interface {
	ListRankableTrips(origin, destination string, from time.Time, limit int) ([]models.Trip, error)
}

// SearchRankingService orchestrates the ranking pipeline: relevance
// scoring first, then occupancy ranking or plain annotation, depending
// on the request options.
type SearchRankingService struct {
	candidates CandidateStore
	relevance  *RelevanceModel
	ranker     *OccupancyRanker
	logger     *logrus.Logger
}

// NewSearchRankingService creates a new SearchRankingService.
func NewSearchRankingService(candidates CandidateStore, relevance *RelevanceModel, ranker *OccupancyRanker, logger *logrus.Logger) *SearchRankingService {
	return &SearchRankingService{
		candidates: candidates,
		relevance:  relevance,
		ranker:     ranker,
		logger:     logger,
	}
}

// RankTrips ranks the given candidates. An empty candidate list pulls
// upcoming trips matching the filters from storage.
func (s *SearchRankingService) RankTrips(trips []models.Trip, prefs models.UserPreferences, filters models.SearchFilters, options models.RankOptions) ([]models.RankedTrip, error) {
	if len(trips) == 0 {
		fetched, err := s.candidates.ListRankableTrips(filters.Origin, filters.Destination, time.Now(), defaultCandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load ranking candidates: %w", err)
		}
		trips = fetched
	}

	metrics.RankingRequests.WithLabelValues(rankingMode(options)).Inc()

	if options.UseContentBased {
		trips = s.relevance.Recommend(trips, prefs, filters, 0)
	}

	config := models.DefaultOccupancyConfig()
	if options.MinOccupancyThreshold != nil {
		config.MinOccupancyThreshold = *options.MinOccupancyThreshold
	}

	if options.PrioritizeOccupancy {
		return s.ranker.SortByOccupancy(trips, config), nil
	}

	// Content-ordered (or caller-ordered) results are annotated with
	// occupancy data without reordering or threshold filtering.
	ranked := make([]models.RankedTrip, len(trips))
	for i, trip := range trips {
		occupancy := trip.OccupancyPercent()
		score := occupancyScore(occupancy, config)
		final := score
		if trip.ContentScore != nil {
			final = *trip.ContentScore
		}
		ranked[i] = models.RankedTrip{
			Trip:           trip,
			Occupancy:      occupancy,
			OccupancyScore: score,
			FinalScore:     final,
		}
	}
	return ranked, nil
}

func rankingMode(options models.RankOptions) string {
	switch {
	case options.UseContentBased && options.PrioritizeOccupancy:
		return "hybrid"
	case options.PrioritizeOccupancy:
		return "occupancy"
	case options.UseContentBased:
		return "content"
	default:
		return "passthrough"
	}
}
