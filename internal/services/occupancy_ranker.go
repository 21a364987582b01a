package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/smarttransit/pricing-engine/internal/models"
)

const (
	occupancyBoostAbove   = 60.0
	occupancyPenaltyBelow = 20.0
	highOccupancyAbove    = 70.0
	lowOccupancyBelow     = 30.0
	smartFilterOccupancy  = 40.0
	routeDiversityLimit   = 3
)

// OccupancyRanker orders trips by booking demand, optionally blended
// with the relevance model's content score. It is stateless and safe
// for concurrent use.
type OccupancyRanker struct{}

// NewOccupancyRanker creates a new OccupancyRanker.
func NewOccupancyRanker() *OccupancyRanker {
	return &OccupancyRanker{}
}

// SortByOccupancy drops trips below the minimum occupancy threshold and
// ranks the rest. Order: final score desc, then occupancy desc, then
// departure time asc.
func (r *OccupancyRanker) SortByOccupancy(trips []models.Trip, config models.OccupancyConfig) []models.RankedTrip {
	ranked := make([]models.RankedTrip, 0, len(trips))
	for _, trip := range trips {
		occupancy := trip.OccupancyPercent()
		if occupancy < config.MinOccupancyThreshold {
			continue
		}
		ranked = append(ranked, models.RankedTrip{
			Trip:           trip,
			Occupancy:      occupancy,
			OccupancyScore: occupancyScore(occupancy, config),
			FinalScore:     finalScore(trip, occupancy, config),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].Occupancy != ranked[j].Occupancy {
			return ranked[i].Occupancy > ranked[j].Occupancy
		}
		return ranked[i].DepartureTime.Before(ranked[j].DepartureTime)
	})

	return ranked
}

// GetOccupancyStats summarizes demand across a candidate set.
func (r *OccupancyRanker) GetOccupancyStats(trips []models.Trip) models.OccupancyStats {
	stats := models.OccupancyStats{TotalTrips: len(trips)}
	if len(trips) == 0 {
		return stats
	}

	var sum float64
	for _, trip := range trips {
		occupancy := trip.OccupancyPercent()
		sum += occupancy
		if occupancy > highOccupancyAbove {
			stats.HighOccupancyCount++
		}
		if occupancy < lowOccupancyBelow {
			stats.LowOccupancyCount++
		}
	}
	stats.AverageOccupancy = round2(sum / float64(len(trips)))
	return stats
}

// SmartOccupancyFilter selects up to targetCount trips, preferring high
// demand while keeping route and operator variety. A first pass over
// the ranked list takes trips that are busy or add diversity; a second
// pass tops the selection up in rank order.
func (r *OccupancyRanker) SmartOccupancyFilter(trips []models.Trip, targetCount int, config models.OccupancyConfig) []models.RankedTrip {
	ranked := r.SortByOccupancy(trips, config)
	if targetCount <= 0 || len(ranked) <= targetCount {
		return ranked
	}

	operatorCap := int(math.Ceil(float64(targetCount) / 3))
	routesSeen := map[string]bool{}
	operatorCounts := map[string]int{}
	selectedIDs := map[string]bool{}
	selected := make([]models.RankedTrip, 0, targetCount)

	for _, trip := range ranked {
		if len(selected) >= targetCount {
			break
		}

		route := fmt.Sprintf("%s|%s", trip.Origin, trip.Destination)
		routeOK := len(routesSeen) < routeDiversityLimit || routesSeen[route]
		operatorOK := operatorCounts[trip.OperatorID] < operatorCap

		if trip.Occupancy > smartFilterOccupancy || (routeOK && operatorOK) {
			selected = append(selected, trip)
			selectedIDs[trip.ID] = true
			routesSeen[route] = true
			operatorCounts[trip.OperatorID]++
		}
	}

	// Fill remaining slots with the next best ranked trips.
	for _, trip := range ranked {
		if len(selected) >= targetCount {
			break
		}
		if !selectedIDs[trip.ID] {
			selected = append(selected, trip)
			selectedIDs[trip.ID] = true
		}
	}

	return selected
}

func occupancyScore(occupancy float64, config models.OccupancyConfig) float64 {
	score := occupancy / 100
	if occupancy > occupancyBoostAbove {
		score *= config.OccupancyBoostFactor
	} else if occupancy < occupancyPenaltyBelow {
		score *= config.LowOccupancyPenalty
	}
	return math.Min(score, 1)
}

func finalScore(trip models.Trip, occupancy float64, config models.OccupancyConfig) float64 {
	score := occupancyScore(occupancy, config)
	if config.BalanceWithContentScore && trip.ContentScore != nil {
		return 0.6**trip.ContentScore + 0.4*score
	}
	return score
}
