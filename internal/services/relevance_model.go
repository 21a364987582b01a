package services

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/smarttransit/pricing-engine/internal/models"
)

// Preference signal weights. Route endpoints dominate, softer signals
// like departure time contribute less. An active search filter that the
// trip matches reinforces the score beyond the base weights.
const (
	weightOrigin      = 3.0
	weightDestination = 3.0
	weightBusType     = 2.0
	weightPriceRange  = 2.0
	weightTimeOfDay   = 1.0
	weightFacilities  = 1.5
	weightRating      = 1.0
	weightFilterBoost = 2.0

	diversifyKeepRatio = 0.8
	duplicatePriceBand = 0.1
)

// RelevanceModel scores trips against a passenger's preferences. All
// scoring methods are pure; only Diversify draws randomness, from the
// injected source.
type RelevanceModel struct {
	rng *rand.Rand
}

// NewRelevanceModel creates a RelevanceModel with a time-seeded random
// source for diversification.
func NewRelevanceModel() *RelevanceModel {
	return NewRelevanceModelWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewRelevanceModelWithRand creates a RelevanceModel with the given
// random source, so tests can seed or disable the stochastic branch.
func NewRelevanceModelWithRand(rng *rand.Rand) *RelevanceModel {
	return &RelevanceModel{rng: rng}
}

// Score computes the preference-match score for a trip, in [0, 1]. A
// trip scored against empty preferences and no filters is 0: absence of
// signal is not a match.
func (m *RelevanceModel) Score(trip models.Trip, prefs models.UserPreferences, filters models.SearchFilters) float64 {
	var numerator, denominator float64

	if len(prefs.Origins) > 0 {
		numerator += weightOrigin * containmentMatch(trip.Origin, prefs.Origins)
		denominator += weightOrigin
	}
	if len(prefs.Destinations) > 0 {
		numerator += weightDestination * containmentMatch(trip.Destination, prefs.Destinations)
		denominator += weightDestination
	}
	if len(prefs.BusTypes) > 0 {
		numerator += weightBusType * containmentMatch(trip.BusType, prefs.BusTypes)
		denominator += weightBusType
	}
	if prefs.PriceRange != nil {
		numerator += weightPriceRange * priceRangeMatch(trip.Price, *prefs.PriceRange)
		denominator += weightPriceRange
	}
	if prefs.TimeOfDay != "" {
		if models.TimeOfDayForHour(trip.DepartureTime.Hour()) == prefs.TimeOfDay {
			numerator += weightTimeOfDay
		}
		denominator += weightTimeOfDay
	}
	if len(prefs.Facilities) > 0 {
		numerator += weightFacilities * facilitiesMatch(trip.Facilities, prefs.Facilities)
		denominator += weightFacilities
	}

	// Operator quality only refines a score that preference or filter
	// signals already produced; on its own it says nothing about fit.
	if denominator > 0 && trip.OperatorRating != nil {
		numerator += weightRating * (*trip.OperatorRating / 5)
		denominator += weightRating
	}

	// Matched active filters pull the score toward 1 by landing full
	// weight on both sides of the ratio.
	for range matchedFilterDimensions(trip, filters) {
		numerator += weightFilterBoost
		denominator += weightFilterBoost
	}

	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// Recommend scores every candidate, attaches the score, and returns the
// top trips by score. The sort is stable so equally scored trips keep
// their input order.
func (m *RelevanceModel) Recommend(trips []models.Trip, prefs models.UserPreferences, filters models.SearchFilters, limit int) []models.Trip {
	scored := make([]models.Trip, len(trips))
	for i, trip := range trips {
		score := m.Score(trip, prefs, filters)
		trip.ContentScore = &score
		scored[i] = trip
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].ContentScore > *scored[j].ContentScore
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// InferPreferences derives a preference profile from booking history:
// the de-duplicated routes and bus types travelled, and a price comfort
// band around the paid fares. No history yields empty preferences.
func (m *RelevanceModel) InferPreferences(pastBookings []models.PastBooking) models.UserPreferences {
	if len(pastBookings) == 0 {
		return models.UserPreferences{}
	}

	prefs := models.UserPreferences{}
	seenOrigins := map[string]bool{}
	seenDestinations := map[string]bool{}
	seenBusTypes := map[string]bool{}

	minPaid := pastBookings[0].PaidPrice
	maxPaid := pastBookings[0].PaidPrice

	for _, booking := range pastBookings {
		if !seenOrigins[booking.Origin] {
			seenOrigins[booking.Origin] = true
			prefs.Origins = append(prefs.Origins, booking.Origin)
		}
		if !seenDestinations[booking.Destination] {
			seenDestinations[booking.Destination] = true
			prefs.Destinations = append(prefs.Destinations, booking.Destination)
		}
		if !seenBusTypes[booking.BusType] {
			seenBusTypes[booking.BusType] = true
			prefs.BusTypes = append(prefs.BusTypes, booking.BusType)
		}
		minPaid = math.Min(minPaid, booking.PaidPrice)
		maxPaid = math.Max(maxPaid, booking.PaidPrice)
	}

	prefs.PriceRange = &models.PriceRange{Min: 0.8 * minPaid, Max: 1.2 * maxPaid}
	return prefs
}

// Diversify thins near-duplicate trips out of a ranked list. The top
// item always survives; later candidates are dropped when they repeat a
// kept trip's route, bus type and price band, unless the stochastic
// relaxation (probability diversityFactor) keeps them anyway. At most
// ceil(0.8*n) items are kept.
func (m *RelevanceModel) Diversify(ranked []models.Trip, diversityFactor float64) []models.Trip {
	if len(ranked) <= 1 {
		return ranked
	}

	maxKept := int(math.Ceil(diversifyKeepRatio * float64(len(ranked))))
	kept := []models.Trip{ranked[0]}

	for _, candidate := range ranked[1:] {
		if len(kept) >= maxKept {
			break
		}
		if !m.isNearDuplicate(candidate, kept) {
			kept = append(kept, candidate)
			continue
		}
		if diversityFactor > 0 && m.rng.Float64() < diversityFactor {
			kept = append(kept, candidate)
		}
	}

	return kept
}

func (m *RelevanceModel) isNearDuplicate(candidate models.Trip, kept []models.Trip) bool {
	for _, k := range kept {
		if !strings.EqualFold(candidate.Origin, k.Origin) ||
			!strings.EqualFold(candidate.Destination, k.Destination) ||
			!strings.EqualFold(candidate.BusType, k.BusType) {
			continue
		}
		if k.Price == 0 {
			if candidate.Price == 0 {
				return true
			}
			continue
		}
		if math.Abs(candidate.Price-k.Price)/k.Price <= duplicatePriceBand {
			return true
		}
	}
	return false
}

// containmentMatch reports 1 when the trip value contains any preferred
// element, case-insensitively.
func containmentMatch(value string, preferred []string) float64 {
	lower := strings.ToLower(value)
	for _, p := range preferred {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return 1
		}
	}
	return 0
}

// priceRangeMatch gives full credit inside the range and linear partial
// credit outside, scaled by the range width.
func priceRangeMatch(price float64, r models.PriceRange) float64 {
	if r.Contains(price) {
		return 1
	}
	width := r.Max - r.Min
	if width <= 0 {
		return 0
	}
	var dist float64
	if price < r.Min {
		dist = r.Min - price
	} else {
		dist = price - r.Max
	}
	return math.Max(0, 1-dist/width)
}

// facilitiesMatch is the fraction of preferred facilities the trip
// offers.
func facilitiesMatch(tripFacilities, preferred []string) float64 {
	if len(preferred) == 0 {
		return 0
	}
	matched := 0
	for _, want := range preferred {
		for _, have := range tripFacilities {
			if strings.Contains(strings.ToLower(have), strings.ToLower(want)) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(preferred))
}

// matchedFilterDimensions lists the active filter dimensions the trip
// satisfies.
func matchedFilterDimensions(trip models.Trip, filters models.SearchFilters) []string {
	matched := []string{}
	if filters.Origin != "" && strings.Contains(strings.ToLower(trip.Origin), strings.ToLower(filters.Origin)) {
		matched = append(matched, "origin")
	}
	if filters.Destination != "" && strings.Contains(strings.ToLower(trip.Destination), strings.ToLower(filters.Destination)) {
		matched = append(matched, "destination")
	}
	if filters.BusType != "" && strings.Contains(strings.ToLower(trip.BusType), strings.ToLower(filters.BusType)) {
		matched = append(matched, "bus_type")
	}
	if filters.PriceRange != nil && filters.PriceRange.Contains(trip.Price) {
		matched = append(matched, "price_range")
	}
	return matched
}
