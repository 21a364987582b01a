package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smarttransit/pricing-engine/internal/models"
)

// Booking velocity thresholds. A young trip filling fast gets a small
// premium; a stale trip that never filled gets a small drag.
const (
	velocityBoost        = 1.1
	velocityDrag         = 0.95
	velocityYoungTripAge = 24 * time.Hour
	velocityStaleTripAge = 72 * time.Hour
	velocityOccupancy    = 0.2

	highDemandOccupancy = 0.7
	lowDemandOccupancy  = 0.3
)

// CalculateDynamicPrice computes the demand-adjusted price for a trip at
// the given instant. The computation anchors on the trip's base price
// (the stored pre-adjustment price when one exists), so repeated runs
// converge instead of compounding.
func CalculateDynamicPrice(trip models.PricingTrip, config models.PricingConfig, now time.Time) (float64, error) {
	factors, err := GetPricingFactors(trip, config, now)
	if err != nil {
		return 0, err
	}
	return factors.FinalPrice, nil
}

// GetPricingFactors computes the price together with every individual
// adjustment factor, for explainability.
func GetPricingFactors(trip models.PricingTrip, config models.PricingConfig, now time.Time) (models.PricingFactors, error) {
	if trip.TotalSeats <= 0 {
		return models.PricingFactors{}, models.ErrInvalidInput(
			fmt.Sprintf("trip %s has no seat capacity", trip.ID))
	}
	if err := config.Validate(); err != nil {
		return models.PricingFactors{}, err
	}

	basePrice := trip.BasePrice()
	occupancy := trip.OccupancyRate()

	factors := models.PricingFactors{
		TimeFactor:      timeFactor(trip.DepartureTime, config, now),
		OccupancyFactor: occupancyFactor(occupancy, config),
		PeakHourFactor:  peakHourFactor(trip.DepartureTime, config),
		VelocityFactor:  velocityFactor(trip.CreatedAt, occupancy, now),
	}

	raw := basePrice * factors.TimeFactor * factors.OccupancyFactor *
		factors.PeakHourFactor * factors.VelocityFactor

	floor := basePrice * config.MaxPriceDecrease
	ceiling := basePrice * config.MaxPriceIncrease
	clamped := math.Min(math.Max(raw, floor), ceiling)

	factors.FinalPrice = roundToNearestFive(clamped)
	factors.PriceChange = priceChangePercent(trip.Price, factors.FinalPrice)

	return factors, nil
}

// ShouldUpdatePrice reports whether the computed price differs from the
// current one by at least thresholdPercent. An exact-threshold change
// counts as significant.
func ShouldUpdatePrice(oldPrice, newPrice, thresholdPercent float64) bool {
	if oldPrice == 0 {
		return newPrice != oldPrice
	}
	change := math.Abs(newPrice-oldPrice) / oldPrice * 100
	return change >= thresholdPercent
}

// CalculateBatchPricing recomputes prices for a set of trips without
// persisting anything. Unlike the scheduler's batch run, this is a
// single consistent quote: any invalid trip fails the whole call.
func CalculateBatchPricing(trips []models.PricingTrip, config models.PricingConfig, now time.Time) ([]models.BatchPriceQuote, error) {
	quotes := make([]models.BatchPriceQuote, 0, len(trips))
	for _, trip := range trips {
		newPrice, err := CalculateDynamicPrice(trip, config, now)
		if err != nil {
			return nil, fmt.Errorf("trip %s: %w", trip.ID, err)
		}
		quotes = append(quotes, models.BatchPriceQuote{
			TripID:       trip.ID,
			CurrentPrice: trip.Price,
			NewPrice:     newPrice,
			Adjustment:   priceChangePercent(trip.Price, newPrice),
		})
	}
	return quotes, nil
}

// timeFactor discounts far-out departures and marks up imminent ones.
// Both comparisons are strict, leaving a neutral dead zone between the
// two thresholds.
func timeFactor(departure time.Time, config models.PricingConfig, now time.Time) float64 {
	hoursUntil := departure.Sub(now).Hours()
	switch {
	case hoursUntil > config.EarlyBirdThreshold:
		return config.EarlyBirdDiscount
	case hoursUntil < config.LastMinuteThreshold:
		return config.LastMinuteMultiplier
	default:
		return 1
	}
}

func occupancyFactor(occupancy float64, config models.PricingConfig) float64 {
	switch {
	case occupancy > highDemandOccupancy:
		return config.HighDemandMultiplier
	case occupancy < lowDemandOccupancy:
		return config.LowDemandDiscount
	default:
		return 1
	}
}

func peakHourFactor(departure time.Time, config models.PricingConfig) float64 {
	hour := departure.Hour()
	for _, r := range config.PeakHours {
		if r.Contains(hour) {
			return config.PeakHourMultiplier
		}
	}
	return 1
}

func velocityFactor(createdAt time.Time, occupancy float64, now time.Time) float64 {
	age := now.Sub(createdAt)
	switch {
	case age < velocityYoungTripAge && occupancy > velocityOccupancy:
		return velocityBoost
	case age > velocityStaleTripAge && occupancy < velocityOccupancy:
		return velocityDrag
	default:
		return 1
	}
}

// priceChangeReason summarizes the non-neutral factors of a computation
// as a human-readable reason for the price update log.
func priceChangeReason(factors models.PricingFactors) string {
	reasons := []string{}

	if factors.TimeFactor < 1 {
		reasons = append(reasons, "Early bird discount")
	} else if factors.TimeFactor > 1 {
		reasons = append(reasons, "Last-minute premium")
	}
	if factors.OccupancyFactor > 1 {
		reasons = append(reasons, "High demand")
	} else if factors.OccupancyFactor < 1 {
		reasons = append(reasons, "Low occupancy")
	}
	if factors.PeakHourFactor > 1 {
		reasons = append(reasons, "Peak hour")
	}
	if factors.VelocityFactor > 1 {
		reasons = append(reasons, "Fast booking rate")
	} else if factors.VelocityFactor < 1 {
		reasons = append(reasons, "Slow booking rate")
	}

	if len(reasons) == 0 {
		return "Price optimization"
	}
	return strings.Join(reasons, ", ")
}

// roundToNearestFive rounds half-up to a multiple of 5, keeping fares
// tidy for display.
func roundToNearestFive(price float64) float64 {
	return math.Floor(price/5+0.5) * 5
}

func priceChangePercent(current, final float64) float64 {
	if current == 0 {
		return 0
	}
	return round2((final - current) / current * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
