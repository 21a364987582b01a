package models

import (
	"time"
)

// Trip is the full candidate record the ranking pipeline works on: a
// pricing snapshot plus route, bus and operator detail. ContentScore
// is attached by the relevance model upstream of occupancy ranking.
type Trip struct {
	ID              string     `json:"id" db:"id"`
	Origin          string     `json:"origin" db:"origin"`
	Destination     string     `json:"destination" db:"destination"`
	BusType         string     `json:"bus_type" db:"bus_type"`
	OperatorID      string     `json:"operator_id" db:"operator_id"`
	OperatorName    string     `json:"operator_name" db:"operator_name"`
	OperatorRating  *float64   `json:"operator_rating,omitempty" db:"operator_rating"`
	Facilities      []string   `json:"facilities,omitempty"`
	Price           float64    `json:"price" db:"price"`
	DepartureTime   time.Time  `json:"departure_time" db:"departure_time"`
	ArrivalTime     time.Time  `json:"arrival_time" db:"arrival_time"`
	DistanceKm      *float64   `json:"distance_km,omitempty" db:"distance_km"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" db:"duration_minutes"`
	TotalSeats      int        `json:"total_seats" db:"total_seats"`
	BookedSeats     int        `json:"booked_seats" db:"booked_seats"`
	Status          TripStatus `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ContentScore    *float64   `json:"content_score,omitempty"`
}

// OccupancyPercent returns the percentage of booked seats.
func (t *Trip) OccupancyPercent() float64 {
	if t.TotalSeats <= 0 {
		return 0
	}
	return float64(t.BookedSeats) / float64(t.TotalSeats) * 100
}

// RankedTrip is a trip annotated with its ranking scores.
type RankedTrip struct {
	Trip
	Occupancy      float64 `json:"occupancy"`
	OccupancyScore float64 `json:"occupancy_score"`
	FinalScore     float64 `json:"final_score"`
}

// OccupancyStats summarizes demand across a candidate set.
type OccupancyStats struct {
	AverageOccupancy   float64 `json:"average_occupancy"`
	HighOccupancyCount int     `json:"high_occupancy_count"`
	LowOccupancyCount  int     `json:"low_occupancy_count"`
	TotalTrips         int     `json:"total_trips"`
}

// OccupancyConfig tunes occupancy-driven ranking.
type OccupancyConfig struct {
	MinOccupancyThreshold   float64 `json:"min_occupancy_threshold"`
	OccupancyBoostFactor    float64 `json:"occupancy_boost_factor"`
	LowOccupancyPenalty     float64 `json:"low_occupancy_penalty"`
	BalanceWithContentScore bool    `json:"balance_with_content_score"`
}

// DefaultOccupancyConfig returns the standard occupancy ranking
// configuration.
func DefaultOccupancyConfig() OccupancyConfig {
	return OccupancyConfig{
		MinOccupancyThreshold:   10,
		OccupancyBoostFactor:    1.5,
		LowOccupancyPenalty:     0.5,
		BalanceWithContentScore: true,
	}
}

// RankOptions selects which ranking stages a search request runs.
type RankOptions struct {
	UseContentBased       bool     `json:"use_content_based"`
	PrioritizeOccupancy   bool     `json:"prioritize_occupancy"`
	MinOccupancyThreshold *float64 `json:"min_occupancy_threshold,omitempty"`
}
