package models

import (
	"fmt"
	"time"
)

// TripStatus represents the lifecycle status of a trip
type TripStatus string

const (
	TripStatusScheduled  TripStatus = "scheduled"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// PricingTrip is the snapshot of a trip the pricing engine works on.
// BookedSeats counts confirmed and pending bookings; TotalSeats comes
// from the assigned bus.
type PricingTrip struct {
	ID            string     `json:"id" db:"id"`
	DepartureTime time.Time  `json:"departure_time" db:"departure_time"`
	ArrivalTime   time.Time  `json:"arrival_time" db:"arrival_time"`
	Price         float64    `json:"price" db:"price"`
	OriginalPrice *float64   `json:"original_price,omitempty" db:"original_price"`
	Status        TripStatus `json:"status" db:"status"`
	TotalSeats    int        `json:"total_seats" db:"total_seats"`
	BookedSeats   int        `json:"booked_seats" db:"booked_seats"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// BasePrice returns the stable anchor all dynamic factors multiply
// against: the stored original price if an adjustment already
// happened, otherwise the current price.
func (t *PricingTrip) BasePrice() float64 {
	if t.OriginalPrice != nil {
		return *t.OriginalPrice
	}
	return t.Price
}

// OccupancyRate returns booked seats as a fraction of capacity.
func (t *PricingTrip) OccupancyRate() float64 {
	if t.TotalSeats <= 0 {
		return 0
	}
	return float64(t.BookedSeats) / float64(t.TotalSeats)
}

// HourRange is a peak-hour interval in 24h local time, inclusive on
// both ends.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the hour falls inside the interval.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour <= r.End
}

// PricingConfig holds the tuning knobs for dynamic price computation.
// It is an immutable value: build one with DefaultPricingConfig and
// Merge, never mutate a shared instance.
type PricingConfig struct {
	EarlyBirdDiscount    float64     `json:"early_bird_discount"`
	LastMinuteMultiplier float64     `json:"last_minute_multiplier"`
	PeakHourMultiplier   float64     `json:"peak_hour_multiplier"`
	HighDemandMultiplier float64     `json:"high_demand_multiplier"`
	LowDemandDiscount    float64     `json:"low_demand_discount"`
	EarlyBirdThreshold   float64     `json:"early_bird_threshold_hours"`
	LastMinuteThreshold  float64     `json:"last_minute_threshold_hours"`
	MaxPriceIncrease     float64     `json:"max_price_increase"`
	MaxPriceDecrease     float64     `json:"max_price_decrease"`
	PeakHours            []HourRange `json:"peak_hours"`
}

// DefaultPricingConfig returns the standard pricing configuration.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		EarlyBirdDiscount:    0.85,
		LastMinuteMultiplier: 1.25,
		PeakHourMultiplier:   1.15,
		HighDemandMultiplier: 1.3,
		LowDemandDiscount:    0.8,
		EarlyBirdThreshold:   48,
		LastMinuteThreshold:  6,
		MaxPriceIncrease:     1.5,
		MaxPriceDecrease:     0.7,
		PeakHours: []HourRange{
			{Start: 7, End: 10},
			{Start: 17, End: 20},
		},
	}
}

// PricingOverrides is a partial configuration; unset fields keep the
// value they are merged over.
type PricingOverrides struct {
	EarlyBirdDiscount    *float64    `json:"early_bird_discount,omitempty"`
	LastMinuteMultiplier *float64    `json:"last_minute_multiplier,omitempty"`
	PeakHourMultiplier   *float64    `json:"peak_hour_multiplier,omitempty"`
	HighDemandMultiplier *float64    `json:"high_demand_multiplier,omitempty"`
	LowDemandDiscount    *float64    `json:"low_demand_discount,omitempty"`
	EarlyBirdThreshold   *float64    `json:"early_bird_threshold_hours,omitempty"`
	LastMinuteThreshold  *float64    `json:"last_minute_threshold_hours,omitempty"`
	MaxPriceIncrease     *float64    `json:"max_price_increase,omitempty"`
	MaxPriceDecrease     *float64    `json:"max_price_decrease,omitempty"`
	PeakHours            []HourRange `json:"peak_hours,omitempty"`
}

// Merge returns a copy of the configuration with every set override
// applied.
func (c PricingConfig) Merge(o PricingOverrides) PricingConfig {
	if o.EarlyBirdDiscount != nil {
		c.EarlyBirdDiscount = *o.EarlyBirdDiscount
	}
	if o.LastMinuteMultiplier != nil {
		c.LastMinuteMultiplier = *o.LastMinuteMultiplier
	}
	if o.PeakHourMultiplier != nil {
		c.PeakHourMultiplier = *o.PeakHourMultiplier
	}
	if o.HighDemandMultiplier != nil {
		c.HighDemandMultiplier = *o.HighDemandMultiplier
	}
	if o.LowDemandDiscount != nil {
		c.LowDemandDiscount = *o.LowDemandDiscount
	}
	if o.EarlyBirdThreshold != nil {
		c.EarlyBirdThreshold = *o.EarlyBirdThreshold
	}
	if o.LastMinuteThreshold != nil {
		c.LastMinuteThreshold = *o.LastMinuteThreshold
	}
	if o.MaxPriceIncrease != nil {
		c.MaxPriceIncrease = *o.MaxPriceIncrease
	}
	if o.MaxPriceDecrease != nil {
		c.MaxPriceDecrease = *o.MaxPriceDecrease
	}
	if o.PeakHours != nil {
		peaks := make([]HourRange, len(o.PeakHours))
		copy(peaks, o.PeakHours)
		c.PeakHours = peaks
	}
	return c
}

// Validate checks that the configuration describes a sensible price
// space. A config where the floor exceeds the ceiling is rejected
// outright rather than clamped.
func (c PricingConfig) Validate() error {
	if c.MaxPriceDecrease > c.MaxPriceIncrease {
		return ErrInvalidInput(fmt.Sprintf(
			"max_price_decrease (%.2f) cannot exceed max_price_increase (%.2f)",
			c.MaxPriceDecrease, c.MaxPriceIncrease))
	}
	if c.EarlyBirdDiscount <= 0 || c.EarlyBirdDiscount > 1 {
		return ErrInvalidInput("early_bird_discount must be in (0, 1]")
	}
	if c.LowDemandDiscount <= 0 || c.LowDemandDiscount > 1 {
		return ErrInvalidInput("low_demand_discount must be in (0, 1]")
	}
	if c.LastMinuteMultiplier < 1 || c.PeakHourMultiplier < 1 || c.HighDemandMultiplier < 1 {
		return ErrInvalidInput("premium multipliers must be at least 1")
	}
	if c.EarlyBirdThreshold < 0 || c.LastMinuteThreshold < 0 {
		return ErrInvalidInput("time thresholds cannot be negative")
	}
	for _, r := range c.PeakHours {
		if r.Start < 0 || r.End > 23 || r.Start > r.End {
			return ErrInvalidInput(fmt.Sprintf("invalid peak hour range [%d, %d]", r.Start, r.End))
		}
	}
	return nil
}

// PricingFactors breaks a computed price down into its components for
// explainability.
type PricingFactors struct {
	TimeFactor      float64 `json:"time_factor"`
	OccupancyFactor float64 `json:"occupancy_factor"`
	PeakHourFactor  float64 `json:"peak_hour_factor"`
	VelocityFactor  float64 `json:"velocity_factor"`
	FinalPrice      float64 `json:"final_price"`
	PriceChange     float64 `json:"price_change_percent"`
}

// PricingUpdate records one applied price change. It is logged and
// returned to callers, never persisted as its own entity.
type PricingUpdate struct {
	TripID            string    `json:"trip_id"`
	OldPrice          float64   `json:"old_price"`
	NewPrice          float64   `json:"new_price"`
	AdjustmentPercent float64   `json:"adjustment_percent"`
	Reason            string    `json:"reason"`
	Timestamp         time.Time `json:"timestamp"`
}

// BatchPriceQuote is a read-only price recomputation for one trip.
type BatchPriceQuote struct {
	TripID       string  `json:"trip_id"`
	CurrentPrice float64 `json:"current_price"`
	NewPrice     float64 `json:"new_price"`
	Adjustment   float64 `json:"adjustment_percent"`
}

// PriceRevision is a recently adjusted trip's price state, used for
// scheduler health statistics.
type PriceRevision struct {
	Price         float64   `json:"price" db:"price"`
	OriginalPrice *float64  `json:"original_price,omitempty" db:"original_price"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
