package models

import "time"

// PriceRange is an inclusive price interval.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether the price falls inside the range.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

// TimeOfDay is a departure time bucket.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"   // [06:00, 12:00)
	TimeOfDayAfternoon TimeOfDay = "afternoon" // [12:00, 18:00)
	TimeOfDayEvening   TimeOfDay = "evening"   // [18:00, 22:00)
	TimeOfDayNight     TimeOfDay = "night"     // [22:00, 06:00)
)

// TimeOfDayForHour buckets a local departure hour.
func TimeOfDayForHour(hour int) TimeOfDay {
	switch {
	case hour >= 6 && hour < 12:
		return TimeOfDayMorning
	case hour >= 12 && hour < 18:
		return TimeOfDayAfternoon
	case hour >= 18 && hour < 22:
		return TimeOfDayEvening
	default:
		return TimeOfDayNight
	}
}

// UserPreferences describes what a passenger tends to book. Every
// field is optional: an absent field contributes no weight to the
// relevance score rather than scoring zero.
type UserPreferences struct {
	Origins      []string    `json:"origins,omitempty"`
	Destinations []string    `json:"destinations,omitempty"`
	BusTypes     []string    `json:"bus_types,omitempty"`
	PriceRange   *PriceRange `json:"price_range,omitempty"`
	TimeOfDay    TimeOfDay   `json:"time_of_day,omitempty"`
	Facilities   []string    `json:"facilities,omitempty"`
}

// IsEmpty reports whether no preference signal is set.
func (p UserPreferences) IsEmpty() bool {
	return len(p.Origins) == 0 &&
		len(p.Destinations) == 0 &&
		len(p.BusTypes) == 0 &&
		p.PriceRange == nil &&
		p.TimeOfDay == "" &&
		len(p.Facilities) == 0
}

// SearchFilters are the active filters of a search request. A matched
// filter dimension reinforces the relevance score beyond the base
// preference weights.
type SearchFilters struct {
	Origin      string      `json:"origin,omitempty"`
	Destination string      `json:"destination,omitempty"`
	BusType     string      `json:"bus_type,omitempty"`
	PriceRange  *PriceRange `json:"price_range,omitempty"`
}

// PastBooking is one historical booking used for preference inference.
type PastBooking struct {
	TripID      string    `json:"trip_id" db:"trip_id"`
	Origin      string    `json:"origin" db:"origin"`
	Destination string    `json:"destination" db:"destination"`
	BusType     string    `json:"bus_type" db:"bus_type"`
	PaidPrice   float64   `json:"paid_price" db:"paid_price"`
	BookedAt    time.Time `json:"booked_at" db:"booked_at"`
}
