package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/smarttransit/pricing-engine/internal/models"
)

// PricingTripRepository is the storage collaborator of the pricing and
// ranking engine. Seat capacity and active booking counts are
// denormalized into the returned snapshots so the engine never joins.
type PricingTripRepository struct {
	db DB
}

// NewPricingTripRepository creates a new PricingTripRepository
func NewPricingTripRepository(db DB) *PricingTripRepository {
	return &PricingTripRepository{db: db}
}

// ListEligiblePricingTrips returns scheduled trips departing within the
// horizon, with their bus capacity and confirmed+pending booking count.
func (r *PricingTripRepository) ListEligiblePricingTrips(now time.Time, horizonDays int) ([]models.PricingTrip, error) {
	query := `
		SELECT t.id, t.departure_time, t.arrival_time, t.price, t.original_price, t.status,
		       b.total_seats,
		       COALESCE(bk.booked_count, 0) AS booked_seats,
		       t.created_at
		FROM trips t
		JOIN buses b ON b.id = t.bus_id
		LEFT JOIN (
			SELECT trip_id, COUNT(*) AS booked_count
			FROM bookings
			WHERE status IN ('confirmed', 'pending')
			GROUP BY trip_id
		) bk ON bk.trip_id = t.id
		WHERE t.status = 'scheduled'
		  AND t.departure_time BETWEEN $1 AND $2
		ORDER BY t.departure_time
	`

	horizon := now.AddDate(0, 0, horizonDays)
	rows, err := r.db.Query(query, now, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible pricing trips: %w", err)
	}
	defer rows.Close()

	trips := []models.PricingTrip{}
	for rows.Next() {
		trip, err := scanPricingTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}

	return trips, rows.Err()
}

// GetTripByID retrieves one pricing snapshot, or nil if the trip does
// not exist.
func (r *PricingTripRepository) GetTripByID(tripID string) (*models.PricingTrip, error) {
	query := `
		SELECT t.id, t.departure_time, t.arrival_time, t.price, t.original_price, t.status,
		       b.total_seats,
		       COALESCE(bk.booked_count, 0) AS booked_seats,
		       t.created_at
		FROM trips t
		JOIN buses b ON b.id = t.bus_id
		LEFT JOIN (
			SELECT trip_id, COUNT(*) AS booked_count
			FROM bookings
			WHERE status IN ('confirmed', 'pending')
			GROUP BY trip_id
		) bk ON bk.trip_id = t.id
		WHERE t.id = $1
	`

	trip, err := scanPricingTrip(r.db.QueryRow(query, tripID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip %s: %w", tripID, err)
	}
	return trip, nil
}

// UpdateTripPrice writes the new price. When originalPrice is non-nil
// the pre-adjustment baseline is stored alongside; an already stored
// baseline is never overwritten.
func (r *PricingTripRepository) UpdateTripPrice(tripID string, price float64, originalPrice *float64) error {
	query := `
		UPDATE trips
		SET price = $2,
		    original_price = COALESCE(original_price, $3),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(query, tripID, price, originalPrice)
	if err != nil {
		return fmt.Errorf("failed to update trip price: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound("trip", tripID)
	}

	return nil
}

// ResetTripPrice reverts the trip to the given price and clears the
// stored baseline.
func (r *PricingTripRepository) ResetTripPrice(tripID string, price float64) error {
	query := `
		UPDATE trips
		SET price = $2, original_price = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(query, tripID, price)
	if err != nil {
		return fmt.Errorf("failed to reset trip price: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound("trip", tripID)
	}

	return nil
}

// CountActiveTrips counts scheduled trips still ahead of departure.
func (r *PricingTripRepository) CountActiveTrips(now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM trips
		WHERE status = 'scheduled' AND departure_time > $1
	`

	var count int
	if err := r.db.QueryRow(query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active trips: %w", err)
	}
	return count, nil
}

// ListRecentlyUpdatedTrips returns price revisions for trips adjusted
// since the given time.
func (r *PricingTripRepository) ListRecentlyUpdatedTrips(since time.Time) ([]models.PriceRevision, error) {
	query := `
		SELECT price, original_price, updated_at
		FROM trips
		WHERE original_price IS NOT NULL AND updated_at >= $1
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recently updated trips: %w", err)
	}
	defer rows.Close()

	revisions := []models.PriceRevision{}
	for rows.Next() {
		var rev models.PriceRevision
		var original sql.NullFloat64

		if err := rows.Scan(&rev.Price, &original, &rev.UpdatedAt); err != nil {
			return nil, err
		}
		if original.Valid {
			rev.OriginalPrice = &original.Float64
		}
		revisions = append(revisions, rev)
	}

	return revisions, rows.Err()
}

// ListPastBookings returns a user's recent completed bookings for
// preference inference, newest first.
func (r *PricingTripRepository) ListPastBookings(userID string) ([]models.PastBooking, error) {
	query := `
		SELECT bk.trip_id, r.origin, r.destination, b.bus_type, bk.paid_price, bk.created_at
		FROM bookings bk
		JOIN trips t ON t.id = bk.trip_id
		JOIN routes r ON r.id = t.route_id
		JOIN buses b ON b.id = t.bus_id
		WHERE bk.user_id = $1 AND bk.status IN ('confirmed', 'completed')
		ORDER BY bk.created_at DESC
		LIMIT 50
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list past bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.PastBooking{}
	for rows.Next() {
		var pb models.PastBooking
		if err := rows.Scan(&pb.TripID, &pb.Origin, &pb.Destination, &pb.BusType, &pb.PaidPrice, &pb.BookedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, pb)
	}

	return bookings, rows.Err()
}

// ListRankableTrips returns upcoming candidate trips with full route,
// bus and operator detail for the ranking pipeline. Empty origin or
// destination matches everything.
func (r *PricingTripRepository) ListRankableTrips(origin, destination string, from time.Time, limit int) ([]models.Trip, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT t.id, rt.origin, rt.destination, b.bus_type,
		       t.operator_id, o.name, o.rating, b.facilities,
		       t.price, t.departure_time, t.arrival_time,
		       rt.distance_km, rt.duration_minutes,
		       b.total_seats, COALESCE(bk.booked_count, 0) AS booked_seats,
		       t.status, t.created_at
		FROM trips t
		JOIN routes rt ON rt.id = t.route_id
		JOIN buses b ON b.id = t.bus_id
		JOIN operators o ON o.id = t.operator_id
		LEFT JOIN (
			SELECT trip_id, COUNT(*) AS booked_count
			FROM bookings
			WHERE status IN ('confirmed', 'pending')
			GROUP BY trip_id
		) bk ON bk.trip_id = t.id
		WHERE t.status = 'scheduled'
		  AND t.departure_time >= $3
		  AND ($1 = '' OR rt.origin ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR rt.destination ILIKE '%' || $2 || '%')
		ORDER BY t.departure_time
		LIMIT $4
	`

	rows, err := r.db.Query(query, origin, destination, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankable trips: %w", err)
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		var trip models.Trip
		var rating sql.NullFloat64
		var distance sql.NullFloat64
		var duration sql.NullInt64
		var facilities pq.StringArray

		err := rows.Scan(
			&trip.ID, &trip.Origin, &trip.Destination, &trip.BusType,
			&trip.OperatorID, &trip.OperatorName, &rating, &facilities,
			&trip.Price, &trip.DepartureTime, &trip.ArrivalTime,
			&distance, &duration,
			&trip.TotalSeats, &trip.BookedSeats,
			&trip.Status, &trip.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if rating.Valid {
			trip.OperatorRating = &rating.Float64
		}
		if distance.Valid {
			trip.DistanceKm = &distance.Float64
		}
		if duration.Valid {
			d := int(duration.Int64)
			trip.DurationMinutes = &d
		}
		trip.Facilities = []string(facilities)

		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPricingTrip(row rowScanner) (*models.PricingTrip, error) {
	trip := &models.PricingTrip{}
	var original sql.NullFloat64

	err := row.Scan(
		&trip.ID, &trip.DepartureTime, &trip.ArrivalTime, &trip.Price, &original, &trip.Status,
		&trip.TotalSeats, &trip.BookedSeats, &trip.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if original.Valid {
		trip.OriginalPrice = &original.Float64
	}

	return trip, nil
}
