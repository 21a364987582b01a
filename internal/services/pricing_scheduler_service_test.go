package services

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/pricing-engine/internal/models"
)

// stubPricingStore lets each test wire just the calls it cares about.
type stubPricingStore struct {
	listEligible        func(now time.Time, horizonDays int) ([]models.PricingTrip, error)
	updatePrice         func(tripID string, price float64, originalPrice *float64) error
	resetPrice          func(tripID string, price float64) error
	getTrip             func(tripID string) (*models.PricingTrip, error)
	countActive         func(now time.Time) (int, error)
	listRecentlyUpdated func(since time.Time) ([]models.PriceRevision, error)
}

func (s *stubPricingStore) ListEligiblePricingTrips(now time.Time, horizonDays int) ([]models.PricingTrip, error) {
	if s.listEligible != nil {
		return s.listEligible(now, horizonDays)
	}
	return nil, nil
}

func (s *stubPricingStore) UpdateTripPrice(tripID string, price float64, originalPrice *float64) error {
	if s.updatePrice != nil {
		return s.updatePrice(tripID, price, originalPrice)
	}
	return nil
}

func (s *stubPricingStore) ResetTripPrice(tripID string, price float64) error {
	if s.resetPrice != nil {
		return s.resetPrice(tripID, price)
	}
	return nil
}

func (s *stubPricingStore) GetTripByID(tripID string) (*models.PricingTrip, error) {
	if s.getTrip != nil {
		return s.getTrip(tripID)
	}
	return nil, nil
}

func (s *stubPricingStore) CountActiveTrips(now time.Time) (int, error) {
	if s.countActive != nil {
		return s.countActive(now)
	}
	return 0, nil
}

func (s *stubPricingStore) ListRecentlyUpdatedTrips(since time.Time) ([]models.PriceRevision, error) {
	if s.listRecentlyUpdated != nil {
		return s.listRecentlyUpdated(since)
	}
	return nil, nil
}

func newSchedulerTest(store PricingStore) *PricingSchedulerService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := NewPricingSchedulerService(store, DefaultSchedulerSettings(), logger)

	// Pin the peak hours down so batch results do not depend on the
	// wall-clock hour the test happens to run at.
	config := models.DefaultPricingConfig()
	config.PeakHours = nil
	if err := svc.SetPricingConfig(config); err != nil {
		panic(err)
	}
	return svc
}

// updatableTrip produces a trip whose raw price always exceeds the
// ceiling (last-minute plus high demand), so the computed price is
// deterministically base*1.5 regardless of when the test runs.
func updatableTrip(id string, price float64, now time.Time) models.PricingTrip {
	trip := pricingTrip(price, now.Add(2*time.Hour), now.Add(-48*time.Hour), 50, 45)
	trip.ID = id
	return trip
}

// steadyTrip produces a trip with every factor neutral: mid occupancy,
// dead-zone departure, middle-aged.
func steadyTrip(id string, price float64, now time.Time) models.PricingTrip {
	trip := pricingTrip(price, now.Add(24*time.Hour), now.Add(-48*time.Hour), 50, 25)
	trip.ID = id
	return trip
}

func TestRunManualUpdate(t *testing.T) {
	t.Run("Updates Significant Changes Only", func(t *testing.T) {
		now := time.Now()
		written := map[string]float64{}
		anchors := map[string]*float64{}

		store := &stubPricingStore{
			listEligible: func(time.Time, int) ([]models.PricingTrip, error) {
				return []models.PricingTrip{
					updatableTrip("hot", 1200, now),
					steadyTrip("steady", 1500, now),
				}, nil
			},
			updatePrice: func(tripID string, price float64, originalPrice *float64) error {
				written[tripID] = price
				anchors[tripID] = originalPrice
				return nil
			},
		}

		svc := newSchedulerTest(store)
		result, err := svc.RunManualUpdate()
		require.NoError(t, err)

		assert.Equal(t, 2, result.TotalTripsProcessed)
		assert.Equal(t, 1, result.PricesUpdated)
		assert.Equal(t, 0, result.Failed)
		require.Len(t, result.Updates, 1)

		update := result.Updates[0]
		assert.Equal(t, "hot", update.TripID)
		assert.Equal(t, 1200.0, update.OldPrice)
		assert.Equal(t, 1800.0, update.NewPrice)
		assert.Equal(t, 50.0, update.AdjustmentPercent)
		assert.Equal(t, "Last-minute premium, High demand", update.Reason)

		assert.Equal(t, 1800.0, written["hot"])
		_, steadyWritten := written["steady"]
		assert.False(t, steadyWritten)

		// First-ever adjustment anchors the pre-update price.
		require.NotNil(t, anchors["hot"])
		assert.Equal(t, 1200.0, *anchors["hot"])
	})

	t.Run("Existing Baseline Left Untouched", func(t *testing.T) {
		now := time.Now()
		var anchor *float64
		anchorSet := false

		original := 1200.0
		trip := updatableTrip("hot", 1750, now)
		trip.OriginalPrice = &original // base 1200 => computed 1800

		store := &stubPricingStore{
			listEligible: func(time.Time, int) ([]models.PricingTrip, error) {
				return []models.PricingTrip{trip}, nil
			},
			updatePrice: func(tripID string, price float64, originalPrice *float64) error {
				anchor = originalPrice
				anchorSet = true
				return nil
			},
		}

		svc := newSchedulerTest(store)
		result, err := svc.RunManualUpdate()
		require.NoError(t, err)
		require.Equal(t, 1, result.PricesUpdated)

		require.True(t, anchorSet)
		assert.Nil(t, anchor)
	})

	t.Run("One Failing Trip Does Not Abort Batch", func(t *testing.T) {
		now := time.Now()
		store := &stubPricingStore{
			listEligible: func(time.Time, int) ([]models.PricingTrip, error) {
				return []models.PricingTrip{
					updatableTrip("ok-1", 1200, now),
					updatableTrip("broken", 1200, now),
					updatableTrip("ok-2", 1300, now),
				}, nil
			},
			updatePrice: func(tripID string, price float64, originalPrice *float64) error {
				if tripID == "broken" {
					return fmt.Errorf("connection reset")
				}
				return nil
			},
		}

		svc := newSchedulerTest(store)
		result, err := svc.RunManualUpdate()
		require.NoError(t, err)

		assert.Equal(t, 3, result.TotalTripsProcessed)
		assert.Equal(t, 2, result.PricesUpdated)
		assert.Equal(t, 1, result.Failed)
		assert.Len(t, result.Updates, 2)
	})

	t.Run("Listing Failure Aborts Batch", func(t *testing.T) {
		store := &stubPricingStore{
			listEligible: func(time.Time, int) ([]models.PricingTrip, error) {
				return nil, fmt.Errorf("database unavailable")
			},
		}

		svc := newSchedulerTest(store)
		result, err := svc.RunManualUpdate()
		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "failed to list trips")
	})

	t.Run("Rejected While Batch In Flight", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		var enteredOnce sync.Once

		store := &stubPricingStore{
			listEligible: func(time.Time, int) ([]models.PricingTrip, error) {
				enteredOnce.Do(func() { close(entered) })
				<-release
				return nil, nil
			},
		}

		svc := newSchedulerTest(store)

		done := make(chan error, 1)
		go func() {
			_, err := svc.RunManualUpdate()
			done <- err
		}()

		<-entered
		assert.True(t, svc.Status().IsRunning)

		_, err := svc.RunManualUpdate()
		assert.ErrorIs(t, err, ErrBatchAlreadyRunning)

		close(release)
		require.NoError(t, <-done)
		assert.False(t, svc.Status().IsRunning)

		// Guard released: the next trigger goes through.
		_, err = svc.RunManualUpdate()
		assert.NoError(t, err)
	})
}

func TestRevertPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		original := 1200.0
		var resetTo float64

		store := &stubPricingStore{
			getTrip: func(tripID string) (*models.PricingTrip, error) {
				trip := steadyTrip(tripID, 1800, time.Now())
				trip.OriginalPrice = &original
				return &trip, nil
			},
			resetPrice: func(tripID string, price float64) error {
				resetTo = price
				return nil
			},
		}

		svc := newSchedulerTest(store)
		require.NoError(t, svc.RevertPrice("trip-9"))
		assert.Equal(t, 1200.0, resetTo)
	})

	t.Run("Trip Not Found", func(t *testing.T) {
		svc := newSchedulerTest(&stubPricingStore{})

		err := svc.RevertPrice("missing")
		require.Error(t, err)

		var notFound *models.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("No Baseline", func(t *testing.T) {
		store := &stubPricingStore{
			getTrip: func(tripID string) (*models.PricingTrip, error) {
				trip := steadyTrip(tripID, 1800, time.Now())
				return &trip, nil
			},
		}

		svc := newSchedulerTest(store)
		err := svc.RevertPrice("trip-9")
		assert.ErrorIs(t, err, ErrNoOriginalPrice)
	})
}

func TestSchedulerHealth(t *testing.T) {
	t.Run("Averages Recent Adjustments", func(t *testing.T) {
		original := 1000.0
		store := &stubPricingStore{
			countActive: func(time.Time) (int, error) { return 42, nil },
			listRecentlyUpdated: func(time.Time) ([]models.PriceRevision, error) {
				return []models.PriceRevision{
					{Price: 1100, OriginalPrice: &original, UpdatedAt: time.Now()}, // +10%
					{Price: 900, OriginalPrice: &original, UpdatedAt: time.Now()},  // -10%
					{Price: 1200, OriginalPrice: &original, UpdatedAt: time.Now()}, // +20%
					{Price: 500, UpdatedAt: time.Now()},                            // no baseline, skipped
				}, nil
			},
		}

		svc := newSchedulerTest(store)
		health, err := svc.Health()
		require.NoError(t, err)

		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, 42, health.ActiveTripCount)
		assert.InDelta(t, 6.67, health.AvgAdjustment, 0.01)
		assert.Nil(t, health.LastUpdate)
	})

	t.Run("Records Last Run", func(t *testing.T) {
		store := &stubPricingStore{}
		svc := newSchedulerTest(store)

		_, err := svc.RunManualUpdate()
		require.NoError(t, err)

		health, err := svc.Health()
		require.NoError(t, err)
		require.NotNil(t, health.LastUpdate)
	})

	t.Run("Count Failure Surfaces", func(t *testing.T) {
		store := &stubPricingStore{
			countActive: func(time.Time) (int, error) {
				return 0, fmt.Errorf("database unavailable")
			},
		}

		svc := newSchedulerTest(store)
		_, err := svc.Health()
		assert.Error(t, err)
	})
}

func TestSchedulerLifecycle(t *testing.T) {
	t.Run("Stop Is Idempotent", func(t *testing.T) {
		svc := newSchedulerTest(&stubPricingStore{})
		require.NoError(t, svc.Start())

		svc.Stop()
		svc.Stop()
	})

	t.Run("Double Start Rejected", func(t *testing.T) {
		svc := newSchedulerTest(&stubPricingStore{})
		require.NoError(t, svc.Start())
		defer svc.Stop()

		assert.Error(t, svc.Start())
	})

	t.Run("Status Reports Cadence", func(t *testing.T) {
		svc := newSchedulerTest(&stubPricingStore{})
		status := svc.Status()
		assert.False(t, status.IsRunning)
		assert.Contains(t, status.NextRunDescription, "15m")
	})
}

func TestSetPricingConfig(t *testing.T) {
	svc := newSchedulerTest(&stubPricingStore{})

	t.Run("Valid Replacement", func(t *testing.T) {
		config := models.DefaultPricingConfig()
		config.MaxPriceIncrease = 2.0

		require.NoError(t, svc.SetPricingConfig(config))
		assert.Equal(t, 2.0, svc.PricingConfig().MaxPriceIncrease)
	})

	t.Run("Invalid Replacement Rejected", func(t *testing.T) {
		config := models.DefaultPricingConfig()
		config.MaxPriceDecrease = 3.0

		err := svc.SetPricingConfig(config)
		require.Error(t, err)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}
