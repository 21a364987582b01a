package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/metrics"
	"github.com/smarttransit/pricing-engine/internal/models"
)

var (
	// ErrBatchAlreadyRunning is returned to a manual trigger while a
	// pricing batch is in flight. Timer ticks hitting the same guard
	// are silently skipped instead.
	ErrBatchAlreadyRunning = errors.New("pricing batch already running")

	// ErrNoOriginalPrice is returned when reverting a trip that has no
	// stored pre-adjustment baseline.
	ErrNoOriginalPrice = errors.New("trip has no original price to revert to")
)

// PricingStore is the storage contract the scheduler depends on.
type PricingStore interface {
	ListEligiblePricingTrips(now time.Time, horizonDays int) ([]models.PricingTrip, error)
	UpdateTripPrice(tripID string, price float64, originalPrice *float64) error
	ResetTripPrice(tripID string, price float64) error
	GetTripByID(tripID string) (*models.PricingTrip, error)
	CountActiveTrips(now time.Time) (int, error)
	ListRecentlyUpdatedTrips(since time.Time) ([]models.PriceRevision, error)
}

// SchedulerSettings controls the batch cadence and update sensitivity.
type SchedulerSettings struct {
	UpdateInterval         time.Duration
	InitialDelay           time.Duration
	HorizonDays            int
	UpdateThresholdPercent float64
}

// DefaultSchedulerSettings returns the standard scheduler cadence.
func DefaultSchedulerSettings() SchedulerSettings {
	return SchedulerSettings{
		UpdateInterval:         15 * time.Minute,
		InitialDelay:           30 * time.Second,
		HorizonDays:            7,
		UpdateThresholdPercent: 2.0,
	}
}

// BatchResult summarizes one pricing batch run.
type BatchResult struct {
	BatchID             string                 `json:"batch_id"`
	TotalTripsProcessed int                    `json:"total_trips_processed"`
	PricesUpdated       int                    `json:"prices_updated"`
	Failed              int                    `json:"failed"`
	Updates             []models.PricingUpdate `json:"updates"`
	StartedAt           time.Time              `json:"started_at"`
	FinishedAt          time.Time              `json:"finished_at"`
}

// SchedulerStatus reports whether a batch is running and when the next
// one fires.
type SchedulerStatus struct {
	IsRunning          bool   `json:"is_running"`
	NextRunDescription string `json:"next_run_description"`
}

// SchedulerHealth reports batch health statistics for monitoring.
type SchedulerHealth struct {
	Status          string     `json:"status"`
	LastUpdate      *time.Time `json:"last_update,omitempty"`
	ActiveTripCount int        `json:"active_trip_count"`
	AvgAdjustment   float64    `json:"avg_adjustment_percent"`
}

// PricingSchedulerService runs the recurring dynamic pricing batch. At
// most one batch is in flight at a time; the guard is a CAS so manual
// triggers and timer ticks can race safely.
type PricingSchedulerService struct {
	store    PricingStore
	settings SchedulerSettings
	logger   *logrus.Logger

	running    atomic.Bool
	cron       *cron.Cron
	initialRun *time.Timer
	stopOnce   sync.Once
	started    bool

	configMu sync.RWMutex
	config   models.PricingConfig

	lastRunMu sync.RWMutex
	lastRun   *BatchResult
}

// NewPricingSchedulerService creates a new PricingSchedulerService with
// the default pricing configuration.
func NewPricingSchedulerService(store PricingStore, settings SchedulerSettings, logger *logrus.Logger) *PricingSchedulerService {
	return &PricingSchedulerService{
		store:    store,
		settings: settings,
		logger:   logger,
		cron:     cron.New(),
		config:   models.DefaultPricingConfig(),
	}
}

// Start schedules the recurring batch plus one initial run after the
// configured delay.
func (s *PricingSchedulerService) Start() error {
	if s.started {
		return fmt.Errorf("pricing scheduler already started")
	}

	schedule := cron.Every(s.settings.UpdateInterval)
	s.cron.Schedule(schedule, cron.FuncJob(s.timerTick))
	s.cron.Start()

	s.initialRun = time.AfterFunc(s.settings.InitialDelay, s.timerTick)
	s.started = true

	s.logger.WithFields(logrus.Fields{
		"interval":      s.settings.UpdateInterval.String(),
		"initial_delay": s.settings.InitialDelay.String(),
		"horizon_days":  s.settings.HorizonDays,
	}).Info("Pricing scheduler started")

	return nil
}

// Stop cancels future runs. It is idempotent and does not interrupt an
// in-flight batch.
func (s *PricingSchedulerService) Stop() {
	s.stopOnce.Do(func() {
		if s.initialRun != nil {
			s.initialRun.Stop()
		}
		s.cron.Stop()
		s.logger.Info("Pricing scheduler stopped")
	})
}

// RunManualUpdate triggers a batch outside the timer cadence. It fails
// with ErrBatchAlreadyRunning if one is in flight.
func (s *PricingSchedulerService) RunManualUpdate() (*BatchResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBatchAlreadyRunning
	}
	defer s.running.Store(false)

	return s.runBatch()
}

// timerTick is the cron/initial-delay entry point: a tick during a
// running batch is a silent no-op.
func (s *PricingSchedulerService) timerTick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Pricing batch still running, skipping timer tick")
		return
	}
	defer s.running.Store(false)

	if _, err := s.runBatch(); err != nil {
		s.logger.WithError(err).Error("Scheduled pricing batch failed")
	}
}

// runBatch prices every eligible trip once. Per-trip failures are
// logged and counted but never abort the batch; a failed listing does.
func (s *PricingSchedulerService) runBatch() (*BatchResult, error) {
	batchID := uuid.New().String()
	now := time.Now()
	config := s.PricingConfig()

	result := &BatchResult{
		BatchID:   batchID,
		StartedAt: now,
		Updates:   []models.PricingUpdate{},
	}

	timer := prometheus.NewTimer(metrics.PricingBatchDuration)
	defer timer.ObserveDuration()

	trips, err := s.store.ListEligiblePricingTrips(now, s.settings.HorizonDays)
	if err != nil {
		metrics.PricingBatchRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list trips for pricing batch: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"trip_count": len(trips),
	}).Info("Pricing batch started")

	for _, trip := range trips {
		result.TotalTripsProcessed++

		update, err := s.priceTrip(trip, config, now)
		if err != nil {
			result.Failed++
			metrics.PricingTripFailures.Inc()
			s.logger.WithError(err).WithFields(logrus.Fields{
				"batch_id": batchID,
				"trip_id":  trip.ID,
			}).Error("Failed to update trip price")
			continue
		}
		if update != nil {
			result.PricesUpdated++
			result.Updates = append(result.Updates, *update)
			metrics.PricesUpdated.Inc()
		}
	}

	result.FinishedAt = time.Now()
	s.setLastRun(result)
	metrics.PricingBatchRuns.WithLabelValues("success").Inc()

	s.logger.WithFields(logrus.Fields{
		"batch_id":       batchID,
		"processed":      result.TotalTripsProcessed,
		"prices_updated": result.PricesUpdated,
		"failed":         result.Failed,
		"duration":       result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Pricing batch finished")

	return result, nil
}

// priceTrip computes and conditionally persists one trip's price. The
// first-ever adjustment also anchors the pre-update price as the
// baseline for all future runs.
func (s *PricingSchedulerService) priceTrip(trip models.PricingTrip, config models.PricingConfig, now time.Time) (*models.PricingUpdate, error) {
	factors, err := GetPricingFactors(trip, config, now)
	if err != nil {
		return nil, err
	}

	if !ShouldUpdatePrice(trip.Price, factors.FinalPrice, s.settings.UpdateThresholdPercent) {
		return nil, nil
	}

	var anchor *float64
	if trip.OriginalPrice == nil {
		preUpdate := trip.Price
		anchor = &preUpdate
	}

	if err := s.store.UpdateTripPrice(trip.ID, factors.FinalPrice, anchor); err != nil {
		return nil, err
	}

	return &models.PricingUpdate{
		TripID:            trip.ID,
		OldPrice:          trip.Price,
		NewPrice:          factors.FinalPrice,
		AdjustmentPercent: factors.PriceChange,
		Reason:            priceChangeReason(factors),
		Timestamp:         now,
	}, nil
}

// RevertPrice restores a trip's original price and clears the stored
// baseline.
func (s *PricingSchedulerService) RevertPrice(tripID string) error {
	trip, err := s.store.GetTripByID(tripID)
	if err != nil {
		return err
	}
	if trip == nil {
		return models.ErrNotFound("trip", tripID)
	}
	if trip.OriginalPrice == nil {
		return ErrNoOriginalPrice
	}

	if err := s.store.ResetTripPrice(tripID, *trip.OriginalPrice); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":        tripID,
		"restored_price": *trip.OriginalPrice,
	}).Info("Trip price reverted")

	return nil
}

// Status reports whether a batch is in flight and the recurring
// cadence.
func (s *PricingSchedulerService) Status() SchedulerStatus {
	return SchedulerStatus{
		IsRunning:          s.running.Load(),
		NextRunDescription: fmt.Sprintf("every %s", s.settings.UpdateInterval),
	}
}

// Health reports scheduler health: active trip count and the average
// adjustment across recently updated trips.
func (s *PricingSchedulerService) Health() (*SchedulerHealth, error) {
	now := time.Now()

	activeCount, err := s.store.CountActiveTrips(now)
	if err != nil {
		return nil, fmt.Errorf("failed to count active trips: %w", err)
	}

	revisions, err := s.store.ListRecentlyUpdatedTrips(now.Add(-24 * time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent price revisions: %w", err)
	}

	health := &SchedulerHealth{
		Status:          "healthy",
		ActiveTripCount: activeCount,
	}

	if last := s.LastRun(); last != nil {
		finished := last.FinishedAt
		health.LastUpdate = &finished
	}

	var sum float64
	counted := 0
	for _, rev := range revisions {
		if rev.OriginalPrice == nil || *rev.OriginalPrice == 0 {
			continue
		}
		sum += (rev.Price - *rev.OriginalPrice) / *rev.OriginalPrice * 100
		counted++
	}
	if counted > 0 {
		health.AvgAdjustment = round2(sum / float64(counted))
	}

	return health, nil
}

// PricingConfig returns the current configuration snapshot. One batch
// computation uses exactly one snapshot.
func (s *PricingSchedulerService) PricingConfig() models.PricingConfig {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// SetPricingConfig swaps the configuration wholesale after validating
// it. In-flight batches keep the snapshot they started with.
func (s *PricingSchedulerService) SetPricingConfig(config models.PricingConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.configMu.Lock()
	s.config = config
	s.configMu.Unlock()

	s.logger.Info("Pricing configuration replaced")
	return nil
}

// LastRun returns the most recently finished batch result, or nil.
func (s *PricingSchedulerService) LastRun() *BatchResult {
	s.lastRunMu.RLock()
	defer s.lastRunMu.RUnlock()
	return s.lastRun
}

func (s *PricingSchedulerService) setLastRun(result *BatchResult) {
	s.lastRunMu.Lock()
	s.lastRun = result
	s.lastRunMu.Unlock()
}
