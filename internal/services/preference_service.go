package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/metrics"
	"github.com/smarttransit/pricing-engine/internal/models"
)

const preferenceKeyPrefix = "user:preferences:"

// BookingHistoryStore provides the booking history preference inference
// runs on.
type BookingHistoryStore interface {
	ListPastBookings(userID string) ([]models.PastBooking, error)
}

// PreferenceService resolves a passenger's preference profile, caching
// inferred profiles in Redis. A nil cache client disables caching and
// every lookup infers from history.
type PreferenceService struct {
	store     BookingHistoryStore
	relevance *RelevanceModel
	cache     *redis.Client
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewPreferenceService creates a new PreferenceService.
func NewPreferenceService(store BookingHistoryStore, relevance *RelevanceModel, cache *redis.Client, ttl time.Duration, logger *logrus.Logger) *PreferenceService {
	return &PreferenceService{
		store:     store,
		relevance: relevance,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetUserPreferences returns the cached preference profile for a user,
// inferring and caching one from booking history on a miss.
func (s *PreferenceService) GetUserPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	if userID == "" {
		return models.UserPreferences{}, models.ErrInvalidInput("user id is required")
	}

	if cached, ok := s.fromCache(ctx, userID); ok {
		return cached, nil
	}

	bookings, err := s.store.ListPastBookings(userID)
	if err != nil {
		return models.UserPreferences{}, fmt.Errorf("failed to load booking history for user %s: %w", userID, err)
	}

	prefs := s.relevance.InferPreferences(bookings)
	s.toCache(ctx, userID, prefs)
	return prefs, nil
}

// InvalidateUserPreferences drops the cached profile, forcing the next
// lookup to re-infer. Call it after a new booking lands.
func (s *PreferenceService) InvalidateUserPreferences(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, preferenceKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate preferences for user %s: %w", userID, err)
	}
	return nil
}

func (s *PreferenceService) fromCache(ctx context.Context, userID string) (models.UserPreferences, bool) {
	if s.cache == nil {
		return models.UserPreferences{}, false
	}

	payload, err := s.cache.Get(ctx, preferenceKeyPrefix+userID).Result()
	if err == redis.Nil {
		metrics.PreferenceCacheHits.WithLabelValues("miss").Inc()
		return models.UserPreferences{}, false
	}
	if err != nil {
		metrics.PreferenceCacheHits.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("user_id", userID).
			Warn("Preference cache read failed, falling back to history")
		return models.UserPreferences{}, false
	}

	var prefs models.UserPreferences
	if err := json.Unmarshal([]byte(payload), &prefs); err != nil {
		metrics.PreferenceCacheHits.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("user_id", userID).
			Warn("Corrupt cached preferences, re-inferring")
		return models.UserPreferences{}, false
	}

	metrics.PreferenceCacheHits.WithLabelValues("hit").Inc()
	return prefs, true
}

// toCache is best effort: a cache write failure is logged, never
// surfaced.
func (s *PreferenceService) toCache(ctx context.Context, userID string, prefs models.UserPreferences) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(prefs)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to marshal preferences for cache")
		return
	}
	if err := s.cache.Set(ctx, preferenceKeyPrefix+userID, payload, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Preference cache write failed")
	}
}
