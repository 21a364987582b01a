package services

import (
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/pricing-engine/internal/models"
)

type stubCandidateStore struct {
	listRankable func(origin, destination string, from time.Time, limit int) ([]models.Trip, error)
}

func (s *stubCandidateStore) ListRankableTrips(origin, destination string, from time.Time, limit int) ([]models.Trip, error) {
	return s.listRankable(origin, destination, from, limit)
}

func newRankingTest(store CandidateStore) *SearchRankingService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	relevance := NewRelevanceModelWithRand(rand.New(rand.NewSource(1)))
	return NewSearchRankingService(store, relevance, NewOccupancyRanker(), logger)
}

func TestRankTrips(t *testing.T) {
	prefs := models.UserPreferences{
		Origins:      []string{"Colombo"},
		Destinations: []string{"Kandy"},
	}

	t.Run("Hybrid Ranking Blends Content And Occupancy", func(t *testing.T) {
		svc := newRankingTest(&stubCandidateStore{})

		match := rankableTrip("match", "Colombo", "Kandy", "luxury", 2500, 8)
		match.BookedSeats = 15 // 30%
		busy := rankableTrip("busy", "Galle", "Matara", "normal", 450, 9)
		busy.BookedSeats = 45 // 90%

		ranked, err := svc.RankTrips([]models.Trip{match, busy},
			prefs, models.SearchFilters{},
			models.RankOptions{UseContentBased: true, PrioritizeOccupancy: true})
		require.NoError(t, err)
		require.Len(t, ranked, 2)

		// match: content 1.0, occ score 0.3 => 0.6 + 0.12 = 0.72
		// busy:  content 0.0, occ score min(0.9*1.5,1)=1 => 0.4
		assert.Equal(t, "match", ranked[0].ID)
		assert.InDelta(t, 0.72, ranked[0].FinalScore, 1e-9)
		assert.Equal(t, "busy", ranked[1].ID)
		assert.InDelta(t, 0.4, ranked[1].FinalScore, 1e-9)
	})

	t.Run("Content Only Keeps Relevance Order", func(t *testing.T) {
		svc := newRankingTest(&stubCandidateStore{})

		near := rankableTrip("near", "Colombo", "Kandy", "luxury", 2500, 8)
		near.BookedSeats = 2 // 4%, would be dropped by occupancy filtering
		far := rankableTrip("far", "Jaffna", "Vavuniya", "normal", 900, 9)
		far.BookedSeats = 40

		ranked, err := svc.RankTrips([]models.Trip{far, near},
			prefs, models.SearchFilters{},
			models.RankOptions{UseContentBased: true})
		require.NoError(t, err)
		require.Len(t, ranked, 2)

		assert.Equal(t, "near", ranked[0].ID)
		require.NotNil(t, ranked[0].ContentScore)
		assert.Equal(t, *ranked[0].ContentScore, ranked[0].FinalScore)
		assert.InDelta(t, 4.0, ranked[0].Occupancy, 1e-9)
	})

	t.Run("Occupancy Only Ignores Content", func(t *testing.T) {
		svc := newRankingTest(&stubCandidateStore{})

		a := rankableTrip("a", "Colombo", "Kandy", "luxury", 2500, 8)
		a.BookedSeats = 10
		b := rankableTrip("b", "Colombo", "Kandy", "luxury", 2500, 9)
		b.BookedSeats = 30

		ranked, err := svc.RankTrips([]models.Trip{a, b},
			models.UserPreferences{}, models.SearchFilters{},
			models.RankOptions{PrioritizeOccupancy: true})
		require.NoError(t, err)
		require.Len(t, ranked, 2)
		assert.Equal(t, "b", ranked[0].ID)
		assert.Equal(t, "a", ranked[1].ID)
	})

	t.Run("Threshold Override Applies", func(t *testing.T) {
		svc := newRankingTest(&stubCandidateStore{})

		low := rankableTrip("low", "Colombo", "Kandy", "luxury", 2500, 8)
		low.BookedSeats = 10 // 20%

		threshold := 25.0
		ranked, err := svc.RankTrips([]models.Trip{low},
			models.UserPreferences{}, models.SearchFilters{},
			models.RankOptions{PrioritizeOccupancy: true, MinOccupancyThreshold: &threshold})
		require.NoError(t, err)
		assert.Empty(t, ranked)
	})

	t.Run("Fetches Candidates When None Given", func(t *testing.T) {
		var gotOrigin, gotDestination string
		store := &stubCandidateStore{
			listRankable: func(origin, destination string, from time.Time, limit int) ([]models.Trip, error) {
				gotOrigin, gotDestination = origin, destination
				trip := rankableTrip("fetched", "Colombo", "Kandy", "luxury", 2500, 8)
				trip.BookedSeats = 20
				return []models.Trip{trip}, nil
			},
		}
		svc := newRankingTest(store)

		filters := models.SearchFilters{Origin: "Colombo", Destination: "Kandy"}
		ranked, err := svc.RankTrips(nil, prefs, filters,
			models.RankOptions{UseContentBased: true})
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.Equal(t, "fetched", ranked[0].ID)
		assert.Equal(t, "Colombo", gotOrigin)
		assert.Equal(t, "Kandy", gotDestination)
	})

	t.Run("Candidate Fetch Failure Surfaces", func(t *testing.T) {
		store := &stubCandidateStore{
			listRankable: func(string, string, time.Time, int) ([]models.Trip, error) {
				return nil, fmt.Errorf("database unavailable")
			},
		}
		svc := newRankingTest(store)

		_, err := svc.RankTrips(nil, prefs, models.SearchFilters{}, models.RankOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load ranking candidates")
	})
}
