package service

import (
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

func TestAdmitDecisionDailyCap(t *testing.T) {
	limit := config.ActionLimit{DailyCap: 1, MinDelay: "0s", MaxDelay: "0s"}
	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

	counter := &models.RateCounter{ActionKind: models.ActionPost, Day: "2026-01-05"}
	assert.True(t, admitDecision(counter, limit, now))

	counter.Count = 1
	assert.False(t, admitDecision(counter, limit, now), "cap of one admits exactly one action per day")

	// Next UTC day starts from a fresh counter
	fresh := &models.RateCounter{ActionKind: models.ActionPost, Day: "2026-01-06"}
	assert.True(t, admitDecision(fresh, limit, now.AddDate(0, 0, 1)))
}

func TestAdmitDecisionZeroCapBlocksEverything(t *testing.T) {
	limit := config.ActionLimit{DailyCap: 0, MinDelay: "0s", MaxDelay: "0s"}
	counter := &models.RateCounter{}
	assert.False(t, admitDecision(counter, limit, time.Now()))
}

func TestAdmitDecisionMinimumSpacing(t *testing.T) {
	limit := config.ActionLimit{DailyCap: 10, MinDelay: "5m", MaxDelay: "10m"}
	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

	last := now.Add(-2 * time.Minute)
	counter := &models.RateCounter{Count: 1, LastAdmitted: &last}
	assert.False(t, admitDecision(counter, limit, now))

	spaced := now.Add(-6 * time.Minute)
	counter.LastAdmitted = &spaced
	assert.True(t, admitDecision(counter, limit, now))
}

func TestAdmitLocksCounterRow(t *testing.T) {
	gdb, mock := newMockDB(t)
	limits := &config.LimitsConfig{Post: config.ActionLimit{DailyCap: 3, MinDelay: "0s", MaxDelay: "0s"}}
	store := NewRateLimitStore(gdb, limits)

	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rate_counters".*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"action_kind", "day", "count", "last_admitted"}).
			AddRow("post", "2026-01-05", 1, nil))
	mock.ExpectExec(`UPDATE "rate_counters"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	admission, err := store.Admit(models.ActionPost, now)
	require.NoError(t, err)
	assert.True(t, admission.Allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitDeniedWithoutCounterUpdate(t *testing.T) {
	gdb, mock := newMockDB(t)
	limits := &config.LimitsConfig{Post: config.ActionLimit{DailyCap: 1, MinDelay: "0s", MaxDelay: "0s"}}
	store := NewRateLimitStore(gdb, limits)

	now := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rate_counters".*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"action_kind", "day", "count", "last_admitted"}).
			AddRow("post", "2026-01-05", 1, nil))
	mock.ExpectCommit()

	admission, err := store.Admit(models.ActionPost, now)
	require.NoError(t, err)
	assert.False(t, admission.Allowed, "a counter at the cap denies without writing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleDelayBounds(t *testing.T) {
	s := &RateLimitStore{rand: rand.New(rand.NewSource(1))}
	limit := config.ActionLimit{MinDelay: "1m", MaxDelay: "3m"}

	for i := 0; i < 100; i++ {
		d := s.sampleDelay(limit)
		assert.GreaterOrEqual(t, d, time.Minute)
		assert.Less(t, d, 3*time.Minute)
	}
}

func TestSampleDelayDegenerateRange(t *testing.T) {
	s := &RateLimitStore{rand: rand.New(rand.NewSource(1))}
	limit := config.ActionLimit{MinDelay: "2m", MaxDelay: "2m"}
	assert.Equal(t, 2*time.Minute, s.sampleDelay(limit))
}

func TestUTCDay(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	late := time.Date(2026, 1, 5, 23, 30, 0, 0, est)
	assert.Equal(t, "2026-01-06", utcDay(late))
}
