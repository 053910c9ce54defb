package service

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

// Admission is the rate limiter's decision. Delay is a randomized pause to
// impose before the external call so outbound actions carry no mechanical
// timing signature.
type Admission struct {
	Allowed bool
	Delay   time.Duration
}

type RateLimiter interface {
	Admit(kind models.ActionKind, now time.Time) (Admission, error)
}

// RateLimitStore enforces daily caps and minimum spacing using counters
// persisted per (kind, UTC day). Invocations are independent processes, so
// the counter row is the only shared budget.
type RateLimitStore struct {
	db     *gorm.DB
	limits *config.LimitsConfig
	rand   *rand.Rand
}

func NewRateLimitStore(db *gorm.DB, limits *config.LimitsConfig) *RateLimitStore {
	return &RateLimitStore{
		db:     db,
		limits: limits,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RateLimitStore) Admit(kind models.ActionKind, now time.Time) (Admission, error) {
	limit := s.limits.ForKind(kind)
	day := utcDay(now)

	var admitted bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Lock the counter row so concurrent invocations serialize on the
		// budget instead of both reading the same count.
		var counter models.RateCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("action_kind = ? AND day = ?", kind, day).First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.RateCounter{ActionKind: kind, Day: day}
		} else if err != nil {
			return fmt.Errorf("failed to load rate counter: %w", err)
		}

		if !admitDecision(&counter, limit, now) {
			return nil
		}

		counter.Count++
		counter.LastAdmitted = &now
		if err := tx.Save(&counter).Error; err != nil {
			return fmt.Errorf("failed to update rate counter: %w", err)
		}
		admitted = true
		return nil
	})
	if err != nil {
		return Admission{}, err
	}
	if !admitted {
		return Admission{}, nil
	}
	return Admission{Allowed: true, Delay: s.sampleDelay(limit)}, nil
}

// admitDecision is the pure admission rule: below the day's cap and past the
// minimum spacing since the last admitted action of the same kind.
func admitDecision(counter *models.RateCounter, limit config.ActionLimit, now time.Time) bool {
	if counter.Count >= limit.DailyCap {
		return false
	}
	if counter.LastAdmitted != nil && now.Sub(*counter.LastAdmitted) < limit.MinDelayDuration() {
		return false
	}
	return true
}

// sampleDelay draws uniformly from [min_delay, max_delay].
func (s *RateLimitStore) sampleDelay(limit config.ActionLimit) time.Duration {
	minD := limit.MinDelayDuration()
	maxD := limit.MaxDelayDuration()
	if maxD <= minD {
		return minD
	}
	return minD + time.Duration(s.rand.Int63n(int64(maxD-minD)))
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
