package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/models"
)

// Ledger is the activity ledger consumed by the drivers. The store below is
// the production implementation; tests substitute in-memory fakes.
type Ledger interface {
	Claim(kind models.ActionKind, targetKey, windowKey, runID string, now time.Time) (*models.LedgerEntry, bool, error)
	RecordSuccess(entry *models.LedgerEntry, externalRef string) error
	RecordFailure(entry *models.LedgerEntry, errKind models.ErrorKind, msg string) error
	RecordSkipped(entry *models.LedgerEntry, errKind models.ErrorKind) error
	HasSucceeded(kind models.ActionKind, targetKey, windowKey string) (bool, error)
}

// LedgerStore persists activity entries in postgres. Entries are
// append-oriented: the only mutation ever applied is the single
// pending→terminal outcome transition.
type LedgerStore struct {
	db       *gorm.DB
	logger   *zap.Logger
	claimTTL time.Duration
}

func NewLedgerStore(db *gorm.DB, logger *zap.Logger, claimTTL time.Duration) *LedgerStore {
	return &LedgerStore{
		db:       db,
		logger:   logger,
		claimTTL: claimTTL,
	}
}

// Claim atomically records an attempt for (kind, target, window). It returns
// claimed=false when the occurrence already succeeded or another invocation
// holds a fresh pending claim. A pending claim older than the TTL belongs to
// a crashed run; its outcome is unknown, so it is marked abandoned and the
// slot becomes claimable again.
func (s *LedgerStore) Claim(kind models.ActionKind, targetKey, windowKey, runID string, now time.Time) (*models.LedgerEntry, bool, error) {
	var entry *models.LedgerEntry

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var succeeded int64
		if err := tx.Model(&models.LedgerEntry{}).
			Where("action_kind = ? AND target_key = ? AND window_key = ? AND outcome = ?",
				kind, targetKey, windowKey, models.OutcomeSucceeded).
			Count(&succeeded).Error; err != nil {
			return fmt.Errorf("failed to check prior success: %w", err)
		}
		if succeeded > 0 {
			return nil
		}

		var pending models.LedgerEntry
		err := tx.Where("action_kind = ? AND target_key = ? AND window_key = ? AND outcome = ?",
			kind, targetKey, windowKey, models.OutcomePending).
			First(&pending).Error
		switch {
		case err == nil:
			if now.Sub(pending.CreatedAt) < s.claimTTL {
				// Another invocation is mid-flight
				return nil
			}
			if err := tx.Model(&pending).
				Updates(map[string]interface{}{"outcome": models.OutcomeAbandoned, "resolved_at": now}).Error; err != nil {
				return fmt.Errorf("failed to abandon stale claim: %w", err)
			}
			s.logger.Warn("Abandoned stale claim",
				zap.String("action_kind", string(kind)),
				zap.String("target_key", targetKey),
				zap.Uint("entry_id", pending.ID))
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Slot is free
		default:
			return fmt.Errorf("failed to check pending claim: %w", err)
		}

		e := &models.LedgerEntry{
			ActionKind: kind,
			TargetKey:  targetKey,
			WindowKey:  windowKey,
			Outcome:    models.OutcomePending,
			RunID:      runID,
		}
		if err := tx.Create(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the race to a concurrent trigger
				return nil
			}
			return fmt.Errorf("failed to create claim: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

func (s *LedgerStore) RecordSuccess(entry *models.LedgerEntry, externalRef string) error {
	return s.resolve(entry, models.OutcomeSucceeded, models.ErrKindNone, "", externalRef)
}

func (s *LedgerStore) RecordFailure(entry *models.LedgerEntry, errKind models.ErrorKind, msg string) error {
	return s.resolve(entry, models.OutcomeFailed, errKind, msg, "")
}

func (s *LedgerStore) RecordSkipped(entry *models.LedgerEntry, errKind models.ErrorKind) error {
	return s.resolve(entry, models.OutcomeSkipped, errKind, "", "")
}

func (s *LedgerStore) resolve(entry *models.LedgerEntry, outcome models.Outcome, errKind models.ErrorKind, msg, externalRef string) error {
	now := time.Now().UTC()
	result := s.db.Model(&models.LedgerEntry{}).
		Where("id = ? AND outcome = ?", entry.ID, models.OutcomePending).
		Updates(map[string]interface{}{
			"outcome":      outcome,
			"error_kind":   errKind,
			"error":        msg,
			"external_ref": externalRef,
			"topic":        entry.Topic,
			"resolved_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record outcome: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("ledger entry %d is not pending, refusing second transition", entry.ID)
	}
	entry.Outcome = outcome
	entry.ErrorKind = errKind
	entry.Error = msg
	entry.ExternalRef = externalRef
	entry.ResolvedAt = &now
	return nil
}

func (s *LedgerStore) HasSucceeded(kind models.ActionKind, targetKey, windowKey string) (bool, error) {
	var count int64
	err := s.db.Model(&models.LedgerEntry{}).
		Where("action_kind = ? AND target_key = ? AND window_key = ? AND outcome = ?",
			kind, targetKey, windowKey, models.OutcomeSucceeded).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return count > 0, nil
}

// RecentEntries returns the newest entries for the activity API.
func (s *LedgerStore) RecentEntries(limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
