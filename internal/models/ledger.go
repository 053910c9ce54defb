package models

import (
	"time"
)

// ActionKind categorizes outbound effects sharing one rate budget.
type ActionKind string

const (
	ActionPost       ActionKind = "post"
	ActionConnection ActionKind = "connection"
	ActionEngagement ActionKind = "engagement"
)

// Outcome is the lifecycle state of a ledger entry. An entry is created as
// pending and transitions to exactly one terminal outcome.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAbandoned Outcome = "abandoned"
)

// ErrorKind tags failed entries so the next trigger can tell retryable
// failures from fatal ones.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindGeneration ErrorKind = "generation"
	ErrKindAuth       ErrorKind = "auth"
	ErrKindTransient  ErrorKind = "transient"
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindInternal   ErrorKind = "internal"
)

// WindowAllTime is the window key for actions deduplicated forever rather
// than per calendar occurrence (e.g. commenting on a network post).
const WindowAllTime = "all-time"

// LedgerEntry is the durable witness for every attempted action. The claim
// index over (action_kind, target_key, window_key) restricted to pending and
// succeeded rows is what prevents double-posting when triggers overlap; see
// the index DDL in service.NewDatabase.
type LedgerEntry struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ActionKind  ActionKind `gorm:"size:32;not null;index:idx_ledger_lookup,priority:1" json:"action_kind"`
	TargetKey   string     `gorm:"size:255;not null;index:idx_ledger_lookup,priority:2" json:"target_key"`
	WindowKey   string     `gorm:"size:64;not null;index:idx_ledger_lookup,priority:3" json:"window_key"`
	Outcome     Outcome    `gorm:"size:32;not null;default:'pending';index" json:"outcome"`
	ErrorKind   ErrorKind  `gorm:"size:32" json:"error_kind"`
	Error       string     `gorm:"type:text" json:"error"`
	ExternalRef string     `gorm:"size:255" json:"external_ref"`
	Topic       string     `gorm:"size:255" json:"topic"`
	RunID       string     `gorm:"size:64;index" json:"run_id"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
