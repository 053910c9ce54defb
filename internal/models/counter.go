package models

import "time"

// RateCounter holds the admitted-action count for one (kind, UTC day) pair
// plus the timestamp of the last admitted action. The pair is the primary
// key so independent invocations share one budget.
type RateCounter struct {
	ActionKind    ActionKind `gorm:"size:32;primaryKey" json:"action_kind"`
	Day           string     `gorm:"size:10;primaryKey" json:"day"`
	Count         int        `gorm:"not null;default:0" json:"count"`
	LastAdmitted  *time.Time `json:"last_admitted"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
