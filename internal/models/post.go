package models

import (
	"gorm.io/gorm"
	"time"
)

const (
	PostStatusPending   = "pending"
	PostStatusSucceeded = "succeeded"
	PostStatusFailed    = "failed"
)

// PostRecord ties a generated content item to its submission attempt. It is
// created pending before the external call and moves to succeeded or failed
// exactly once; the row is never edited afterwards.
type PostRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	LedgerEntryID  uint           `gorm:"not null;index" json:"ledger_entry_id"`
	Topic          string         `gorm:"size:255" json:"topic"`
	Title          string         `gorm:"size:500" json:"title"`
	Body           string         `gorm:"type:text" json:"body"`
	URL            string         `gorm:"size:1024" json:"url"`
	ImagePrompt    string         `gorm:"type:text" json:"image_prompt"`
	ExternalPostID string         `gorm:"size:255;index" json:"external_post_id"`
	Status         string         `gorm:"size:32;default:'pending'" json:"status"`
	Error          string         `gorm:"type:text" json:"error"`
	SubmittedAt    *time.Time     `json:"submitted_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	LedgerEntry LedgerEntry `gorm:"foreignKey:LedgerEntryID" json:"ledger_entry"`
}
