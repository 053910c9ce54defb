package service

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/models"
)

// Posts persists submission attempts. Each record moves from pending to a
// terminal status exactly once.
type Posts interface {
	CreatePending(item *models.ContentItem, ledgerEntryID uint) (*models.PostRecord, error)
	MarkSucceeded(rec *models.PostRecord, externalPostID string, at time.Time) error
	MarkFailed(rec *models.PostRecord, msg string) error
}

type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) CreatePending(item *models.ContentItem, ledgerEntryID uint) (*models.PostRecord, error) {
	rec := &models.PostRecord{
		LedgerEntryID: ledgerEntryID,
		Topic:         item.Topic,
		Title:         item.Title,
		Body:          item.Body,
		URL:           item.URL,
		ImagePrompt:   item.ImagePrompt,
		Status:        models.PostStatusPending,
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create post record: %w", err)
	}
	return rec, nil
}

func (s *PostStore) MarkSucceeded(rec *models.PostRecord, externalPostID string, at time.Time) error {
	return s.transition(rec, map[string]interface{}{
		"status":           models.PostStatusSucceeded,
		"external_post_id": externalPostID,
		"submitted_at":     at,
	})
}

func (s *PostStore) MarkFailed(rec *models.PostRecord, msg string) error {
	return s.transition(rec, map[string]interface{}{
		"status": models.PostStatusFailed,
		"error":  msg,
	})
}

func (s *PostStore) transition(rec *models.PostRecord, updates map[string]interface{}) error {
	result := s.db.Model(&models.PostRecord{}).
		Where("id = ? AND status = ?", rec.ID, models.PostStatusPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update post record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("post record %d is not pending, refusing second transition", rec.ID)
	}
	return nil
}
