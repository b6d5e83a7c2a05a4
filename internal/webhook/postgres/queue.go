package postgres

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/collabary/payments/internal"
	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts the event, relying on the unique event_id index for
// deduplication. A conflicting insert affects zero rows and surfaces as
// ErrDuplicateEvent so the receiver can acknowledge silently.
func (r *QueueRepository) Enqueue(event *webhookevent.Event) error {
	event.Status = webhookevent.StatusPending
	event.NextAttemptAt = time.Now().UTC()

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return fmt.Errorf("failed to enqueue webhook event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrDuplicateEvent
	}
	return nil
}

// Dequeue claims up to limit ready events for processing. SKIP LOCKED
// lets concurrent dispatchers divide the backlog without blocking on
// each other's claims.
func (r *QueueRepository) Dequeue(limit int) ([]*webhookevent.Event, error) {
	var events []*webhookevent.Event
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", webhookevent.StatusPending, time.Now().UTC()).
			Order("id ASC").
			Limit(limit).
			Find(&events).Error; err != nil {
			return fmt.Errorf("failed to dequeue webhook events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, event := range events {
			ids = append(ids, event.ID)
		}
		if err := tx.Model(&webhookevent.Event{}).
			Where("id IN ?", ids).
			Update("status", webhookevent.StatusProcessing).Error; err != nil {
			return fmt.Errorf("failed to claim webhook events: %w", err)
		}
		for _, event := range events {
			event.Status = webhookevent.StatusProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *QueueRepository) MarkProcessed(id int64) error {
	return r.update(id, map[string]interface{}{
		"status": webhookevent.StatusProcessed,
	})
}

// Retry returns the event to the pending pool with its backoff deadline.
func (r *QueueRepository) Retry(id int64, lastError string, nextAttemptAt time.Time) error {
	return r.update(id, map[string]interface{}{
		"status":          webhookevent.StatusPending,
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      lastError,
		"next_attempt_at": nextAttemptAt,
	})
}

func (r *QueueRepository) MarkDead(id int64, lastError string) error {
	return r.update(id, map[string]interface{}{
		"status":     webhookevent.StatusDead,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastError,
	})
}

// ReclaimStale moves claims stuck in processing back to pending. A claim
// untouched for longer than the cutoff belongs to a worker that died
// between Dequeue and the terminal mark; without this the row would stay
// claimed forever.
func (r *QueueRepository) ReclaimStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result := r.db.Model(&webhookevent.Event{}).
		Where("status = ? AND updated_at < ?", webhookevent.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":          webhookevent.StatusPending,
			"next_attempt_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale webhook events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *QueueRepository) update(id int64, updates map[string]interface{}) error {
	result := r.db.Model(&webhookevent.Event{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update webhook event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event %d not found", id)
	}
	return nil
}
