package outbox

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// Repository owns all outbox row mutations. Every method takes the caller's
// transaction so claim and terminal transitions stay atomic with whatever
// business writes accompany them.
type Repository struct{}

// NewRepository returns an outbox repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores a new pending entry inside the caller's transaction.
func (r *Repository) Insert(tx *gorm.DB, entry *models.OutboxEntry) error {
	if entry.Status == "" {
		entry.Status = enums.OutboxStatusPending
	}
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = time.Now().UTC()
	}
	return tx.Create(entry).Error
}

// ClaimBatch selects up to limit eligible entries for the given event types
// and flips them to processing in the same transaction. Eligible means
// pending, due, and under the retry ceiling. Rows are ordered oldest first so
// delivery roughly follows creation order. On Postgres the select takes
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row.
func (r *Repository) ClaimBatch(tx *gorm.DB, eventTypes []enums.OutboxEventType, limit, maxRetries int, now time.Time) ([]models.OutboxEntry, error) {
	query := tx.Model(&models.OutboxEntry{}).
		Where("status = ?", enums.OutboxStatusPending).
		Where("event_type IN ?", eventTypes).
		Where("attempts < ?", maxRetries).
		Where("next_attempt_at <= ?", now).
		Order("created_at ASC, id ASC").
		Limit(limit)

	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{
			Strength: clause.LockingStrengthUpdate,
			Options:  clause.LockingOptionsSkipLocked,
		})
	}

	var entries []models.OutboxEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("claiming outbox batch: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID.String())
	}
	if err := tx.Model(&models.OutboxEntry{}).
		Where("id IN ?", ids).
		Update("status", enums.OutboxStatusProcessing).Error; err != nil {
		return nil, fmt.Errorf("marking batch processing: %w", err)
	}
	for i := range entries {
		entries[i].Status = enums.OutboxStatusProcessing
	}
	return entries, nil
}

// MarkCompleted transitions a claimed entry to completed. The status guard
// keeps terminal rows immutable even if a stale worker reports late.
func (r *Repository) MarkCompleted(tx *gorm.DB, entry *models.OutboxEntry, now time.Time) error {
	result := tx.Model(&models.OutboxEntry{}).
		Where("id = ?", entry.ID).
		Where("status = ?", enums.OutboxStatusProcessing).
		Updates(map[string]any{
			"status":       enums.OutboxStatusCompleted,
			"attempts":     entry.Attempts + 1,
			"completed_at": now,
			"last_error":   nil,
		})
	if result.Error != nil {
		return fmt.Errorf("completing entry %s: %w", entry.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry %s not in processing state", entry.ID)
	}
	return nil
}

// MarkRetry returns a failed entry to pending with its next attempt scheduled.
func (r *Repository) MarkRetry(tx *gorm.DB, entry *models.OutboxEntry, decision Decision) error {
	result := tx.Model(&models.OutboxEntry{}).
		Where("id = ?", entry.ID).
		Where("status = ?", enums.OutboxStatusProcessing).
		Updates(map[string]any{
			"status":          enums.OutboxStatusPending,
			"attempts":        decision.Attempts,
			"next_attempt_at": decision.NextAttemptAt,
			"last_error":      decision.LastError,
		})
	if result.Error != nil {
		return fmt.Errorf("scheduling retry for entry %s: %w", entry.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry %s not in processing state", entry.ID)
	}
	return nil
}

// MarkFailed transitions an entry to its terminal failed state. The timestamp
// records when the entry left the retry loop, same as a completion does.
func (r *Repository) MarkFailed(tx *gorm.DB, entry *models.OutboxEntry, decision Decision, now time.Time) error {
	result := tx.Model(&models.OutboxEntry{}).
		Where("id = ?", entry.ID).
		Where("status = ?", enums.OutboxStatusProcessing).
		Updates(map[string]any{
			"status":       enums.OutboxStatusFailed,
			"attempts":     decision.Attempts,
			"completed_at": now,
			"last_error":   decision.LastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failing entry %s: %w", entry.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry %s not in processing state", entry.ID)
	}
	return nil
}

// RequeueStuckProcessing returns rows stuck in processing (worker crashed
// between claim and report) to pending so the next poll picks them up.
// Attempts are not incremented; the crash consumed no delivery attempt we can
// distinguish, so at-least-once wins.
func (r *Repository) RequeueStuckProcessing(tx *gorm.DB, stuckAfter time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-stuckAfter)
	result := tx.Model(&models.OutboxEntry{}).
		Where("status = ?", enums.OutboxStatusProcessing).
		Where("next_attempt_at <= ?", cutoff).
		Updates(map[string]any{
			"status":          enums.OutboxStatusPending,
			"next_attempt_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("requeueing stuck entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteCompletedBefore prunes completed rows older than the cutoff. Failed
// rows are kept for manual inspection.
func (r *Repository) DeleteCompletedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	result := tx.
		Where("status = ?", enums.OutboxStatusCompleted).
		Where("completed_at < ?", cutoff).
		Delete(&models.OutboxEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning completed entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
