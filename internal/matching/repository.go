package matching

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// Repository loads match candidates and persists confirmation state. Amount
// filtering happens in Go with exact decimal arithmetic; SQL narrows by
// method, status, and time only.
type Repository struct{}

// NewRepository returns a matching repository.
func NewRepository() *Repository {
	return &Repository{}
}

var openStatuses = []enums.PaymentStatus{
	enums.PaymentStatusPending,
	enums.PaymentStatusProcessing,
}

// FindOpenCandidates returns open payments of the method created inside
// [from, to], bookings preloaded, ordered for deterministic tie-breaking.
func (r *Repository) FindOpenCandidates(tx *gorm.DB, method enums.PaymentMethod, from, to time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := tx.Model(&models.Payment{}).
		Preload("Booking").
		Where("payment_method = ?", method).
		Where("status IN ?", openStatuses).
		Where("created_at >= ?", from).
		Where("created_at <= ?", to).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("loading match candidates: %w", err)
	}
	return payments, nil
}

// GetPaymentForUpdate reloads a payment inside the caller's transaction. On
// Postgres the row is locked so concurrent confirmations serialize.
func (r *Repository) GetPaymentForUpdate(tx *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	query := tx.Preload("Booking")
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var payment models.Payment
	if err := query.First(&payment, "id = ?", id.String()).Error; err != nil {
		return nil, fmt.Errorf("loading payment %s: %w", id, err)
	}
	return &payment, nil
}

// SavePayment persists the mutated payment row.
func (r *Repository) SavePayment(tx *gorm.DB, payment *models.Payment) error {
	if err := tx.Omit(clause.Associations).Save(payment).Error; err != nil {
		return fmt.Errorf("saving payment %s: %w", payment.ID, err)
	}
	return nil
}

// UpdateBookingPaymentStatus moves the linked booking's payment status.
func (r *Repository) UpdateBookingPaymentStatus(tx *gorm.DB, bookingID uuid.UUID, status string) error {
	err := tx.Model(&models.Booking{}).
		Where("id = ?", bookingID.String()).
		Update("payment_status", status).Error
	if err != nil {
		return fmt.Errorf("updating booking %s payment status: %w", bookingID, err)
	}
	return nil
}

// InsertMatchLog records one matching decision for reconciliation audits.
func (r *Repository) InsertMatchLog(tx *gorm.DB, log *models.PaymentMatchLog) error {
	if err := tx.Create(log).Error; err != nil {
		return fmt.Errorf("inserting match log: %w", err)
	}
	return nil
}
