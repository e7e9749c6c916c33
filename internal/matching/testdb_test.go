package matching

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

const matchingDDL = `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  customer_name TEXT NOT NULL,
  customer_phone TEXT,
  customer_email TEXT,
  event_date DATETIME,
  guest_count INTEGER DEFAULT 0,
  dietary_notes TEXT,
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  amount_paid NUMERIC NOT NULL DEFAULT 0,
  payment_method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  provider TEXT,
  external_txn_id TEXT,
  confirmation_meta TEXT,
  confirmed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_external_txn
  ON payments (external_txn_id) WHERE external_txn_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS payment_match_logs (
  id TEXT PRIMARY KEY,
  payment_id TEXT,
  provider TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  received_at DATETIME NOT NULL,
  outcome TEXT NOT NULL,
  tier TEXT,
  score INTEGER DEFAULT 0,
  reason TEXT,
  sender_info TEXT,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_entries (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at DATETIME NOT NULL,
  last_error TEXT,
  created_at DATETIME,
  completed_at DATETIME
);`

func newTestDB(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:matching_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{UseSQLite: true, DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().Exec(matchingDDL).Error; err != nil {
		t.Fatalf("create tables: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestService(t *testing.T, client *db.Client) *Service {
	t.Helper()
	outboxSvc, err := outbox.NewService(outbox.ServiceParams{Repo: outbox.NewRepository()})
	if err != nil {
		t.Fatalf("new outbox service: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "matching-test",
		Level:       zerolog.ErrorLevel,
		Output:      io.Discard,
	})
	svc, err := NewService(ServiceParams{
		DB:         client,
		Repo:       NewRepository(),
		Outbox:     outboxSvc,
		Logger:     logg,
		Metrics:    nil,
		Config:     testMatchingConfig(),
		AdminEmail: "ops@myhibachi.com",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		AmountTolerance:      1.00,
		FuzzyAmountTolerance: 60.00,
		Window:               24 * time.Hour,
		FuzzyWindow:          72 * time.Hour,
		PhoneWindow:          7 * 24 * time.Hour,
		MinScore:             50,
		DepositPercent:       50,
	}
}

type bookingSpec struct {
	name     string
	phone    string
	email    string
	metadata string
}

func seedBooking(t *testing.T, client *db.Client, spec bookingSpec) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:            uuid.New(),
		CustomerName:  spec.name,
		CustomerPhone: spec.phone,
		CustomerEmail: spec.email,
		PaymentStatus: models.BookingPaymentUnpaid,
	}
	if spec.metadata != "" {
		booking.Metadata = []byte(spec.metadata)
	}
	if err := client.DB().Create(booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}

func seedPayment(t *testing.T, client *db.Client, booking *models.Booking, total string, method enums.PaymentMethod, createdAt time.Time) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		TotalAmount:   decimal.RequireFromString(total),
		AmountPaid:    decimal.Zero,
		PaymentMethod: method,
		Status:        enums.PaymentStatusPending,
		CreatedAt:     createdAt,
	}
	if err := client.DB().Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}
