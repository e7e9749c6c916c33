package outbox

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

const outboxEntriesDDL = `
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
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{UseSQLite: true, DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().Exec(outboxEntriesDDL).Error; err != nil {
		t.Fatalf("create outbox_entries: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "outbox-test",
		Level:       zerolog.ErrorLevel,
		Output:      io.Discard,
	})
}

func seedEntry(t *testing.T, client *db.Client, eventType enums.OutboxEventType, payload string, mutate func(*models.OutboxEntry)) *models.OutboxEntry {
	t.Helper()
	entry := &models.OutboxEntry{
		ID:            uuid.New(),
		EventType:     eventType,
		Payload:       []byte(payload),
		Status:        enums.OutboxStatusPending,
		NextAttemptAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(entry)
	}
	if err := client.DB().Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entry
}

func fetchEntry(t *testing.T, client *db.Client, id uuid.UUID) models.OutboxEntry {
	t.Helper()
	var entry models.OutboxEntry
	if err := client.DB().First(&entry, "id = ?", id.String()).Error; err != nil {
		t.Fatalf("fetch entry %s: %v", id, err)
	}
	return entry
}
