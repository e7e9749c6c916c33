package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/myhibachi/hibachi-backend/pkg/migrate"
)

func TestDispatchSchemaMigrationContainsClaimIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_dispatch_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no dispatch schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE outbox_entries",
		"ix_outbox_entries_claim",
		"next_attempt_at timestamptz NOT NULL DEFAULT now()",
		"CREATE TYPE outbox_status_enum AS ENUM ('pending', 'processing', 'completed', 'failed')",
		"DROP TABLE outbox_entries",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration dir failed validation: %v", err)
	}
}
