package tests

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/gatepass/server/internal/db"
	"github.com/stretchr/testify/require"
)

// discardLogger keeps test output readable; set TEST_LOG=1 to see component logs.
func discardLogger() *slog.Logger {
	if os.Getenv("TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestDB connects to DATABASE_URL and applies migrations. The test is skipped
// when DATABASE_URL is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, databaseURL, discardLogger())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database, discardLogger()), "migrations must run successfully")
	require.NoError(t, TruncateCheckinTables(ctx, database), "truncate check-in tables")
	return database
}

// TruncateCheckinTables truncates check-in tables for a clean test state.
func TruncateCheckinTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE credentials, attendees, events RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate check-in tables: %w", err)
	}
	return nil
}

// seedAttendee inserts an event (if missing) and an attendee with a fixed id.
func seedAttendee(t *testing.T, database *sql.DB, id, eventID int64, code string) {
	t.Helper()
	ctx := context.Background()
	_, err := database.ExecContext(ctx, `
		INSERT INTO events (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, eventID, fmt.Sprintf("Event %d", eventID))
	require.NoError(t, err)

	_, err = database.ExecContext(ctx, `
		INSERT INTO attendees (id, event_id, registration_code, name, email)
		VALUES ($1, $2, $3, $4, $5)
	`, id, eventID, code, "Ada Lovelace", "ada@example.com")
	require.NoError(t, err)
}
