package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
)

func NewPostgresDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// BackfillEvents replays existing rows through fn so the sketches start
// warm instead of empty. Backfilled rows carry no latency signal; Latency
// stays zero and callers should keep them out of the latency digest.
func BackfillEvents(ctx context.Context, db *sql.DB, cfg config.SourceConfig, fn func(model.Event)) (int, error) {
	for _, ident := range []string{cfg.Table, cfg.KeyColumn, cfg.ValueColumn} {
		if err := validateIdentifier(ident); err != nil {
			return 0, fmt.Errorf("invalid backfill identifier: %w", err)
		}
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s", cfg.KeyColumn, cfg.ValueColumn, cfg.Table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("querying backfill rows: %w", err)
	}
	defer rows.Close()

	count := 0
	now := time.Now().UTC()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return count, fmt.Errorf("scanning backfill row: %w", err)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue // non-numeric rows carry no value signal
		}
		fn(model.Event{Timestamp: now, Key: key, Value: value})
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterating backfill rows: %w", err)
	}

	return count, nil
}

func validateIdentifier(ident string) error {
	if ident == "" {
		return fmt.Errorf("identifier is empty")
	}
	// Allow only alphanumeric characters, underscores, and dots (for schema.table)
	for _, r := range ident {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '.') {
			return fmt.Errorf("invalid character in identifier: %c", r)
		}
	}
	return nil
}
