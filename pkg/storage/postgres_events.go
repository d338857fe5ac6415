package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// PostgresConfig describes the execution event database.
type PostgresConfig struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Validate checks the connection settings.
func (c PostgresConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%w: postgres url is required", domain.ErrConfigInvalid)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("%w: connection pool sizes must be non-negative", domain.ErrConfigInvalid)
	}
	return nil
}

// OpenPostgres opens a pgx-backed database handle and pings it.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// QueryRower is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const executionEventsSchema = `CREATE TABLE IF NOT EXISTS tool_execution_events (
	event_id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	capability_id TEXT NOT NULL,
	action TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	success BOOLEAN NOT NULL,
	failure_code TEXT,
	authority TEXT,
	snapshot_id TEXT,
	payload JSONB NOT NULL
)`

// EnsureExecutionEventSchema creates the event table when missing.
func EnsureExecutionEventSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, executionEventsSchema); err != nil {
		return fmt.Errorf("create execution event table: %w", err)
	}
	return nil
}

// ValidateExecutionEvent checks the fields required for persistence.
func ValidateExecutionEvent(event domain.ExecutionEvent) error {
	if strings.TrimSpace(event.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(event.CapabilityID) == "" {
		return errors.New("CapabilityID is required")
	}
	if event.Timestamp.IsZero() {
		return errors.New("Timestamp is required")
	}
	return nil
}

// InsertExecutionEvent writes one event and returns its row id.
func InsertExecutionEvent(ctx context.Context, q QueryRower, event domain.ExecutionEvent) (int64, error) {
	if q == nil {
		return 0, domain.ErrEventSinkUnavailable
	}
	if err := ValidateExecutionEvent(event); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal execution event: %w", err)
	}

	var failureCode sql.NullString
	if event.FailureCode != "" {
		failureCode = sql.NullString{String: event.FailureCode, Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO tool_execution_events (
			run_id,
			capability_id,
			action,
			occurred_at,
			duration_ms,
			success,
			failure_code,
			authority,
			snapshot_id,
			payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING event_id`,
		event.RunID,
		event.CapabilityID,
		event.Action,
		event.Timestamp.UTC(),
		event.DurationMS,
		event.Success,
		failureCode,
		event.Authority,
		event.SnapshotID,
		payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert execution event: %w", err)
	}
	return id, nil
}

// PostgresEventSink records execution events in Postgres.
type PostgresEventSink struct {
	db *sql.DB
}

// NewPostgresEventSink wraps an open database handle.
func NewPostgresEventSink(db *sql.DB) *PostgresEventSink {
	return &PostgresEventSink{db: db}
}

// Record implements domain.EventSink.
func (s *PostgresEventSink) Record(ctx context.Context, event domain.ExecutionEvent) error {
	if s == nil || s.db == nil {
		return domain.ErrEventSinkUnavailable
	}
	_, err := InsertExecutionEvent(ctx, s.db, event)
	return err
}

// Close closes the database handle.
func (s *PostgresEventSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
