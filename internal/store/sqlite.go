// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// SQLiteStore is the default span store. WAL mode lets reads proceed
// concurrently with the single writer.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// NewSQLite creates a new SQLite storage backend and runs migrations.
func NewSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode for better concurrency
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// With WAL mode, SQLite can handle multiple readers concurrently
	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		// Spans are the persisted unit. Events ride along as a JSON column
		// so a re-ingested span replaces its events instead of appending
		// duplicates.
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_span_id TEXT,
			execution_id TEXT,
			name TEXT NOT NULL,
			kind TEXT,
			status TEXT,
			status_message TEXT,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			attributes TEXT,
			events TEXT,
			tokens_used INTEGER,
			estimated_cost REAL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_execution_id ON spans(execution_id) WHERE execution_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time)`,

		// Trace summary rows, recomputed from the span set on every append.
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			root_span_id TEXT,
			name TEXT,
			status TEXT,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			duration_ms INTEGER,
			span_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			total_tokens INTEGER DEFAULT 0,
			total_cost REAL DEFAULT 0,
			open INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_start_time ON traces(start_time)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Append upserts a span keyed by (trace_id, span_id) and refreshes the
// trace summary row from the resulting span set.
func (s *SQLiteStore) Append(ctx context.Context, span *telemetry.Span) error {
	if err := checkSpan(span); err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: false, Cause: err}
	}

	attributesJSON, eventsJSON, err := marshalSpanJSON(span)
	if err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: false, Cause: err}
	}

	startTime := span.StartTime.UnixNano()
	var endTime *int64
	if !span.EndTime.IsZero() {
		et := span.EndTime.UnixNano()
		endTime = &et
	}

	query := `
		INSERT INTO spans (trace_id, span_id, parent_span_id, execution_id, name, kind,
			status, status_message, start_time, end_time, attributes, events,
			tokens_used, estimated_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id, span_id) DO UPDATE SET
			parent_span_id = excluded.parent_span_id,
			execution_id = excluded.execution_id,
			name = excluded.name,
			kind = excluded.kind,
			status = excluded.status,
			status_message = excluded.status_message,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			attributes = excluded.attributes,
			events = excluded.events,
			tokens_used = excluded.tokens_used,
			estimated_cost = excluded.estimated_cost
	`

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, query,
		span.TraceID, span.SpanID, nullString(span.ParentSpanID), nullString(span.ExecutionID),
		span.Name, string(span.Kind), string(span.Status), span.StatusMessage,
		startTime, endTime, attributesJSON, eventsJSON,
		span.TokensUsed, span.EstimatedCost, now,
	)
	if err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: sqliteRetryable(err), Cause: err}
	}

	if err := s.updateTraceSummary(ctx, span.TraceID); err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: sqliteRetryable(err), Cause: err}
	}

	return nil
}

// updateTraceSummary recomputes the summary row from the trace's spans.
// Open spans contribute their start time as a provisional end so trace
// duration only widens as spans complete.
func (s *SQLiteStore) updateTraceSummary(ctx context.Context, traceID string) error {
	query := `
		INSERT INTO traces (trace_id, root_span_id, name, status, start_time, end_time,
			duration_ms, span_count, error_count, total_tokens, total_cost, open,
			created_at, updated_at)
		SELECT
			?,
			(SELECT span_id FROM spans WHERE trace_id = ? AND parent_span_id IS NULL
				ORDER BY start_time ASC, span_id ASC LIMIT 1),
			COALESCE(
				(SELECT name FROM spans WHERE trace_id = ? AND parent_span_id IS NULL
					ORDER BY start_time ASC, span_id ASC LIMIT 1),
				(SELECT name FROM spans WHERE trace_id = ?
					ORDER BY start_time ASC, span_id ASC LIMIT 1)
			),
			CASE WHEN SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) > 0
				THEN 'error' ELSE 'ok' END,
			MIN(start_time),
			MAX(COALESCE(end_time, start_time)),
			(MAX(COALESCE(end_time, start_time)) - MIN(start_time)) / 1000000,
			COUNT(*),
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(estimated_cost), 0),
			MAX(CASE WHEN end_time IS NULL THEN 1 ELSE 0 END),
			?,
			?
		FROM spans WHERE trace_id = ?
		ON CONFLICT(trace_id) DO UPDATE SET
			root_span_id = excluded.root_span_id,
			name = excluded.name,
			status = excluded.status,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration_ms = excluded.duration_ms,
			span_count = excluded.span_count,
			error_count = excluded.error_count,
			total_tokens = excluded.total_tokens,
			total_cost = excluded.total_cost,
			open = excluded.open,
			updated_at = excluded.updated_at
	`

	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, query, traceID, traceID, traceID, traceID, now, now, traceID)
	if err != nil {
		return fmt.Errorf("failed to update trace summary: %w", err)
	}

	return nil
}

const spanColumns = `trace_id, span_id, parent_span_id, execution_id, name, kind,
	status, status_message, start_time, end_time, attributes, events,
	tokens_used, estimated_cost`

// GetSpans retrieves all spans for a trace.
func (s *SQLiteStore) GetSpans(ctx context.Context, traceID string) ([]*telemetry.Span, error) {
	query := `SELECT ` + spanColumns + `
		FROM spans WHERE trace_id = ?
		ORDER BY start_time ASC, span_id ASC`

	rows, err := s.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "get_spans", Retryable: sqliteRetryable(err), Cause: err}
	}
	defer rows.Close()

	spans, err := scanSpans(rows)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "get_spans", Retryable: false, Cause: err}
	}
	if len(spans) == 0 {
		return nil, &wefterrors.NotFoundError{Resource: "trace", ID: traceID}
	}

	return spans, nil
}

// ListTraces lists trace summaries matching the filter, newest first.
func (s *SQLiteStore) ListTraces(ctx context.Context, filter Filter) ([]telemetry.TraceSummary, error) {
	query := `SELECT trace_id, COALESCE(name, ''), COALESCE(status, 'ok'), start_time,
		end_time, duration_ms, span_count, total_tokens, total_cost, open
		FROM traces WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += " AND start_time >= ?"
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		query += " AND start_time < ?"
		args = append(args, filter.Until.UnixNano())
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite rejects OFFSET without LIMIT
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "list_traces", Retryable: sqliteRetryable(err), Cause: err}
	}
	defer rows.Close()

	var summaries []telemetry.TraceSummary
	for rows.Next() {
		var sum telemetry.TraceSummary
		var status string
		var startTime int64
		var endTime *int64
		var open int

		err := rows.Scan(&sum.TraceID, &sum.Name, &status, &startTime, &endTime,
			&sum.DurationMS, &sum.SpanCount, &sum.TotalTokens, &sum.TotalCost, &open)
		if err != nil {
			return nil, &wefterrors.StoreError{Op: "list_traces", Retryable: false, Cause: err}
		}

		sum.Status = telemetry.Status(status)
		sum.StartTime = time.Unix(0, startTime)
		if endTime != nil {
			sum.EndTime = time.Unix(0, *endTime)
		}
		sum.Open = open != 0

		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// QuerySpans returns spans matching the filter ordered by start time.
func (s *SQLiteStore) QuerySpans(ctx context.Context, filter Filter) ([]*telemetry.Span, error) {
	query := `SELECT ` + spanColumns + ` FROM spans WHERE 1=1`
	args := []any{}

	if filter.ExecutionID != "" {
		query += " AND execution_id = ?"
		args = append(args, filter.ExecutionID)
	}
	if filter.Since != nil {
		query += " AND start_time >= ?"
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		query += " AND start_time < ?"
		args = append(args, filter.Until.UnixNano())
	}

	query += " ORDER BY start_time ASC, span_id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "query_spans", Retryable: sqliteRetryable(err), Cause: err}
	}
	defer rows.Close()

	spans, err := scanSpans(rows)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "query_spans", Retryable: false, Cause: err}
	}

	return spans, nil
}

// DeleteTracesOlderThan deletes traces that started before the given time.
// Returns the number of traces deleted.
func (s *SQLiteStore) DeleteTracesOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM traces WHERE start_time < ?",
		before.UnixNano(),
	)
	if err != nil {
		return 0, &wefterrors.StoreError{Op: "delete_old", Retryable: sqliteRetryable(err), Cause: err}
	}

	count, _ := result.RowsAffected()

	// Remove spans whose summary row is gone
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM spans WHERE trace_id NOT IN (SELECT trace_id FROM traces)
	`)
	if err != nil {
		return count, &wefterrors.StoreError{Op: "delete_old", Retryable: sqliteRetryable(err), Cause: err}
	}

	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection. Exported for tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// scanSpans decodes span rows produced by a spanColumns SELECT.
func scanSpans(rows *sql.Rows) ([]*telemetry.Span, error) {
	var spans []*telemetry.Span
	for rows.Next() {
		span := &telemetry.Span{}
		var parentID, executionID *string
		var kind, status *string
		var statusMessage *string
		var startTime int64
		var endTime *int64
		var attributesJSON, eventsJSON []byte

		err := rows.Scan(
			&span.TraceID, &span.SpanID, &parentID, &executionID,
			&span.Name, &kind, &status, &statusMessage,
			&startTime, &endTime, &attributesJSON, &eventsJSON,
			&span.TokensUsed, &span.EstimatedCost,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}

		if parentID != nil {
			span.ParentSpanID = *parentID
		}
		if executionID != nil {
			span.ExecutionID = *executionID
		}
		if kind != nil {
			span.Kind = telemetry.SpanKind(*kind)
		}
		if status != nil {
			span.Status = telemetry.Status(*status)
		}
		if statusMessage != nil {
			span.StatusMessage = *statusMessage
		}

		span.StartTime = time.Unix(0, startTime)
		if endTime != nil {
			span.EndTime = time.Unix(0, *endTime)
		}

		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &span.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
			}
		}
		if len(eventsJSON) > 0 {
			if err := json.Unmarshal(eventsJSON, &span.Events); err != nil {
				return nil, fmt.Errorf("failed to unmarshal events: %w", err)
			}
		}

		spans = append(spans, span)
	}

	return spans, rows.Err()
}

// checkSpan validates the minimum a span row needs.
func checkSpan(span *telemetry.Span) error {
	if span == nil {
		return fmt.Errorf("span is nil")
	}
	if span.TraceID == "" {
		return fmt.Errorf("span trace_id is required")
	}
	if span.SpanID == "" {
		return fmt.Errorf("span span_id is required")
	}
	return nil
}

// marshalSpanJSON serializes the span's attribute map and event list.
// Empty collections are stored as NULL.
func marshalSpanJSON(span *telemetry.Span) (attributes, events []byte, err error) {
	if len(span.Attributes) > 0 {
		attributes, err = json.Marshal(span.Attributes)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal attributes: %w", err)
		}
	}
	if len(span.Events) > 0 {
		events, err = json.Marshal(span.Events)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal events: %w", err)
		}
	}
	return attributes, events, nil
}

// nullString maps "" to NULL so partial indexes skip absent values.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sqliteRetryable reports whether an append may succeed on retry. SQLite
// surfaces writer contention as busy/locked errors; everything else is
// treated as permanent.
func sqliteRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
