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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// PostgresStore is the Postgres span store, for deployments where several
// collectors share one database. Times are stored as unix nanoseconds so
// spans round-trip exactly; attributes and events are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig contains Postgres storage configuration.
type PostgresConfig struct {
	// ConnectionString is the pgx connection string or URL.
	ConnectionString string

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int

	// MinConns keeps that many connections warm. Zero keeps the default.
	MinConns int
}

// NewPostgres creates a Postgres storage backend and runs migrations.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_span_id TEXT,
			execution_id TEXT,
			name TEXT NOT NULL,
			kind TEXT,
			status TEXT,
			status_message TEXT,
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			attributes JSONB,
			events JSONB,
			tokens_used BIGINT,
			estimated_cost DOUBLE PRECISION,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_execution_id ON spans(execution_id) WHERE execution_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time)`,

		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			root_span_id TEXT,
			name TEXT,
			status TEXT,
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			duration_ms BIGINT,
			span_count BIGINT DEFAULT 0,
			error_count BIGINT DEFAULT 0,
			total_tokens BIGINT DEFAULT 0,
			total_cost DOUBLE PRECISION DEFAULT 0,
			open BOOLEAN DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_start_time ON traces(start_time)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Append upserts a span keyed by (trace_id, span_id) and refreshes the
// trace summary row from the resulting span set.
func (s *PostgresStore) Append(ctx context.Context, span *telemetry.Span) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (trace_id, span_id) DO UPDATE SET
			parent_span_id = EXCLUDED.parent_span_id,
			execution_id = EXCLUDED.execution_id,
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			status_message = EXCLUDED.status_message,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			attributes = EXCLUDED.attributes,
			events = EXCLUDED.events,
			tokens_used = EXCLUDED.tokens_used,
			estimated_cost = EXCLUDED.estimated_cost
	`

	now := time.Now().UnixNano()
	_, err = s.pool.Exec(ctx, query,
		span.TraceID, span.SpanID, nullString(span.ParentSpanID), nullString(span.ExecutionID),
		span.Name, string(span.Kind), string(span.Status), span.StatusMessage,
		startTime, endTime, attributesJSON, eventsJSON,
		span.TokensUsed, span.EstimatedCost, now,
	)
	if err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: pgRetryable(err), Cause: err}
	}

	if err := s.updateTraceSummary(ctx, span.TraceID); err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: pgRetryable(err), Cause: err}
	}

	return nil
}

// updateTraceSummary recomputes the summary row from the trace's spans.
func (s *PostgresStore) updateTraceSummary(ctx context.Context, traceID string) error {
	query := `
		INSERT INTO traces (trace_id, root_span_id, name, status, start_time, end_time,
			duration_ms, span_count, error_count, total_tokens, total_cost, open,
			created_at, updated_at)
		SELECT
			$1,
			(SELECT span_id FROM spans WHERE trace_id = $1 AND parent_span_id IS NULL
				ORDER BY start_time ASC, span_id ASC LIMIT 1),
			COALESCE(
				(SELECT name FROM spans WHERE trace_id = $1 AND parent_span_id IS NULL
					ORDER BY start_time ASC, span_id ASC LIMIT 1),
				(SELECT name FROM spans WHERE trace_id = $1
					ORDER BY start_time ASC, span_id ASC LIMIT 1)
			),
			CASE WHEN COUNT(*) FILTER (WHERE status = 'error') > 0
				THEN 'error' ELSE 'ok' END,
			MIN(start_time),
			MAX(COALESCE(end_time, start_time)),
			(MAX(COALESCE(end_time, start_time)) - MIN(start_time)) / 1000000,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(estimated_cost), 0),
			BOOL_OR(end_time IS NULL),
			$2,
			$2
		FROM spans WHERE trace_id = $1
		ON CONFLICT (trace_id) DO UPDATE SET
			root_span_id = EXCLUDED.root_span_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms,
			span_count = EXCLUDED.span_count,
			error_count = EXCLUDED.error_count,
			total_tokens = EXCLUDED.total_tokens,
			total_cost = EXCLUDED.total_cost,
			open = EXCLUDED.open,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, traceID, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to update trace summary: %w", err)
	}

	return nil
}

// GetSpans retrieves all spans for a trace.
func (s *PostgresStore) GetSpans(ctx context.Context, traceID string) ([]*telemetry.Span, error) {
	query := `SELECT ` + spanColumns + `
		FROM spans WHERE trace_id = $1
		ORDER BY start_time ASC, span_id ASC`

	rows, err := s.pool.Query(ctx, query, traceID)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "get_spans", Retryable: pgRetryable(err), Cause: err}
	}
	defer rows.Close()

	spans, err := scanPgSpans(rows)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "get_spans", Retryable: false, Cause: err}
	}
	if len(spans) == 0 {
		return nil, &wefterrors.NotFoundError{Resource: "trace", ID: traceID}
	}

	return spans, nil
}

// ListTraces lists trace summaries matching the filter, newest first.
func (s *PostgresStore) ListTraces(ctx context.Context, filter Filter) ([]telemetry.TraceSummary, error) {
	query := `SELECT trace_id, COALESCE(name, ''), COALESCE(status, 'ok'), start_time,
		end_time, duration_ms, span_count, total_tokens, total_cost, open
		FROM traces WHERE TRUE`
	args := []any{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UnixNano())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, filter.Until.UnixNano())
		query += fmt.Sprintf(" AND start_time < $%d", len(args))
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "list_traces", Retryable: pgRetryable(err), Cause: err}
	}
	defer rows.Close()

	var summaries []telemetry.TraceSummary
	for rows.Next() {
		var sum telemetry.TraceSummary
		var status string
		var startTime int64
		var endTime *int64

		err := rows.Scan(&sum.TraceID, &sum.Name, &status, &startTime, &endTime,
			&sum.DurationMS, &sum.SpanCount, &sum.TotalTokens, &sum.TotalCost, &sum.Open)
		if err != nil {
			return nil, &wefterrors.StoreError{Op: "list_traces", Retryable: false, Cause: err}
		}

		sum.Status = telemetry.Status(status)
		sum.StartTime = time.Unix(0, startTime)
		if endTime != nil {
			sum.EndTime = time.Unix(0, *endTime)
		}

		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// QuerySpans returns spans matching the filter ordered by start time.
func (s *PostgresStore) QuerySpans(ctx context.Context, filter Filter) ([]*telemetry.Span, error) {
	query := `SELECT ` + spanColumns + ` FROM spans WHERE TRUE`
	args := []any{}

	if filter.ExecutionID != "" {
		args = append(args, filter.ExecutionID)
		query += fmt.Sprintf(" AND execution_id = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UnixNano())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, filter.Until.UnixNano())
		query += fmt.Sprintf(" AND start_time < $%d", len(args))
	}

	query += " ORDER BY start_time ASC, span_id ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "query_spans", Retryable: pgRetryable(err), Cause: err}
	}
	defer rows.Close()

	spans, err := scanPgSpans(rows)
	if err != nil {
		return nil, &wefterrors.StoreError{Op: "query_spans", Retryable: false, Cause: err}
	}

	return spans, nil
}

// DeleteTracesOlderThan deletes traces that started before the given time.
func (s *PostgresStore) DeleteTracesOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM traces WHERE start_time < $1",
		before.UnixNano(),
	)
	if err != nil {
		return 0, &wefterrors.StoreError{Op: "delete_old", Retryable: pgRetryable(err), Cause: err}
	}

	count := tag.RowsAffected()

	_, err = s.pool.Exec(ctx, `
		DELETE FROM spans WHERE trace_id NOT IN (SELECT trace_id FROM traces)
	`)
	if err != nil {
		return count, &wefterrors.StoreError{Op: "delete_old", Retryable: pgRetryable(err), Cause: err}
	}

	return count, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying connection pool. Exported for tests.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// scanPgSpans decodes span rows produced by a spanColumns SELECT.
func scanPgSpans(rows pgx.Rows) ([]*telemetry.Span, error) {
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

// pgRetryable reports whether an operation may succeed on retry.
func pgRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
