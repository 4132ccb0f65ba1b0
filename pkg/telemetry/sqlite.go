// Copyright 2025 Tom Barlow
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

package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink stores spans in a local SQLite database instead of sending
// them to a collector. It exists for offline development and debugging;
// the at-most-once policy is unchanged, a failed insert still drops the
// span.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (and migrates) the database at path. The special
// path ":memory:" creates an in-memory database.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode lets concurrent dispatcher goroutines insert while a
	// debugging session reads.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own private
		// in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sink := &SQLiteSink{db: db}
	if err := sink.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_span_id TEXT,
			config_key TEXT,
			session_id TEXT,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			model TEXT,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			status TEXT NOT NULL,
			attributes TEXT,
			prompt_key TEXT,
			prompt_version TEXT,
			prompt_ab_test_key TEXT,
			prompt_variant_index INTEGER,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_session_id ON spans(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

// Send implements Sink.
func (s *SQLiteSink) Send(ctx context.Context, rec *Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	var variantIndex any
	if rec.VariantIndex != nil {
		variantIndex = *rec.VariantIndex
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO spans (
			trace_id, span_id, parent_span_id, config_key, session_id,
			name, kind, model, start_time, end_time, duration_ms, status,
			attributes, prompt_key, prompt_version, prompt_ab_test_key,
			prompt_variant_index, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.SpanID, rec.ParentSpanID, rec.ConfigKey, rec.SessionID,
		rec.Name, string(rec.Kind), rec.Model,
		timeString(rec.StartTime), timeString(rec.EndTime),
		rec.DurationMs, string(rec.Status),
		string(attrs), rec.PromptKey, rec.PromptVersion, rec.ABTestKey,
		variantIndex, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store span: %w", err)
	}
	return nil
}

// SpansForTrace returns all stored spans for a trace, oldest first.
func (s *SQLiteSink) SpansForTrace(ctx context.Context, traceID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, span_id, parent_span_id, config_key, session_id,
			name, kind, model, start_time, end_time, duration_ms, status,
			attributes, prompt_key, prompt_version, prompt_ab_test_key,
			prompt_variant_index
		FROM spans WHERE trace_id = ? ORDER BY start_time ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec          Record
			kind, status string
			startTime    string
			endTime      string
			attrs        sql.NullString
			variantIndex sql.NullInt64
		)
		if err := rows.Scan(
			&rec.TraceID, &rec.SpanID, &rec.ParentSpanID, &rec.ConfigKey, &rec.SessionID,
			&rec.Name, &kind, &rec.Model, &startTime, &endTime,
			&rec.DurationMs, &status, &attrs,
			&rec.PromptKey, &rec.PromptVersion, &rec.ABTestKey, &variantIndex,
		); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}

		rec.Kind = Kind(kind)
		rec.Status = Status(status)
		if rec.StartTime, err = time.Parse(time.RFC3339Nano, startTime); err != nil {
			return nil, fmt.Errorf("failed to parse start_time: %w", err)
		}
		if rec.EndTime, err = time.Parse(time.RFC3339Nano, endTime); err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode attributes: %w", err)
			}
		}
		if variantIndex.Valid {
			idx := int(variantIndex.Int64)
			rec.VariantIndex = &idx
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
