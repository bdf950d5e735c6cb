package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/routecodex/routecodex/internal/snapshot"
)

// InsertSnapshot appends rec as a new row in the snapshots table. Headers
// is stored as a JSON object so it round-trips without a join table.
func (s *Store) InsertSnapshot(rec snapshot.Record) (int64, error) {
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return 0, fmt.Errorf("store: marshal snapshot headers: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	result, err := s.writer.Exec(
		`INSERT INTO snapshots
			(phase, request_id, client_request_id, provider_key, endpoint, url, headers, body, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Phase), rec.RequestID, rec.ClientRequestID, rec.ProviderKey,
		rec.Endpoint, rec.URL, string(headers), rec.Body, rec.Err,
		ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert snapshot: %w", err)
	}
	return result.LastInsertId()
}

// SnapshotRow is a single persisted snapshot, decoded back from storage.
type SnapshotRow struct {
	ID              int64
	Phase           string
	RequestID       string
	ClientRequestID string
	ProviderKey     string
	Endpoint        string
	URL             string
	Headers         map[string]string
	Body            string
	Err             string
	Timestamp       time.Time
}

// ListSnapshotsByRequestID returns every row recorded for requestID, in
// the order they were captured.
func (s *Store) ListSnapshotsByRequestID(requestID string) ([]SnapshotRow, error) {
	rows, err := s.reader.Query(
		`SELECT id, phase, request_id, client_request_id, provider_key, endpoint, url, headers, body, error, timestamp
		 FROM snapshots WHERE request_id = ? ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			row       SnapshotRow
			headers   string
			timestamp string
		)
		if err := rows.Scan(&row.ID, &row.Phase, &row.RequestID, &row.ClientRequestID,
			&row.ProviderKey, &row.Endpoint, &row.URL, &headers, &row.Body, &row.Err, &timestamp); err != nil {
			return nil, fmt.Errorf("store: scan snapshot row: %w", err)
		}
		if headers != "" {
			if err := json.Unmarshal([]byte(headers), &row.Headers); err != nil {
				return nil, fmt.Errorf("store: unmarshal snapshot headers: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			row.Timestamp = ts
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountSnapshots returns the total number of rows in the snapshots table.
func (s *Store) CountSnapshots() (int64, error) {
	var n int64
	err := s.reader.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count snapshots: %w", err)
	}
	return n, nil
}

// SnapshotSink adapts a Store to snapshot.Sink, persisting every record
// it receives as a row in the snapshots table. Per the Sink contract it
// never blocks the caller's goroutine (snapshot.Runner already dispatches
// Write on its own goroutine) and never surfaces a failure to the
// pipeline; write errors are logged and dropped.
type SnapshotSink struct {
	Store *Store
}

// Write implements snapshot.Sink.
func (s SnapshotSink) Write(rec snapshot.Record) {
	if s.Store == nil {
		return
	}
	if _, err := s.Store.InsertSnapshot(rec); err != nil {
		log.Error().Err(err).Str("phase", string(rec.Phase)).Msg("snapshot: persist failed")
	}
}

var _ snapshot.Sink = SnapshotSink{}
