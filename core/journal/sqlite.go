package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/taxidispatch/core/model"
)

// SQLiteStore persists events to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS history_events (
        id TEXT PRIMARY KEY,
        ts INTEGER NOT NULL,
        kind TEXT NOT NULL,
        request_id INTEGER NOT NULL,
        taxi_id INTEGER NOT NULL,
        record TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS history_events_ts ON history_events (ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the event to the database.
func (s *SQLiteStore) Append(ctx context.Context, ev model.HistoryEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history_events (id, ts, kind, request_id, taxi_id, record) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.Timestamp.UnixNano(), ev.Kind.String(), ev.RequestID, ev.TaxiID, string(b))
	return err
}

// Query returns events matching q, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]model.HistoryEvent, error) {
	var args []any
	where := `WHERE 1=1`
	if !q.Start.IsZero() {
		where += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Kind != 0 {
		where += ` AND kind = ?`
		args = append(args, q.Kind.String())
	}
	if q.TaxiID != 0 {
		where += ` AND taxi_id = ?`
		args = append(args, q.TaxiID)
	}
	if q.RequestID != 0 {
		where += ` AND request_id = ?`
		args = append(args, q.RequestID)
	}
	query := `SELECT record FROM history_events ` + where + ` ORDER BY ts`
	if q.Limit > 0 {
		query = `SELECT record FROM (SELECT record, ts FROM history_events ` + where +
			` ORDER BY ts DESC LIMIT ?) ORDER BY ts`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.HistoryEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev model.HistoryEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
