package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/trip.report/internal/trip"
)

// Spool is a local store for finalized trips awaiting submission. The
// device works with intermittent connectivity; every trip lands here first
// and a flusher drains the backlog when the service is reachable. Trip IDs
// are client-generated UUIDs so a retried submission is idempotent on our
// side of the wire.
type Spool struct {
	db *sql.DB
}

// OpenSpool opens (creating if needed) the spool database at path.
func OpenSpool(path string) (*Spool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trip_spool (
			trip_id       TEXT PRIMARY KEY,
			payload       TEXT NOT NULL,
			created_unix  BIGINT NOT NULL,
			submitted_unix BIGINT,
			safety_score  DOUBLE
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create spool schema: %w", err)
	}
	return &Spool{db: db}, nil
}

// Close closes the underlying database.
func (s *Spool) Close() error { return s.db.Close() }

// Enqueue stores a finalized trip for later submission. Re-enqueueing the
// same trip ID is a no-op.
func (s *Spool) Enqueue(summary *trip.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode trip %s: %w", summary.TripID, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO trip_spool (trip_id, payload, created_unix) VALUES (?, ?, ?)
		 ON CONFLICT(trip_id) DO NOTHING`,
		summary.TripID, string(payload), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue trip %s: %w", summary.TripID, err)
	}
	return nil
}

// Pending returns unsubmitted trips, oldest first.
func (s *Spool) Pending() ([]*trip.Summary, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM trip_spool WHERE submitted_unix IS NULL ORDER BY created_unix`)
	if err != nil {
		return nil, fmt.Errorf("failed to query spool: %w", err)
	}
	defer rows.Close()

	var out []*trip.Summary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan spool row: %w", err)
		}
		var summary trip.Summary
		if err := json.Unmarshal([]byte(payload), &summary); err != nil {
			return nil, fmt.Errorf("failed to decode spooled trip: %w", err)
		}
		out = append(out, &summary)
	}
	return out, rows.Err()
}

// MarkSubmitted records the service's authoritative score against a trip.
func (s *Spool) MarkSubmitted(tripID string, score float64) error {
	res, err := s.db.Exec(
		`UPDATE trip_spool SET submitted_unix = ?, safety_score = ? WHERE trip_id = ?`,
		time.Now().Unix(), score, tripID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark trip %s submitted: %w", tripID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trip %s not found in spool", tripID)
	}
	return nil
}

// Get returns one spooled trip by ID, submitted or not.
func (s *Spool) Get(tripID string) (*trip.Summary, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM trip_spool WHERE trip_id = ?`, tripID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trip %s not found in spool", tripID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trip %s: %w", tripID, err)
	}
	var summary trip.Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode trip %s: %w", tripID, err)
	}
	return &summary, nil
}

// PendingCount returns how many trips await submission.
func (s *Spool) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trip_spool WHERE submitted_unix IS NULL`).Scan(&n)
	return n, err
}
