// Package rides persists classified ride outcomes to SQLite so replay
// weighting can draw on the full history of recorded rides.
package rides

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome labels for a classified ride.
const (
	OutcomeLeft   = "left"
	OutcomeRight  = "right"
	OutcomeBehind = "behind"
)

// Ride is one classified ride.
type Ride struct {
	ID         string
	RecordedAt time.Time
	SourceCSV  string
	Outcome    string
	DecisionY  float64 // Y position where the turn decision was made
	FinalX     float64 // X position at the end of the ride
	DurationS  float64
	MeanSpeed  float64
	MaxSpeed   float64
}

// Store wraps the rides database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the rides database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rides db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rides (
			id TEXT PRIMARY KEY,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			source_csv TEXT,
			outcome TEXT NOT NULL,
			decision_y DOUBLE,
			final_x DOUBLE,
			duration_s DOUBLE,
			mean_speed DOUBLE,
			max_speed DOUBLE
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create rides table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts a ride. If the ride has no ID, one is assigned and the
// stored ride is returned.
func (s *Store) Record(r Ride) (Ride, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO rides (id, recorded_at, source_csv, outcome, decision_y, final_x, duration_s, mean_speed, max_speed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RecordedAt, r.SourceCSV, r.Outcome, r.DecisionY, r.FinalX, r.DurationS, r.MeanSpeed, r.MaxSpeed,
	)
	if err != nil {
		return Ride{}, fmt.Errorf("insert ride: %w", err)
	}
	return r, nil
}

// All returns every recorded ride, newest first.
func (s *Store) All() ([]Ride, error) {
	rows, err := s.db.Query(
		`SELECT id, recorded_at, source_csv, outcome, decision_y, final_x, duration_s, mean_speed, max_speed
		 FROM rides ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query rides: %w", err)
	}
	defer rows.Close()

	var out []Ride
	for rows.Next() {
		var r Ride
		if err := rows.Scan(&r.ID, &r.RecordedAt, &r.SourceCSV, &r.Outcome,
			&r.DecisionY, &r.FinalX, &r.DurationS, &r.MeanSpeed, &r.MaxSpeed); err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Proportions returns the left/right split among turning rides.
// Rides classified "behind" carry no turn signal and are excluded.
// With no turning rides on record, both proportions are 0.5.
func (s *Store) Proportions() (left, right float64, err error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM rides GROUP BY outcome`)
	if err != nil {
		return 0, 0, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	var nLeft, nRight int
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return 0, 0, fmt.Errorf("scan count: %w", err)
		}
		switch outcome {
		case OutcomeLeft:
			nLeft = n
		case OutcomeRight:
			nRight = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	total := nLeft + nRight
	if total == 0 {
		return 0.5, 0.5, nil
	}
	return float64(nLeft) / float64(total), float64(nRight) / float64(total), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
