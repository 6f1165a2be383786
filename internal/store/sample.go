package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Sample represents a recorded calibration sample stored in the database.
type Sample struct {
	ID          int64           `json:"id"`
	Chord       string          `json:"chord"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SampleRepository provides CRUD operations for calibration samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Append adds samples for a chord in a single transaction, numbering them
// after any samples already recorded. It returns the new total.
func (r *SampleRepository) Append(chord string, samples []json.RawMessage) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM calibration_samples WHERE chord = ?`, chord).Scan(&existing); err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO calibration_samples (chord, sample_index, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for i, data := range samples {
		if _, err := stmt.Exec(chord, existing+i, string(data), now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return existing + len(samples), nil
}

// GetByChord retrieves all samples for a given chord.
func (r *SampleRepository) GetByChord(chord string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, chord, sample_index, data, created_at
		 FROM calibration_samples
		 WHERE chord = ?
		 ORDER BY sample_index`,
		chord,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.Chord, &s.SampleIndex, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Data = json.RawMessage(data)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteByChord removes all samples for a given chord.
func (r *SampleRepository) DeleteByChord(chord string) error {
	_, err := r.db.Exec(`DELETE FROM calibration_samples WHERE chord = ?`, chord)
	return err
}
