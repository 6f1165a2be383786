package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ChordSource records where a stored fingering came from.
type ChordSource string

const (
	// ChordSourceFile marks a fingering imported from a chord file.
	ChordSourceFile ChordSource = "file"
	// ChordSourceTrained marks a fingering produced by calibration.
	ChordSourceTrained ChordSource = "trained"
)

// Chord is a stored fingering. Fingering holds the ordered JSON document.
type Chord struct {
	Name      string          `json:"name"`
	Fingering json.RawMessage `json:"fingering"`
	Source    ChordSource     `json:"source"`
	Samples   int             `json:"samples"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChordRepository provides CRUD operations for chords.
type ChordRepository struct {
	db *sql.DB
}

// Chords returns the chord repository for this store.
func (s *Store) Chords() *ChordRepository {
	return &ChordRepository{db: s.db}
}

// Save inserts a chord or replaces the fingering of an existing one.
// CreatedAt is kept across replacements.
func (r *ChordRepository) Save(c *Chord) error {
	now := time.Now()
	c.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO chords (name, fingering, source, samples, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			fingering = excluded.fingering,
			source = excluded.source,
			samples = excluded.samples,
			updated_at = excluded.updated_at`,
		c.Name, string(c.Fingering), string(c.Source), c.Samples, now, now,
	)
	if err != nil {
		return err
	}

	return r.db.QueryRow(`SELECT created_at FROM chords WHERE name = ?`, c.Name).Scan(&c.CreatedAt)
}

// GetByName retrieves a chord by its name.
func (r *ChordRepository) GetByName(name string) (*Chord, error) {
	row := r.db.QueryRow(
		`SELECT name, fingering, source, samples, created_at, updated_at
		 FROM chords WHERE name = ?`,
		name,
	)

	c, err := scanChord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List retrieves all chords ordered by name.
func (r *ChordRepository) List() ([]*Chord, error) {
	rows, err := r.db.Query(
		`SELECT name, fingering, source, samples, created_at, updated_at
		 FROM chords ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chords []*Chord
	for rows.Next() {
		c, err := scanChord(rows)
		if err != nil {
			return nil, err
		}
		chords = append(chords, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chords, nil
}

// Delete removes a chord by name.
func (r *ChordRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM chords WHERE name = ?`, name)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChord(row scanner) (*Chord, error) {
	c := &Chord{}
	var fingering, source string

	if err := row.Scan(&c.Name, &fingering, &source, &c.Samples, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	c.Fingering = json.RawMessage(fingering)
	c.Source = ChordSource(source)
	return c, nil
}
