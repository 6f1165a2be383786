package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Session is one locked fretboard: the layout computed at lock time and the
// frame it was computed for.
type Session struct {
	ID          string          `json:"id"`
	Chord       string          `json:"chord"`
	FrameWidth  int             `json:"frame_width"`
	FrameHeight int             `json:"frame_height"`
	ImageHash   string          `json:"image_hash,omitempty"`
	Layout      json.RawMessage `json:"layout"`
	FretBoxes   json.RawMessage `json:"fret_boxes"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session into the database.
func (r *SessionRepository) Create(sess *Session) error {
	sess.CreatedAt = time.Now()

	fretBoxes := string(sess.FretBoxes)
	if fretBoxes == "" {
		fretBoxes = "{}"
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, chord, frame_width, frame_height, image_hash, layout, fret_boxes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Chord, sess.FrameWidth, sess.FrameHeight, sess.ImageHash,
		string(sess.Layout), fretBoxes, sess.CreatedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, chord, frame_width, frame_height, image_hash, layout, fret_boxes, created_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves the most recent sessions, newest first. A limit of zero or
// less returns every session.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, chord, frame_width, frame_height, image_hash, layout, fret_boxes, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session and its scores.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
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

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var layout, fretBoxes string

	err := row.Scan(&sess.ID, &sess.Chord, &sess.FrameWidth, &sess.FrameHeight,
		&sess.ImageHash, &layout, &fretBoxes, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}

	sess.Layout = json.RawMessage(layout)
	sess.FretBoxes = json.RawMessage(fretBoxes)
	return sess, nil
}
