package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Score is one graded attempt against a session.
type Score struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Percent   float64         `json:"percent"`
	Grade     string          `json:"grade"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// ScoreSummary aggregates the scores of one session.
type ScoreSummary struct {
	Attempts int     `json:"attempts"`
	Best     float64 `json:"best"`
	Average  float64 `json:"average"`
}

// ScoreRepository provides operations for session scores.
type ScoreRepository struct {
	db *sql.DB
}

// Scores returns the score repository for this store.
func (s *Store) Scores() *ScoreRepository {
	return &ScoreRepository{db: s.db}
}

// Create records a score. The session must exist.
func (r *ScoreRepository) Create(sc *Score) error {
	sc.CreatedAt = time.Now()

	detail := string(sc.Detail)
	if detail == "" {
		detail = "{}"
	}

	result, err := r.db.Exec(
		`INSERT INTO scores (session_id, percent, grade, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sc.SessionID, sc.Percent, sc.Grade, detail, sc.CreatedAt,
	)
	if err != nil {
		return err
	}

	sc.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns the scores of a session, oldest first.
func (r *ScoreRepository) ListBySession(sessionID string) ([]Score, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, percent, grade, detail, created_at
		 FROM scores
		 WHERE session_id = ?
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var sc Score
		var detail string
		if err := rows.Scan(&sc.ID, &sc.SessionID, &sc.Percent, &sc.Grade, &detail, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.Detail = json.RawMessage(detail)
		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return scores, nil
}

// Summary returns attempt count, best and average percent for a session.
func (r *ScoreRepository) Summary(sessionID string) (*ScoreSummary, error) {
	var summary ScoreSummary
	var best, avg sql.NullFloat64

	err := r.db.QueryRow(
		`SELECT COUNT(*), MAX(percent), AVG(percent) FROM scores WHERE session_id = ?`,
		sessionID,
	).Scan(&summary.Attempts, &best, &avg)
	if err != nil {
		return nil, err
	}

	summary.Best = best.Float64
	summary.Average = avg.Float64
	return &summary, nil
}
