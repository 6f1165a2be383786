package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Chords table - fingerings loaded from disk or produced by calibration
		`CREATE TABLE IF NOT EXISTS chords (
			name TEXT PRIMARY KEY,
			fingering TEXT NOT NULL,
			source TEXT NOT NULL CHECK(source IN ('file', 'trained')),
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sessions table - one row per successful fretboard lock
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			chord TEXT NOT NULL,
			frame_width INTEGER NOT NULL,
			frame_height INTEGER NOT NULL,
			image_hash TEXT NOT NULL DEFAULT '',
			layout TEXT NOT NULL,
			fret_boxes TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Scores table - scored attempts against a locked session
		`CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			percent REAL NOT NULL,
			grade TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Calibration samples table - raw recorded finger positions for training
		`CREATE TABLE IF NOT EXISTS calibration_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chord TEXT NOT NULL,
			sample_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_sessions_chord ON sessions(chord)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_session_id ON scores(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_samples_chord ON calibration_samples(chord)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
