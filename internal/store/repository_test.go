package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestChordRepository(t *testing.T) {
	t.Run("save and get", func(t *testing.T) {
		repo := newTestStore(t).Chords()

		chord := &Chord{
			Name:      "D",
			Fingering: json.RawMessage(`{"index":{"string_number":3,"fret_percent":-55}}`),
			Source:    ChordSourceFile,
		}
		if err := repo.Save(chord); err != nil {
			t.Fatalf("failed to save chord: %v", err)
		}
		if chord.CreatedAt.IsZero() || chord.UpdatedAt.IsZero() {
			t.Error("timestamps should be set after save")
		}

		got, err := repo.GetByName("D")
		if err != nil {
			t.Fatalf("failed to get chord: %v", err)
		}
		if string(got.Fingering) != string(chord.Fingering) {
			t.Errorf("Fingering mismatch: got %s, want %s", got.Fingering, chord.Fingering)
		}
		if got.Source != ChordSourceFile {
			t.Errorf("Source mismatch: got %q, want %q", got.Source, ChordSourceFile)
		}
	})

	t.Run("save replaces existing", func(t *testing.T) {
		repo := newTestStore(t).Chords()

		repo.Save(&Chord{Name: "D", Fingering: json.RawMessage(`{}`), Source: ChordSourceFile})
		if err := repo.Save(&Chord{Name: "D", Fingering: json.RawMessage(`{"a":1}`), Source: ChordSourceTrained, Samples: 12}); err != nil {
			t.Fatalf("failed to replace chord: %v", err)
		}

		got, _ := repo.GetByName("D")
		if got.Source != ChordSourceTrained || got.Samples != 12 {
			t.Errorf("expected trained chord with 12 samples, got %+v", got)
		}

		all, _ := repo.List()
		if len(all) != 1 {
			t.Errorf("expected 1 chord, got %d", len(all))
		}
	})

	t.Run("list is ordered by name", func(t *testing.T) {
		repo := newTestStore(t).Chords()

		for _, name := range []string{"G", "A", "D"} {
			repo.Save(&Chord{Name: name, Fingering: json.RawMessage(`{}`), Source: ChordSourceFile})
		}

		all, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list chords: %v", err)
		}
		if len(all) != 3 || all[0].Name != "A" || all[1].Name != "D" || all[2].Name != "G" {
			t.Errorf("unexpected order: %v", all)
		}
	})

	t.Run("missing chord", func(t *testing.T) {
		repo := newTestStore(t).Chords()

		if _, err := repo.GetByName("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		repo := newTestStore(t).Chords()

		if err := repo.Save(&Chord{Name: "X", Fingering: json.RawMessage(`{}`), Source: "guess"}); err == nil {
			t.Error("expected check constraint to reject source")
		}
	})
}

func TestSessionRepository(t *testing.T) {
	newSession := func(id string) *Session {
		return &Session{
			ID:          id,
			Chord:       "D",
			FrameWidth:  640,
			FrameHeight: 480,
			ImageHash:   "abc",
			Layout:      json.RawMessage(`{"targets":{}}`),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		repo := newTestStore(t).Sessions()

		if err := repo.Create(newSession("s1")); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		got, err := repo.GetByID("s1")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if got.Chord != "D" || got.FrameWidth != 640 || got.FrameHeight != 480 {
			t.Errorf("unexpected session: %+v", got)
		}
		if string(got.Layout) != `{"targets":{}}` {
			t.Errorf("Layout mismatch: got %s", got.Layout)
		}
		if string(got.FretBoxes) != "{}" {
			t.Errorf("expected empty fret boxes, got %s", got.FretBoxes)
		}
	})

	t.Run("list with limit", func(t *testing.T) {
		repo := newTestStore(t).Sessions()

		for _, id := range []string{"a", "b", "c"} {
			repo.Create(newSession(id))
		}

		limited, err := repo.List(2)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(limited))
		}

		all, _ := repo.List(0)
		if len(all) != 3 {
			t.Errorf("expected 3 sessions, got %d", len(all))
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		repo := newTestStore(t).Sessions()

		repo.Create(newSession("dup"))
		if err := repo.Create(newSession("dup")); err == nil {
			t.Error("expected error for duplicate id")
		}
	})

	t.Run("delete cascades to scores", func(t *testing.T) {
		s := newTestStore(t)
		s.Sessions().Create(newSession("s1"))
		s.Scores().Create(&Score{SessionID: "s1", Percent: 80, Grade: "close"})

		if err := s.Sessions().Delete("s1"); err != nil {
			t.Fatalf("failed to delete session: %v", err)
		}
		if _, err := s.Sessions().GetByID("s1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		scores, _ := s.Scores().ListBySession("s1")
		if len(scores) != 0 {
			t.Errorf("expected scores to be deleted, got %d", len(scores))
		}
	})
}

func TestScoreRepository(t *testing.T) {
	s := newTestStore(t)
	s.Sessions().Create(&Session{ID: "s1", Chord: "D", FrameWidth: 1, FrameHeight: 1, Layout: json.RawMessage(`{}`)})
	repo := s.Scores()

	t.Run("create and list", func(t *testing.T) {
		for _, p := range []float64{40, 100, 70} {
			sc := &Score{SessionID: "s1", Percent: p, Grade: "close", Detail: json.RawMessage(`{"groups":{}}`)}
			if err := repo.Create(sc); err != nil {
				t.Fatalf("failed to create score: %v", err)
			}
			if sc.ID == 0 {
				t.Error("expected ID to be set")
			}
		}

		scores, err := repo.ListBySession("s1")
		if err != nil {
			t.Fatalf("failed to list scores: %v", err)
		}
		if len(scores) != 3 || scores[0].Percent != 40 || scores[2].Percent != 70 {
			t.Errorf("unexpected scores: %+v", scores)
		}
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := repo.Summary("s1")
		if err != nil {
			t.Fatalf("failed to summarize: %v", err)
		}
		if summary.Attempts != 3 || summary.Best != 100 || summary.Average != 70 {
			t.Errorf("unexpected summary: %+v", summary)
		}
	})

	t.Run("summary of empty session", func(t *testing.T) {
		summary, err := repo.Summary("none")
		if err != nil {
			t.Fatalf("failed to summarize: %v", err)
		}
		if summary.Attempts != 0 || summary.Best != 0 {
			t.Errorf("expected empty summary, got %+v", summary)
		}
	})

	t.Run("requires session", func(t *testing.T) {
		if err := repo.Create(&Score{SessionID: "missing", Percent: 1, Grade: "off"}); err == nil {
			t.Error("expected foreign key violation")
		}
	})
}

func TestSampleRepository(t *testing.T) {
	t.Run("append numbers after existing", func(t *testing.T) {
		repo := newTestStore(t).Samples()

		total, err := repo.Append("D", []json.RawMessage{json.RawMessage(`{"n":0}`), json.RawMessage(`{"n":1}`)})
		if err != nil {
			t.Fatalf("failed to append samples: %v", err)
		}
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}

		total, err = repo.Append("D", []json.RawMessage{json.RawMessage(`{"n":2}`)})
		if err != nil {
			t.Fatalf("failed to append samples: %v", err)
		}
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}

		samples, err := repo.GetByChord("D")
		if err != nil {
			t.Fatalf("failed to get samples: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("expected 3 samples, got %d", len(samples))
		}
		for i, s := range samples {
			if s.SampleIndex != i {
				t.Errorf("sample %d has index %d", i, s.SampleIndex)
			}
		}
		if string(samples[2].Data) != `{"n":2}` {
			t.Errorf("unexpected data: %s", samples[2].Data)
		}
	})

	t.Run("chords are independent", func(t *testing.T) {
		repo := newTestStore(t).Samples()

		repo.Append("D", []json.RawMessage{json.RawMessage(`{}`)})
		repo.Append("G", []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)})

		if err := repo.DeleteByChord("D"); err != nil {
			t.Fatalf("failed to delete samples: %v", err)
		}

		d, _ := repo.GetByChord("D")
		g, _ := repo.GetByChord("G")
		if len(d) != 0 || len(g) != 2 {
			t.Errorf("expected 0 and 2 samples, got %d and %d", len(d), len(g))
		}
	})
}
