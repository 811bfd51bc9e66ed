package ui

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/repositories"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

func setupStore(t *testing.T) (*repositories.TrackRepository, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return repositories.NewTrackRepository(db, nil), db
}

func insertPending(t *testing.T, store *repositories.TrackRepository, id, name string) *models.Track {
	t.Helper()

	track := &models.Track{
		ID:         id,
		Name:       name,
		Artist:     "Artist",
		Album:      "Album",
		DurationMS: 204_000,
		Status:     models.StatusPending,
		AddedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := store.Insert(track); err != nil {
		t.Fatalf("failed to insert track %s: %v", id, err)
	}
	return track
}

// startModel runs the model through an initial window size and Init, the way
// a bubbletea program would before the first keypress arrives.
func startModel(t *testing.T, store *repositories.TrackRepository) *Model {
	t.Helper()

	m := NewModel(store)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	apply(t, m, m.Init())
	return m
}

// apply executes a command and feeds resulting messages back into the model
// until the chain settles, standing in for the bubbletea runtime.
func apply(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()

	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func press(m *Model, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestReviewModel(t *testing.T) {
	t.Run("lists the pending queue on startup", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "First Song")
		insertPending(t, store, "t2", "Second Song")
		insertPending(t, store, "t3", "Decided Song")
		if err := store.SetStatus("t3", models.StatusApproved, ""); err != nil {
			t.Fatalf("failed to approve seed track: %v", err)
		}

		m := startModel(t, store)

		if !m.loaded {
			t.Fatal("expected the queue to be loaded after Init")
		}
		if got := len(m.pending.Items()); got != 2 {
			t.Fatalf("expected 2 pending items, got %d", got)
		}
		view := m.View()
		if !strings.Contains(view, "First Song") {
			t.Errorf("expected the view to list First Song, got:\n%s", view)
		}
		if strings.Contains(view, "Decided Song") {
			t.Error("already-decided tracks should not be listed")
		}
	})

	t.Run("approve advances the track and trims the queue", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "First Song")
		insertPending(t, store, "t2", "Second Song")
		m := startModel(t, store)

		apply(t, m, press(m, "y"))

		track, err := store.Get("t1")
		if err != nil {
			t.Fatalf("failed to load track: %v", err)
		}
		if track.Status != models.StatusApproved {
			t.Fatalf("expected t1 approved, got %s", track.Status)
		}
		if m.approved != 1 {
			t.Errorf("expected 1 approval counted, got %d", m.approved)
		}
		if got := len(m.pending.Items()); got != 1 {
			t.Fatalf("expected 1 item left, got %d", got)
		}
		if !strings.Contains(m.View(), "Approved Artist - First Song") {
			t.Error("expected the last verdict to show in the footer")
		}
	})

	t.Run("reject marks the selected track rejected", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "First Song")
		insertPending(t, store, "t2", "Second Song")
		m := startModel(t, store)

		apply(t, m, press(m, "n"))

		track, err := store.Get("t1")
		if err != nil {
			t.Fatalf("failed to load track: %v", err)
		}
		if track.Status != models.StatusRejected {
			t.Fatalf("expected t1 rejected, got %s", track.Status)
		}
		if m.rejected != 1 {
			t.Errorf("expected 1 rejection counted, got %d", m.rejected)
		}
		if !strings.Contains(m.View(), "Rejected Artist - First Song") {
			t.Error("expected the last verdict to show in the footer")
		}
	})

	t.Run("navigation moves the selection before a verdict", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "First Song")
		insertPending(t, store, "t2", "Second Song")
		insertPending(t, store, "t3", "Third Song")
		m := startModel(t, store)

		press(m, "j")
		if got := m.pending.Index(); got != 1 {
			t.Fatalf("expected selection on index 1 after j, got %d", got)
		}

		apply(t, m, press(m, "y"))

		track, err := store.Get("t2")
		if err != nil {
			t.Fatalf("failed to load track: %v", err)
		}
		if track.Status != models.StatusApproved {
			t.Fatalf("expected the selected track t2 approved, got %s", track.Status)
		}
		first, err := store.Get("t1")
		if err != nil {
			t.Fatalf("failed to load track: %v", err)
		}
		if first.Status != models.StatusPending {
			t.Fatalf("expected t1 untouched, got %s", first.Status)
		}
	})

	t.Run("the last verdict drains the queue into the summary", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "Only Song")
		m := startModel(t, store)

		apply(t, m, press(m, "y"))

		if m.view != SummaryView {
			t.Fatalf("expected the summary view, got %d", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "Review Complete") {
			t.Errorf("expected the summary title, got:\n%s", view)
		}
		if !strings.Contains(view, "1") {
			t.Error("expected the approval count in the summary")
		}
	})

	t.Run("empty queue renders the idle prompt", func(t *testing.T) {
		store, _ := setupStore(t)
		m := startModel(t, store)

		if !strings.Contains(m.View(), "Nothing waiting for review") {
			t.Errorf("expected the idle prompt, got:\n%s", m.View())
		}
	})

	t.Run("refresh picks up likes discovered after startup", func(t *testing.T) {
		store, _ := setupStore(t)
		m := startModel(t, store)

		insertPending(t, store, "t9", "Late Arrival")
		apply(t, m, press(m, "r"))

		if got := len(m.pending.Items()); got != 1 {
			t.Fatalf("expected 1 item after refresh, got %d", got)
		}
		if !strings.Contains(m.View(), "Late Arrival") {
			t.Error("expected the refreshed queue to list the new track")
		}
	})

	t.Run("summary refresh reopens the queue", func(t *testing.T) {
		store, _ := setupStore(t)
		insertPending(t, store, "t1", "Only Song")
		m := startModel(t, store)
		apply(t, m, press(m, "y"))
		if m.view != SummaryView {
			t.Fatalf("expected the summary view, got %d", m.view)
		}

		insertPending(t, store, "t2", "Second Wave")
		apply(t, m, press(m, "r"))

		if m.view != ReviewView {
			t.Fatalf("expected the review view after refresh, got %d", m.view)
		}
		if got := len(m.pending.Items()); got != 1 {
			t.Fatalf("expected 1 item after refresh, got %d", got)
		}
	})

	t.Run("decision keys without a queue are no-ops", func(t *testing.T) {
		store, _ := setupStore(t)
		m := startModel(t, store)

		if cmd := press(m, "y"); cmd != nil {
			t.Error("expected no command for approve on an empty queue")
		}
		if cmd := press(m, "n"); cmd != nil {
			t.Error("expected no command for reject on an empty queue")
		}
	})

	t.Run("quit keys stop the program", func(t *testing.T) {
		store, _ := setupStore(t)
		m := startModel(t, store)

		for _, k := range []string{"q", "ctrl+c"} {
			cmd := press(m, k)
			if cmd == nil {
				t.Fatalf("expected a quit command for %s", k)
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Fatalf("expected %s to quit, got %T", k, cmd())
			}
		}
	})

	t.Run("store failure surfaces on screen", func(t *testing.T) {
		store, db := setupStore(t)
		insertPending(t, store, "t1", "First Song")
		m := startModel(t, store)

		db.Close()
		apply(t, m, press(m, "y"))

		if m.err == nil {
			t.Fatal("expected the verdict failure to be recorded")
		}
		if !strings.Contains(m.View(), "Error:") {
			t.Errorf("expected the error screen, got:\n%s", m.View())
		}
	})
}

func TestTrackItem(t *testing.T) {
	track := &models.Track{
		ID:         "t1",
		Name:       "Song One",
		Artist:     "Artist One",
		Album:      "Album One",
		DurationMS: 204_000,
	}
	item := trackItem{track: track}

	if item.Title() != "Song One" {
		t.Errorf("unexpected title %q", item.Title())
	}
	if got := item.Description(); got != "Artist One • Album One • 3:24" {
		t.Errorf("unexpected description %q", got)
	}

	bare := trackItem{track: &models.Track{ID: "t2", Name: "Raw", Artist: "Solo"}}
	if got := bare.Description(); got != "Solo" {
		t.Errorf("unexpected description %q", got)
	}
}
