package formatter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boergens/spotify-shokz-sync/internal/models"
)

func stuckTracks() []*models.Track {
	at := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	return []*models.Track{
		{
			ID:          "track1",
			Name:        "Song One",
			Artist:      "Artist One",
			Album:       "Album One",
			Status:      models.StatusApproved,
			RetryCount:  3,
			LastError:   "ffmpeg capture failed: Device or resource busy: Input/output error",
			LastRetryAt: &at,
		},
		{
			ID:         "track2",
			Name:       "Song Two",
			Artist:     "Artist Two",
			Album:      "Album Two",
			Status:     models.StatusRecorded,
			RetryCount: 3,
			LastError:  "size mismatch: wrote 100 of 200 bytes, partial removed",
		},
	}
}

func TestWriteStatusTable(t *testing.T) {
	var buf bytes.Buffer
	WriteStatusTable(&buf, map[models.Status]int{
		models.StatusPending:  2,
		models.StatusRecorded: 1,
		models.StatusSynced:   4,
	})
	output := buf.String()

	for _, want := range []string{"STATUS", "TRACKS", "pending", "approved", "rejected", "recorded", "synced", "TOTAL"} {
		if !strings.Contains(output, want) {
			t.Errorf("table missing %q, got:\n%s", want, output)
		}
	}
	if !strings.Contains(output, "7") {
		t.Errorf("table missing total count, got:\n%s", output)
	}
}

func TestWriteStuckTable(t *testing.T) {
	var buf bytes.Buffer
	WriteStuckTable(&buf, stuckTracks())
	output := buf.String()

	if !strings.Contains(output, "track1") || !strings.Contains(output, "Artist One - Song One") {
		t.Errorf("table missing first track, got:\n%s", output)
	}
	if !strings.Contains(output, "2025-06-10 09:30") {
		t.Errorf("table missing last attempt time, got:\n%s", output)
	}
	if !strings.Contains(output, "-") {
		t.Errorf("table missing placeholder for unknown attempt time, got:\n%s", output)
	}
	if !strings.Contains(output, "…") || strings.Contains(output, "Input/output error") {
		t.Errorf("expected long error truncated, got:\n%s", output)
	}
}

func TestStuckToCSV(t *testing.T) {
	data, err := StuckToCSV(stuckTracks())
	if err != nil {
		t.Fatalf("StuckToCSV failed: %v", err)
	}
	output := string(data)

	if !strings.Contains(output, "ID,Name,Artist,Album,Status,Attempts,LastError,LastAttempt") {
		t.Errorf("CSV missing headers, got: %s", output)
	}
	if !strings.Contains(output, "track1") || !strings.Contains(output, "Song One") {
		t.Errorf("CSV missing track1 fields, got: %s", output)
	}
	if !strings.Contains(output, "\"size mismatch: wrote 100 of 200 bytes, partial removed\"") {
		t.Errorf("CSV should quote the comma-bearing error, got: %s", output)
	}
}

func TestWriteStuckExport(t *testing.T) {
	t.Run("writes to the given path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "export.csv")

		got, err := WriteStuckExport(stuckTracks(), path)
		if err != nil {
			t.Fatalf("WriteStuckExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected path %q, got %q", path, got)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if !strings.Contains(string(data), "track2") {
			t.Errorf("export missing rows, got: %s", data)
		}
	})

	t.Run("defaults the filename", func(t *testing.T) {
		dir := t.TempDir()
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatalf("failed to get working directory: %v", err)
		}
		if err := os.Chdir(dir); err != nil {
			t.Fatalf("failed to change directory: %v", err)
		}
		t.Cleanup(func() { os.Chdir(cwd) })

		got, err := WriteStuckExport(stuckTracks(), "")
		if err != nil {
			t.Fatalf("WriteStuckExport failed: %v", err)
		}
		if got != "stuck_tracks.csv" {
			t.Errorf("expected default filename, got %q", got)
		}
		if _, err := os.Stat(filepath.Join(dir, "stuck_tracks.csv")); err != nil {
			t.Errorf("expected the default export on disk: %v", err)
		}
	})
}
