// package formatter renders lifecycle reports for the CLI (tables and CSV exports)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/boergens/spotify-shokz-sync/internal/models"
)

// WriteStatusTable renders per-status track counts in lifecycle order, with a
// total row. Statuses with no tracks still get a row so the operator sees the
// whole pipeline at a glance.
func WriteStatusTable(w io.Writer, counts map[models.Status]int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Status", "Tracks"})

	total := 0
	for _, status := range models.Statuses {
		tw.AppendRow(table.Row{status, counts[status]})
		total += counts[status]
	}
	tw.AppendFooter(table.Row{"Total", total})
	tw.Render()
}

// WriteStuckTable renders tracks that exhausted their retry budget along with
// the failure that put them there.
func WriteStuckTable(w io.Writer, tracks []*models.Track) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Track", "Status", "Attempts", "Last Attempt", "Last Error"})

	for _, track := range tracks {
		tw.AppendRow(table.Row{
			track.ID,
			track.Display(),
			track.Status,
			track.RetryCount,
			formatRetryTime(track.LastRetryAt),
			truncate(track.LastError, 48),
		})
	}
	tw.Render()
}

// StuckToCSV converts stuck tracks to CSV with columns: ID, Name, Artist,
// Album, Status, Attempts, LastError, LastAttempt
func StuckToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artist", "Album", "Status", "Attempts", "LastError", "LastAttempt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ID,
			track.Name,
			track.Artist,
			track.Album,
			string(track.Status),
			strconv.Itoa(track.RetryCount),
			track.LastError,
			formatRetryTime(track.LastRetryAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteStuckExport writes the stuck-track CSV to path and returns the path.
//
// Defaults to stuck_tracks.csv in the working directory.
func WriteStuckExport(tracks []*models.Track, path string) (string, error) {
	if path == "" {
		path = "stuck_tracks.csv"
	}

	data, err := StuckToCSV(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return path, nil
}

func formatRetryTime(at *time.Time) string {
	if at == nil {
		return "-"
	}
	return at.Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
