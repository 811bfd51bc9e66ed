package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/boergens/spotify-shokz-sync/internal/ui"
)

// Review launches the interactive approval TUI over the pending queue.
func (r *Runner) Review(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	// Logging would scribble over the alternate screen, so store warnings
	// are muted while the TUI owns the terminal.
	r.logger = shared.NewLogger(io.Discard)

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	model := ui.NewModel(store)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
