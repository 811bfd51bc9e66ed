package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/boergens/spotify-shokz-sync/internal/formatter"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

// Status reports how many tracks sit in each lifecycle stage.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := store.CountByStatus()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(counts, cmd.Bool("pretty"))
	}

	formatter.WriteStatusTable(r.output, counts)
	return nil
}

// Stuck lists tracks that exhausted their retry budget. They never fail
// automatically; this command is how an operator finds them.
func (r *Runner) Stuck(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := store.ListStuck(config.Retry.MaxAttempts)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	if cmd.Bool("csv") {
		path, err := formatter.WriteStuckExport(tracks, cmd.String("output"))
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d stuck track(s) to %s\n", len(tracks), path)
	}

	if len(tracks) == 0 {
		return r.writePlain("No stuck tracks.\n")
	}

	formatter.WriteStuckTable(r.output, tracks)
	return nil
}

// Retry clears failure history so the daemon picks a track up again. Takes
// a single track id, or --all to reset every stuck track after confirmation.
func (r *Runner) Retry(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	all := cmd.Bool("all")

	if id == "" && !all {
		return fmt.Errorf("%w: a track id or --all is required", shared.ErrMissingArgument)
	}
	if id != "" && all {
		return fmt.Errorf("%w: cannot combine a track id with --all", shared.ErrInvalidArgument)
	}

	config := r.loadConfig(cmd)
	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if all {
		stuck, err := store.ListStuck(config.Retry.MaxAttempts)
		if err != nil {
			return err
		}
		if len(stuck) == 0 {
			return r.writePlain("No stuck tracks.\n")
		}

		if !cmd.Bool("yes") {
			var confirmed bool
			prompt := fmt.Sprintf("Reset retry state for %d stuck track(s)?", len(stuck))
			if err := huh.NewConfirm().Title(prompt).Value(&confirmed).Run(); err != nil {
				return fmt.Errorf("confirmation failed: %w", err)
			}
			if !confirmed {
				return r.writePlain("Aborted.\n")
			}
		}

		reset, err := store.ResetStuck(config.Retry.MaxAttempts)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Reset %d track(s)\n", reset)
	}

	if _, err := store.Get(id); err != nil {
		return err
	}
	if err := store.ResetRetry(id); err != nil {
		return err
	}

	return r.writePlain("✓ Reset retry state for %s\n", id)
}
