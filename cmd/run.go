package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/boergens/spotify-shokz-sync/internal/approval"
	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/boergens/spotify-shokz-sync/internal/tasks"
	"github.com/boergens/spotify-shokz-sync/internal/watch"
)

// Run starts the watch daemon and blocks until SIGINT or SIGTERM.
//
// Wires the full pipeline: liked-songs polling feeds the approval
// coordinator, approvals feed the recording engine, recordings feed the
// volume sync engine. Discord handles approvals when configured; otherwise
// announcements go to the log and verdicts come from the review TUI.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	if logFile := cmd.String("log-file"); logFile != "" {
		r.logger = shared.NewLogger(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(config.Library.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	tokenPath, err := config.SpotifyTokenPath()
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, tokenPath, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}
	if err := spotify.Authenticate(ctx); err != nil {
		return fmt.Errorf("%w (run 'shokz-sync auth login' first)", err)
	}

	// The watermark starts at the newer of the stored likes and the wall
	// clock, so restarting the daemon never re-imports the whole library.
	seed, err := store.NewestAddedAt()
	if err != nil {
		return err
	}
	if now := time.Now(); now.After(seed) {
		seed = now
	}
	catalog := services.NewLikedSongsSource(spotify, seed)

	var notifier services.Notifier
	var discord *services.DiscordNotifier
	if creds := config.Credentials.Discord; creds.BotToken != "" && creds.ChannelID != "" {
		if discord, err = services.NewDiscordNotifier(creds, r.logger); err != nil {
			return fmt.Errorf("failed to create Discord notifier: %w", err)
		}
		notifier = discord
	} else {
		r.logger.Info("discord credentials not set, announcements go to the log")
		notifier = services.NewLogNotifier(r.logger)
	}

	approvals := approval.NewCoordinator(store, notifier, r.logger)

	if discord != nil {
		discord.OnDecision(func(handle string, decision models.Decision) {
			approvals.Resolve(ctx, handle, decision)
		})
		if err := discord.Open(); err != nil {
			return fmt.Errorf("failed to connect to Discord: %w", err)
		}
		defer discord.Close()
	}

	recorder := tasks.NewRecordingEngine(
		store,
		spotify,
		services.NewFFmpegRecorder(config.Capture, r.logger),
		services.NewID3Tagger(r.logger),
		notifier,
		config.Capture,
		config.Library.Directory,
		r.logger,
	)
	transport := services.NewFilesystemVolumes(config.Sync, r.logger)
	syncer := tasks.NewSyncEngine(store, transport, notifier, config.Retry, config.Library.Directory, r.logger)

	progress := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progress {
			r.logger.Debug("progress", "phase", update.Phase, "step", update.Step, "total", update.Total, "message", update.Message)
		}
	}()

	watcher := watch.New(watch.Opts{
		Config:    config,
		Store:     store,
		Catalog:   catalog,
		Approvals: approvals,
		Recorder:  recorder,
		Syncer:    syncer,
		Transport: transport,
		Gate:      services.NewWifiGate(config.Network, r.logger),
		Logger:    r.logger,
		Progress:  progress,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher.Start()
	r.logger.Info("daemon running, press ctrl+c to stop")

	<-runCtx.Done()
	r.logger.Info("shutting down")

	err = watcher.Stop()
	if err == nil {
		// The loops are the only senders; close only once they all stopped.
		close(progress)
	}
	return err
}
