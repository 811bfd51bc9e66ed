package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

// Setup creates the config file, initializes the database, and creates the
// library directory.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file already exists", "path", configPath)
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.logger.Info("config file created", "path", configPath)
	}

	config := r.loadConfig(cmd)

	r.logger.Info("initializing database", "path", config.Database.Path)
	_, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(config.Library.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}
	r.logger.Info("library directory ready", "path", config.Library.Directory)

	r.writePlain("✓ Setup complete\n")
	r.writePlain("Config file: %s\n", configPath)
	r.writePlain("Database: %s\n", config.Database.Path)
	r.writePlain("Library: %s\n", config.Library.Directory)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add your Spotify client_id and client_secret to %s (or a .env file)\n", configPath)
	r.writePlain("2. Run 'shokz-sync auth login' to authorize with Spotify\n")
	r.writePlain("3. Run 'shokz-sync devices' and set capture.input_device\n")
	r.writePlain("4. Run 'shokz-sync run' to start watching your likes\n")

	return nil
}

// Devices lists the audio capture devices ffmpeg can see and prints them for
// the capture.input_device setting.
func (r *Runner) Devices(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	recorder := services.NewFFmpegRecorder(config.Capture, r.logger)
	devices, err := recorder.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list capture devices: %w", err)
	}

	r.writePlain("Found %d audio device(s):\n\n", len(devices))
	for i, device := range devices {
		r.writePlain("%d. %s\n", i+1, device)
	}
	r.writePlain("\nSet capture.input_device in config.toml to one of these names.\n")

	return nil
}
