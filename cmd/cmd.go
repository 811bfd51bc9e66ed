// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configFlag is shared by every command that reads the TOML config.
func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// runCommand starts the long-running watch daemon.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Watch liked songs and drive them through approval, capture, and sync",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to a rotated file instead of stderr",
			},
		},
		Action: r.Run,
	}
}

// setupCommand initializes the config file, database, and library directory.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file, database, and library directory",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles Spotify authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check current authentication state",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// statusCommand reports how many tracks sit in each lifecycle stage.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show track counts per lifecycle stage",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Status,
	}
}

// stuckCommand lists tracks that exhausted their retry budget.
func stuckCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stuck",
		Usage: "List tracks that exhausted their retry budget",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Export stuck tracks to a CSV file",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "CSV output file path",
			},
		},
		Action: r.Stuck,
	}
}

// retryCommand clears failure history so tracks re-enter the pipeline.
func retryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "Reset a track's failure history so the daemon picks it up again",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "id",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Reset every stuck track",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: r.Retry,
	}
}

// reviewCommand launches the interactive approval TUI.
func reviewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "review",
		Aliases: []string{"ui"},
		Usage:   "Review pending tracks interactively",
		Flags:   []cli.Flag{configFlag()},
		Action:  r.Review,
	}
}

// devicesCommand lists capture devices visible to ffmpeg.
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "List audio capture devices for capture.input_device",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Devices,
	}
}
