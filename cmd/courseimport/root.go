package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/logging"
)

// app carries what every subcommand needs once the root has set up.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "courseimport",
		Short:         "Import course and lesson CSV exports into the course store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before configuration")

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newServeCmd(a))
	return cmd
}

// setup loads the env file, then configuration, then logging.
func (a *app) setup() error {
	// Overload lets the env file win over the inherited environment.
	if err := godotenv.Overload(a.envFile); err != nil {
		slog.Debug("no env file loaded, using environment variables", "path", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return withCode(exitFailed, fmt.Errorf("load configuration: %w", err))
	}
	a.cfg = cfg
	a.logger = logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a.logger.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
