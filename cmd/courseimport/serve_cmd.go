package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/metrics"
	"github.com/JonMunkholm/courseimport/internal/web"
)

// uploadsDir is the data-dir subdirectory for artifacts of HTTP uploads.
const uploadsDir = "uploads"

func newServeCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve CSV imports, transcriptions and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.update, "update", false, "Update existing records by default")
	cmd.Flags().StringVar(&opts.schemaName, "schema", "", "CSV layout name or auto (default: IMPORT_SCHEMA)")
	cmd.Flags().StringVar(&opts.schemaFile, "schema-file", "", "YAML file describing a custom CSV layout")
	cmd.Flags().StringVar(&opts.successPolicy, "success-policy", "", "threshold or zero-errors (default: threshold)")
	cmd.Flags().StringVar(&opts.courseKey, "course-key", "", "Comma-separated course natural key (default: IMPORT_COURSE_KEY)")

	return cmd
}

func runServe(ctx context.Context, a *app, opts importOptions) error {
	logger := a.logger
	cfg := a.cfg

	coreOpts, err := serveOptions(opts, cfg.Import)
	if err != nil {
		return withCode(exitUsage, err)
	}

	st, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return withCode(exitFailed, err)
	}
	defer closeStore()

	m := metrics.New()
	server := web.NewServer(web.Deps{
		Store:    st,
		Options:  coreOpts,
		Limiter:  core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		Observer: m,
		Metrics:  m.Handler(),
		Logger:   logger,
	}, cfg.Server, cfg.Import.MaxUploadSize)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return withCode(exitFailed, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown error", "error", err)
		return withCode(exitFailed, err)
	}
	logger.Info("server stopped")
	return nil
}

// serveOptions keeps uploaded artifacts under <data-dir>/uploads, away from
// the pair a bare "import" would reuse.
func serveOptions(opts importOptions, cfg config.ImportConfig) (core.Options, error) {
	o, err := buildOptions(opts, cfg)
	if err != nil {
		return core.Options{}, err
	}
	o.OutputDir = filepath.Join(cfg.DataDir, uploadsDir)
	return o, nil
}
