package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/schema"
	"github.com/JonMunkholm/courseimport/internal/store"
)

type importOptions struct {
	dryRun        bool
	update        bool
	reprocess     bool
	csvPath       string
	coursesPath   string
	lessonsPath   string
	outputDir     string
	schemaName    string
	schemaFile    string
	successPolicy string
	courseKey     string
}

// importPlan is where a run reads from: an artifact pair or a CSV.
type importPlan struct {
	coursesPath string
	lessonsPath string
	csvPath     string
	outputDir   string
}

func (p importPlan) artifacts() bool { return p.coursesPath != "" }

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import courses and lessons from a CSV export or processed artifacts",
		Long: `Import normalizes a course CSV, exports courses.json and lessons.json,
and writes both to the store. When the data directory already holds a
processed pair and --reprocess is not set, the pair is imported directly.

The command exits non-zero when the run misses its success policy.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if (opts.coursesPath == "") != (opts.lessonsPath == "") {
				return withCode(exitUsage, errors.New("--courses and --lessons must be given together"))
			}
			if opts.coursesPath != "" && opts.csvPath != "" {
				return withCode(exitUsage, errors.New("--csv cannot be combined with --courses/--lessons"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Process and report without writing to the store")
	cmd.Flags().BoolVar(&opts.update, "update", false, "Update existing records instead of reusing them")
	cmd.Flags().BoolVar(&opts.reprocess, "reprocess", false, "Process the CSV even when artifacts already exist")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV file to process (default: IMPORT_CSV_PATH)")
	cmd.Flags().StringVar(&opts.coursesPath, "courses", "", "courses.json artifact to import")
	cmd.Flags().StringVar(&opts.lessonsPath, "lessons", "", "lessons.json artifact to import")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for exported artifacts (default: <csv dir>/processed)")
	cmd.Flags().StringVar(&opts.schemaName, "schema", "", "CSV layout name or auto (default: IMPORT_SCHEMA)")
	cmd.Flags().StringVar(&opts.schemaFile, "schema-file", "", "YAML file describing a custom CSV layout")
	cmd.Flags().StringVar(&opts.successPolicy, "success-policy", "", "threshold or zero-errors (default depends on the input)")
	cmd.Flags().StringVar(&opts.courseKey, "course-key", "", "Comma-separated course natural key (default: IMPORT_COURSE_KEY)")

	return cmd
}

func runImport(ctx context.Context, a *app, opts importOptions, out io.Writer) error {
	logger := a.logger
	cfg := a.cfg

	coreOpts, err := buildOptions(opts, cfg.Import)
	if err != nil {
		return withCode(exitUsage, err)
	}
	plan := planImport(opts, cfg.Import)
	coreOpts.OutputDir = plan.outputDir

	// A dry run never touches the store, so it does not connect either.
	var st store.Store
	if !coreOpts.DryRun {
		s, closeStore, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return withCode(exitFailed, err)
		}
		defer closeStore()
		st = s
	}

	im := core.NewImporter(st, coreOpts, logger)

	var outcome core.Outcome
	if plan.artifacts() {
		outcome, err = im.ImportArtifacts(ctx, plan.coursesPath, plan.lessonsPath)
	} else {
		outcome, err = im.ProcessAndImport(ctx, plan.csvPath)
	}
	if err != nil {
		logger.Error("import aborted", "error", err, "code", core.MapError(err).Code)
		if core.IsUserFacing(err) {
			return withCode(exitFailed, fmt.Errorf("%w\n%s", err, core.FormatUserError(err)))
		}
		return withCode(exitFailed, err)
	}

	reportOutcome(logger, outcome)
	if err := writeOutcome(out, outcome); err != nil {
		return withCode(exitFailed, err)
	}
	if !outcome.Success {
		return withCode(exitFailed, fmt.Errorf("import did not meet the %s success policy", outcome.Policy))
	}
	return nil
}

// buildOptions merges flags over configuration.
func buildOptions(opts importOptions, cfg config.ImportConfig) (core.Options, error) {
	o := core.Options{
		DryRun:      opts.dryRun,
		Update:      opts.update,
		Delay:       cfg.Delay,
		LessonDelay: cfg.LessonDelay,
		CourseKey:   cfg.CourseKey,
		OnConflict:  cfg.OnConflict,
	}

	if opts.courseKey != "" {
		o.CourseKey = config.SplitList(opts.courseKey)
		if err := config.ValidateCourseKey(o.CourseKey); err != nil {
			return core.Options{}, err
		}
	}

	name := firstNonEmpty(opts.schemaName, cfg.Schema)
	cols, err := resolveSchema(name, firstNonEmpty(opts.schemaFile, cfg.SchemaFile))
	if err != nil {
		return core.Options{}, err
	}
	o.Columns = cols
	if cols == nil {
		o.Schema = name
	}

	if name := firstNonEmpty(opts.successPolicy, cfg.SuccessPolicy); name != "" {
		p, err := core.PolicyByName(name)
		if err != nil {
			return core.Options{}, err
		}
		o.Policy = p
	}
	return o, nil
}

// resolveSchema loads a layout file. Without one it returns nil and the
// normalizer resolves name against each file's header; unknown names are
// rejected here so a typo fails before any store connection.
func resolveSchema(name, file string) (*schema.Columns, error) {
	if file != "" {
		c, err := schema.LoadFile(file)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
	if name == "" || name == "auto" {
		return nil, nil
	}
	if _, ok := schema.Get(name); !ok {
		return nil, fmt.Errorf("unknown schema %q (available: %v)", name, schema.Names())
	}
	return nil, nil
}

// planImport picks the input. Explicit flags win; otherwise a processed pair
// in the data directory is reused unless reprocess is set.
func planImport(opts importOptions, cfg config.ImportConfig) importPlan {
	if opts.coursesPath != "" {
		return importPlan{coursesPath: opts.coursesPath, lessonsPath: opts.lessonsPath}
	}
	if opts.csvPath != "" {
		return importPlan{csvPath: opts.csvPath, outputDir: opts.outputDir}
	}
	if !opts.reprocess && core.ArtifactsExist(cfg.DataDir) {
		return importPlan{
			coursesPath: filepath.Join(cfg.DataDir, core.CoursesFile),
			lessonsPath: filepath.Join(cfg.DataDir, core.LessonsFile),
		}
	}
	return importPlan{csvPath: cfg.CSVPath, outputDir: firstNonEmpty(opts.outputDir, cfg.DataDir)}
}

func reportOutcome(logger *slog.Logger, o core.Outcome) {
	s := o.Stats
	logger.Info("import finished",
		"success", o.Success,
		"policy", o.Policy,
		"dry_run", s.DryRun,
		"courses", fmt.Sprintf("%d/%d", s.CoursesProcessed, s.CoursesTotal),
		"lessons", fmt.Sprintf("%d/%d", s.LessonsProcessed, s.LessonsTotal),
		"orphaned_lessons", s.OrphanedLessons,
		"duplicate_lessons", s.DuplicateLessons,
		"errors", len(s.Errors),
	)
	logging.LogErrorSummary(logger, "import errors", s.Errors, 5)
}

func writeOutcome(w io.Writer, o core.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(o)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

