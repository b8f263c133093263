package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/schema"
	"github.com/JonMunkholm/courseimport/internal/store"
)

// Options configures an import run.
type Options struct {
	DryRun      bool
	Update      bool
	Delay       time.Duration
	LessonDelay time.Duration
	CourseKey   []string
	OnConflict  bool

	// Columns forces a CSV layout. When nil, Schema names a registered
	// layout, and an empty or "auto" Schema detects it from the header.
	Columns *schema.Columns
	Schema  string

	// OutputDir receives courses.json and lessons.json on the CSV path.
	// Empty means "<csv dir>/processed" for files and no export for streams.
	OutputDir string

	// Policy overrides the entry point's default success policy.
	Policy SuccessPolicy
}

// Outcome is a judged import run.
type Outcome struct {
	Stats     Stats    `json:"stats"`
	Policy    string   `json:"policy"`
	Success   bool     `json:"success"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Observer receives run results, e.g. for metrics.
type Observer interface {
	ObserveBatch(table string, res BatchResult)
	ObserveOutcome(o Outcome)
}

// Importer sequences normalization, orphan resolution, artifact export and
// the two upsert phases. Courses are always written before lessons.
type Importer struct {
	Store    store.Store
	Options  Options
	Logger   *slog.Logger
	Observer Observer

	// Sleep is passed to the Upserter; nil uses a real timer.
	Sleep func(context.Context, time.Duration) error
}

// NewImporter creates an importer writing to st.
func NewImporter(st store.Store, opts Options, logger *slog.Logger) *Importer {
	return &Importer{Store: st, Options: opts, Logger: logger}
}

func (im *Importer) logger() *slog.Logger { return logging.OrDefault(im.Logger) }

func (im *Importer) upserter(logger *slog.Logger) *Upserter {
	return &Upserter{
		Store:       im.Store,
		Update:      im.Options.Update,
		DryRun:      im.Options.DryRun,
		Delay:       im.Options.Delay,
		LessonDelay: im.Options.LessonDelay,
		CourseKey:   im.Options.CourseKey,
		OnConflict:  im.Options.OnConflict,
		Logger:      logger,
		Sleep:       im.Sleep,
	}
}

func (im *Importer) normalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{Columns: im.Options.Columns, Schema: im.Options.Schema, Logger: logger}
}

// Import writes ds to the store and returns raw statistics with no verdict.
//
// Orphans are resolved first, so datasets loaded from older artifacts are
// safe to pass. Per-record failures land in Stats.Errors; the returned error
// is non-nil only when ctx is cancelled, alongside the partial stats.
func (im *Importer) Import(ctx context.Context, ds *Dataset) (Stats, error) {
	if im.Store == nil && !im.Options.DryRun {
		return Stats{}, errors.New("import: no store configured")
	}
	start := time.Now()
	stats := Stats{
		RunID:     uuid.NewString(),
		DryRun:    im.Options.DryRun,
		Schema:    ds.Schema,
		StartedAt: start.UTC(),
	}
	logger := im.logger().With("run_id", stats.RunID)
	if im.Options.DryRun {
		logger.Info("dry run: no changes will be written")
	}

	ResolveOrphans(ds, logger)

	stats.CoursesTotal = len(ds.Courses)
	stats.LessonsTotal = len(ds.Lessons)
	stats.DroppedRows = ds.DroppedRows
	stats.UnnamedLessons = ds.UnnamedLessons
	stats.OrphanedLessons = ds.OrphanedLessons
	stats.Errors = append(stats.Errors, ds.Errors...)

	up := im.upserter(logger)

	ids, courses, err := up.UpsertCourses(ctx, ds.Courses)
	stats.CoursesProcessed = courses.Processed
	stats.Errors = append(stats.Errors, courses.Errors...)
	im.observeBatch(store.TableCourses, courses)
	if err != nil {
		return im.finish(stats, start), fmt.Errorf("import courses: %w", err)
	}

	lessons, err := up.UpsertLessons(ctx, ds, ids)
	stats.LessonsProcessed = lessons.Processed
	stats.LessonsSkipped = lessons.Skipped
	stats.DuplicateLessons = lessons.Actions[ActionDuplicate]
	stats.Errors = append(stats.Errors, lessons.Errors...)
	im.observeBatch(store.TableLessons, lessons)
	if err != nil {
		return im.finish(stats, start), fmt.Errorf("import lessons: %w", err)
	}

	stats = im.finish(stats, start)
	logger.Info("import finished",
		"courses", fmt.Sprintf("%d/%d", stats.CoursesProcessed, stats.CoursesTotal),
		"lessons", fmt.Sprintf("%d/%d", stats.LessonsProcessed, stats.LessonsTotal),
		"errors", len(stats.Errors),
		"duration_seconds", stats.DurationSeconds)
	return stats, nil
}

func (im *Importer) finish(s Stats, start time.Time) Stats {
	s.DurationSeconds = math.Round(time.Since(start).Seconds()*100) / 100
	if s.Errors == nil {
		s.Errors = []string{}
	}
	return s
}

func (im *Importer) observeBatch(table string, res BatchResult) {
	if im.Observer != nil {
		im.Observer.ObserveBatch(table, res)
	}
}

// judge applies the configured policy, or def when none is set.
func (im *Importer) judge(s Stats, def SuccessPolicy, artifacts []string) Outcome {
	p := im.Options.Policy
	if p == nil {
		p = def
	}
	o := Outcome{Stats: s, Policy: p.Name(), Success: p.Success(s), Artifacts: artifacts}
	if im.Observer != nil {
		im.Observer.ObserveOutcome(o)
	}
	logger := im.logger().With("run_id", s.RunID)
	if o.Success {
		logger.Info("import succeeded", "policy", o.Policy)
	} else {
		logger.Error("import failed success policy", "policy", o.Policy,
			"courses", fmt.Sprintf("%d/%d", s.CoursesProcessed, s.CoursesTotal),
			"lessons", fmt.Sprintf("%d/%d", s.LessonsProcessed, s.LessonsTotal),
			"errors", len(s.Errors))
	}
	return o
}

// ProcessAndImport normalizes the CSV at csvPath, exports the artifacts
// and imports the result. Unless Options.Policy is set, success requires
// every course and at least 90% of lessons.
func (im *Importer) ProcessAndImport(ctx context.Context, csvPath string) (Outcome, error) {
	logger := im.logger()
	logger.Info("processing csv", "path", csvPath)

	ds, err := im.normalizer(logger).NormalizeFile(csvPath)
	if err != nil {
		logger.Error("csv processing failed", "path", csvPath, "error", err)
		return Outcome{}, err
	}

	dir := im.Options.OutputDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(csvPath), "processed")
	}
	return im.processDataset(ctx, ds, dir)
}

// ProcessAndImportReader is ProcessAndImport for a CSV stream. Artifacts
// are exported only when Options.OutputDir is set.
func (im *Importer) ProcessAndImportReader(ctx context.Context, r io.Reader) (Outcome, error) {
	logger := im.logger()
	ds, err := im.normalizer(logger).NormalizeCSV(r)
	if err != nil {
		logger.Error("csv processing failed", "error", err)
		return Outcome{}, err
	}
	return im.processDataset(ctx, ds, im.Options.OutputDir)
}

func (im *Importer) processDataset(ctx context.Context, ds *Dataset, dir string) (Outcome, error) {
	logger := im.logger()
	ResolveOrphans(ds, logger)
	if len(ds.Courses) == 0 && len(ds.Lessons) == 0 {
		err := inputError("csv produced no courses or lessons")
		logger.Error("nothing to import", "dropped_rows", ds.DroppedRows, "error", err)
		return Outcome{}, err
	}
	logger.Info("dataset summary", "summary", Summarize(ds))

	var artifacts []string
	if dir != "" {
		cp, lp, err := ExportArtifacts(ds, dir)
		if err != nil {
			return Outcome{}, fmt.Errorf("export artifacts: %w", err)
		}
		artifacts = []string{cp, lp}
		logger.Info("exported artifacts", "courses", cp, "lessons", lp)
	}

	stats, err := im.Import(ctx, ds)
	if err != nil {
		return Outcome{Stats: stats, Artifacts: artifacts}, err
	}
	return im.judge(stats, DefaultThresholdPolicy, artifacts), nil
}

// ImportArtifacts imports a courses/lessons artifact pair. Unless
// Options.Policy is set, success requires zero per-record errors.
func (im *Importer) ImportArtifacts(ctx context.Context, coursesPath, lessonsPath string) (Outcome, error) {
	logger := im.logger()
	logger.Info("importing artifacts", "courses", coursesPath, "lessons", lessonsPath)

	ds, err := LoadArtifacts(coursesPath, lessonsPath, logger)
	if err != nil {
		logger.Error("artifact load failed", "error", err)
		return Outcome{}, err
	}

	stats, err := im.Import(ctx, ds)
	if err != nil {
		return Outcome{Stats: stats}, err
	}
	return im.judge(stats, ZeroErrorsPolicy{}, nil), nil
}
