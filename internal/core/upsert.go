package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/store"
)

// DefaultDelay is the pause between course store calls.
const DefaultDelay = 500 * time.Millisecond

// MaxLoggedErrors caps how many per-record errors are logged in full.
const MaxLoggedErrors = 5

// DefaultCourseKey is the natural key used to find existing courses.
var DefaultCourseKey = []string{"nome"}

// LessonKey is the natural key used to find existing lessons.
var LessonKey = []string{"course_id", "modulo", "nome"}

// Action is what an upsert did with one record.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionReused   Action = "reused"
	ActionUpserted Action = "upserted"
	ActionDryRun   Action = "dry_run"

	// ActionDuplicate marks a lesson whose natural key was already written
	// earlier in the batch. It is not counted as processed.
	ActionDuplicate Action = "duplicate"
)

// BatchResult aggregates one upsert batch.
type BatchResult struct {
	Processed int
	Skipped   int
	Errors    []string
	Actions   map[Action]int
	Duration  time.Duration
}

func newBatchResult() BatchResult {
	return BatchResult{Actions: make(map[Action]int)}
}

// Upserter reconciles courses and lessons against a Store by natural key.
//
// Records are written one at a time in order. A failed record is logged,
// counted and skipped; the batch always continues. Upserter is not safe for
// concurrent use and assumes it is the only writer.
type Upserter struct {
	Store store.Store

	// Update rewrites existing rows; otherwise their IDs are reused as-is.
	Update bool

	// DryRun skips every store call and hands out synthetic IDs.
	DryRun bool

	// Delay pauses between course records, LessonDelay between lessons.
	Delay       time.Duration
	LessonDelay time.Duration

	// CourseKey overrides DefaultCourseKey.
	CourseKey []string

	// OnConflict uses the store's atomic upsert when it implements
	// store.Upserter. The natural key must be covered by a unique constraint.
	OnConflict bool

	Logger *slog.Logger

	// Sleep overrides the delay implementation. Tests set it to record pauses.
	Sleep func(context.Context, time.Duration) error
}

// DryRunCourseID is the synthetic ID handed out for course idx in dry runs.
func DryRunCourseID(idx int) string {
	if idx == PlaceholderIndex {
		return "dry-run-placeholder"
	}
	return "dry-run-course-" + strconv.Itoa(idx)
}

func (u *Upserter) logger() *slog.Logger { return logging.OrDefault(u.Logger) }

func (u *Upserter) courseKey() []string {
	if len(u.CourseKey) > 0 {
		return u.CourseKey
	}
	return DefaultCourseKey
}

func (u *Upserter) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 || u.DryRun {
		return nil
	}
	if u.Sleep != nil {
		return u.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func courseRecordFor(c Course) store.Record {
	return store.Record{
		"pilar": c.Pilar,
		"tipo":  c.Tipo,
		"nome":  c.Nome,
	}
}

func lessonRecordFor(b BoundLesson) store.Record {
	return store.Record{
		"course_id":     b.CourseID,
		"modulo":        b.Modulo,
		"nome":          b.Nome,
		"youtube_link":  b.YoutubeLink,
		"transcription": b.Transcricao,
		"video_summary": b.VideoSummary,
	}
}

func keyFilters(rec store.Record, key []string) []store.Filter {
	filters := make([]store.Filter, len(key))
	for i, col := range key {
		filters[i] = store.Eq(col, rec[col])
	}
	return filters
}

// UpsertCourses writes courses in order and returns the index→ID map.
//
// An existing row (found by the course key) is updated in place when Update
// is set and reused otherwise; a missing row is inserted. The ID is mapped
// in every branch. The only error returned is context cancellation.
func (u *Upserter) UpsertCourses(ctx context.Context, courses []Course) (*IDMap, BatchResult, error) {
	logger := u.logger()
	ids := NewIDMap()
	res := newBatchResult()
	start := time.Now()

	for i, c := range courses {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return ids, res, err
		}
		if i > 0 {
			if err := u.pause(ctx, u.Delay); err != nil {
				res.Duration = time.Since(start)
				return ids, res, err
			}
		}

		if u.DryRun {
			ids.Set(c.OriginalIdx, DryRunCourseID(c.OriginalIdx))
			res.Processed++
			res.Actions[ActionDryRun]++
			logger.Debug("dry run course", "nome", c.Nome, "idx", c.OriginalIdx)
			continue
		}

		id, action, err := u.upsertRow(ctx, store.TableCourses, courseRecordFor(c), u.courseKey(), u.Update)
		if err != nil {
			msg := recordError("course", c.Nome, err)
			logger.Error("course upsert failed", "nome", c.Nome, "idx", c.OriginalIdx, "error", err)
			res.Errors = append(res.Errors, msg)
			res.Skipped++
			if c.OriginalIdx == PlaceholderIndex {
				ids.MarkPlaceholderFailed()
			}
			continue
		}
		ids.Set(c.OriginalIdx, id)
		res.Processed++
		res.Actions[action]++
		logger.Debug("course "+string(action), "nome", c.Nome, "idx", c.OriginalIdx, "id", id)
	}

	res.Duration = time.Since(start)
	logger.Info("courses upserted",
		"processed", res.Processed,
		"failed", len(res.Errors),
		"elapsed", res.Duration.Round(10*time.Millisecond))
	return ids, res, nil
}

// UpsertLessons writes lessons bound through ids.
//
// Placeholder lessons use the placeholder course, which is created on first
// need when it is not in ids. A lesson whose course has no ID is skipped
// with a warning; no reference is ever invented. The only error returned is
// context cancellation.
func (u *Upserter) UpsertLessons(ctx context.Context, ds *Dataset, ids *IDMap) (BatchResult, error) {
	logger := u.logger()
	res := newBatchResult()
	start := time.Now()
	placeholderTried := false
	seen := make(map[string]int, len(ds.Lessons))

	for i, l := range ds.Lessons {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		if i > 0 {
			if err := u.pause(ctx, u.LessonDelay); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		}

		switch l.Course.Kind() {
		case RefUnresolved:
			logger.Warn("skipping lesson with unresolved course", "lesson", l.Nome, "course", l.CourseName)
			res.Skipped++
			continue
		case RefPlaceholder:
			if _, ok := ids.PlaceholderID(); !ok && !placeholderTried {
				placeholderTried = true
				if err := u.ensurePlaceholder(ctx, ds, ids); err != nil {
					logger.Error("placeholder course creation failed", "error", err)
					// A failure already recorded by the course batch is not counted twice.
					if !ids.PlaceholderFailed() {
						res.Errors = append(res.Errors, recordError("course", PlaceholderName, err))
						ids.MarkPlaceholderFailed()
					}
				}
			}
		}

		bound, ok := ids.Bind(l)
		if !ok {
			logger.Warn("skipping lesson with no course ID", "lesson", l.Nome, "course_ref", l.Course.String())
			res.Skipped++
			continue
		}

		key := bound.CourseID + "\x00" + bound.Modulo + "\x00" + bound.Nome
		if first, dup := seen[key]; dup {
			logger.Warn("skipping lesson with the same course, module and name as an earlier lesson",
				"lesson", l.Nome, "modulo", l.Modulo, "row", i, "first_row", first)
			res.Actions[ActionDuplicate]++
			continue
		}
		seen[key] = i

		if u.DryRun {
			res.Processed++
			res.Actions[ActionDryRun]++
			continue
		}

		id, action, err := u.upsertRow(ctx, store.TableLessons, lessonRecordFor(bound), LessonKey, u.Update)
		if err != nil {
			res.Errors = append(res.Errors, recordError("lesson", l.Nome, err))
			logger.Debug("lesson upsert failed", "lesson", l.Nome, "error", err)
			continue
		}
		res.Processed++
		res.Actions[action]++
		logger.Debug("lesson "+string(action), "lesson", l.Nome, "id", id)
	}

	res.Duration = time.Since(start)
	logger.Info("lessons upserted",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"duplicates", res.Actions[ActionDuplicate],
		"failed", len(res.Errors),
		"elapsed", res.Duration.Round(10*time.Millisecond))
	logging.LogErrorSummary(logger, "lesson upsert error", res.Errors, MaxLoggedErrors)
	return res, nil
}

// ensurePlaceholder finds or creates the placeholder course row.
func (u *Upserter) ensurePlaceholder(ctx context.Context, ds *Dataset, ids *IDMap) error {
	if u.DryRun {
		ids.SetPlaceholder(DryRunCourseID(PlaceholderIndex))
		return nil
	}
	c, ok := ds.Placeholder()
	if !ok {
		c = NewPlaceholderCourse(nil)
	}
	// An existing placeholder row is reused, never rewritten.
	id, action, err := u.upsertRow(ctx, store.TableCourses, courseRecordFor(c), u.courseKey(), false)
	if err != nil {
		return err
	}
	ids.SetPlaceholder(id)
	u.logger().Info("placeholder course ready", "id", id, "action", action)
	return nil
}

// upsertRow reconciles one record by natural key and returns its ID.
func (u *Upserter) upsertRow(ctx context.Context, table string, rec store.Record, key []string, update bool) (string, Action, error) {
	if up, ok := u.Store.(store.Upserter); ok && u.OnConflict {
		row, err := store.First(up.Upsert(ctx, table, rec, key, update))
		if err != nil {
			return "", "", err
		}
		return rowID(row, ActionUpserted)
	}

	existing, err := u.Store.Select(ctx, table, []string{"id"}, keyFilters(rec, key)...)
	if err != nil {
		return "", "", fmt.Errorf("lookup: %w", err)
	}

	if len(existing) > 0 {
		id, ok := existing[0].ID()
		if !ok {
			return "", "", fmt.Errorf("lookup: existing row has no id: %w", store.ErrEmptyResult)
		}
		if !update {
			return id, ActionReused, nil
		}
		row, err := store.First(u.Store.Update(ctx, table, rec, store.Eq("id", id)))
		if err != nil {
			return "", "", fmt.Errorf("update: %w", err)
		}
		if updated, ok := row.ID(); ok {
			id = updated
		}
		return id, ActionUpdated, nil
	}

	row, err := store.First(u.Store.Insert(ctx, table, rec))
	if err != nil {
		return "", "", fmt.Errorf("insert: %w", err)
	}
	return rowID(row, ActionInserted)
}

func rowID(row store.Record, action Action) (string, Action, error) {
	id, ok := row.ID()
	if !ok {
		return "", "", errors.New("row returned without id")
	}
	return id, action, nil
}
