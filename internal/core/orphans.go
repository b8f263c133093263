package core

import (
	"log/slog"
	"sort"

	"github.com/JonMunkholm/courseimport/internal/logging"
)

// ResolveOrphans attaches every unresolved lesson, and every lesson whose
// resolved index names no course, to the placeholder course.
//
// Afterwards the dataset holds exactly one placeholder course if any lesson
// references it, and none otherwise. The placeholder lists the distinct
// non-empty course names that failed to match. No lesson is removed.
func ResolveOrphans(ds *Dataset, logger *slog.Logger) {
	logger = logging.OrDefault(logger)

	known := make(map[int]bool, len(ds.Courses))
	for _, c := range ds.Courses {
		if !c.Placeholder {
			known[c.OriginalIdx] = true
		}
	}

	unmatched := make(map[string]bool)
	orphans := 0
	for i := range ds.Lessons {
		l := &ds.Lessons[i]
		switch l.Course.Kind() {
		case RefPlaceholder:
			orphans++
			if l.CourseName != "" {
				unmatched[l.CourseName] = true
			}
			continue
		case RefResolved:
			if idx, _ := l.Course.Index(); known[idx] {
				continue
			}
		}
		l.Course = Placeholder()
		orphans++
		if l.CourseName != "" {
			unmatched[l.CourseName] = true
		}
	}
	ds.OrphanedLessons = orphans

	names := make([]string, 0, len(unmatched))
	for n := range unmatched {
		names = append(names, n)
	}
	sort.Strings(names)

	// Keep at most one placeholder, and only when something points at it.
	courses := make([]Course, 0, len(ds.Courses)+1)
	existing := -1
	for _, c := range ds.Courses {
		if !c.Placeholder {
			courses = append(courses, c)
			continue
		}
		if existing < 0 && orphans > 0 {
			existing = len(courses)
			courses = append(courses, c)
		}
	}
	ds.Courses = courses

	if orphans == 0 {
		return
	}
	if existing < 0 {
		ds.Courses = append(ds.Courses, NewPlaceholderCourse(names))
	} else {
		ds.Courses[existing] = mergePlaceholder(ds.Courses[existing], names)
	}

	logger.Warn("attached orphaned lessons to placeholder course",
		"lessons", orphans, "unmatched_courses", names)
}

func mergePlaceholder(c Course, names []string) Course {
	seen := make(map[string]bool, len(c.UnmatchedNames)+len(names))
	merged := make([]string, 0, len(c.UnmatchedNames)+len(names))
	for _, n := range append(append([]string(nil), c.UnmatchedNames...), names...) {
		if !seen[n] {
			seen[n] = true
			merged = append(merged, n)
		}
	}
	sort.Strings(merged)

	out := NewPlaceholderCourse(merged)
	// A placeholder loaded from artifacts may carry edited attributes.
	if c.Pilar != "" {
		out.Pilar = c.Pilar
	}
	if c.Tipo != "" {
		out.Tipo = c.Tipo
	}
	if c.Nome != "" {
		out.Nome = c.Nome
	}
	return out
}
