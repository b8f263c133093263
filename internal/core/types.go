package core

import (
	"fmt"
	"strings"
	"time"
)

// PlaceholderName is the nome of the synthetic course that collects lessons
// whose declared course could not be matched.
const PlaceholderName = "Placeholder Course for Orphaned Lessons"

// PlaceholderIndex is the reserved OriginalIdx of the placeholder course.
const PlaceholderIndex = -1

// PlaceholderCategory fills pilar and tipo of the placeholder course.
const PlaceholderCategory = "Other"

// Course is a distinct course extracted from the source rows.
type Course struct {
	Pilar     string
	Tipo      string
	Nome      string
	Descricao string

	// OriginalIdx is the run-scoped first-seen position. It is never persisted.
	OriginalIdx int

	// Placeholder marks the synthetic course for orphaned lessons.
	Placeholder bool

	// UnmatchedNames lists, sorted, the distinct declared course names that
	// were attached to the placeholder. Empty names are omitted.
	UnmatchedNames []string
}

// NewPlaceholderCourse returns the placeholder course for the given
// unmatched source names.
func NewPlaceholderCourse(unmatched []string) Course {
	c := Course{
		Pilar:          PlaceholderCategory,
		Tipo:           PlaceholderCategory,
		Nome:           PlaceholderName,
		OriginalIdx:    PlaceholderIndex,
		Placeholder:    true,
		UnmatchedNames: unmatched,
	}
	c.Descricao = placeholderDescription(unmatched)
	return c
}

func placeholderDescription(unmatched []string) string {
	const base = "Automatically created to hold lessons with missing course references"
	if len(unmatched) == 0 {
		return base
	}
	return base + " from courses: " + joinNames(unmatched, 20)
}

func joinNames(names []string, max int) string {
	if len(names) <= max {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s, ... and %d more", strings.Join(names[:max], ", "), len(names)-max)
}

// defaultDescription is the descricao given to courses built from CSV rows.
func defaultDescription(nome string) string {
	return "Course imported from CSV: " + nome
}

// RefKind tags a CourseRef.
type RefKind int

const (
	// RefUnresolved means the declared course name matched no Course.
	RefUnresolved RefKind = iota
	// RefResolved points at a Course by OriginalIdx.
	RefResolved
	// RefPlaceholder points at the placeholder course.
	RefPlaceholder
)

func (k RefKind) String() string {
	switch k {
	case RefResolved:
		return "resolved"
	case RefPlaceholder:
		return "placeholder"
	default:
		return "unresolved"
	}
}

// CourseRef is a lesson's reference to its course.
// The zero value is Unresolved.
type CourseRef struct {
	kind RefKind
	idx  int
}

// Resolved references the course at idx.
func Resolved(idx int) CourseRef { return CourseRef{kind: RefResolved, idx: idx} }

// Unresolved is the reference of a lesson whose course was not matched.
func Unresolved() CourseRef { return CourseRef{kind: RefUnresolved} }

// Placeholder references the placeholder course.
func Placeholder() CourseRef { return CourseRef{kind: RefPlaceholder, idx: PlaceholderIndex} }

// Kind returns the reference's tag.
func (r CourseRef) Kind() RefKind { return r.kind }

// Index returns the referenced OriginalIdx. ok is false unless the
// reference is Resolved.
func (r CourseRef) Index() (idx int, ok bool) {
	if r.kind != RefResolved {
		return 0, false
	}
	return r.idx, true
}

// IsPlaceholder reports whether r points at the placeholder course.
func (r CourseRef) IsPlaceholder() bool { return r.kind == RefPlaceholder }

func (r CourseRef) String() string {
	if r.kind == RefResolved {
		return fmt.Sprintf("resolved(%d)", r.idx)
	}
	return r.kind.String()
}

// Lesson is one lesson row. Transcricao is never empty.
type Lesson struct {
	Nome         string
	Modulo       string
	Transcricao  string
	YoutubeLink  string
	VideoSummary string

	// CourseName is the cleaned course name the row declared, kept for
	// diagnostics. It may be empty.
	CourseName string

	Course CourseRef
}

// Dataset is the output of normalization and orphan resolution.
type Dataset struct {
	Courses []Course
	Lessons []Lesson

	// Schema is the column layout the rows were read with.
	Schema string

	// DroppedRows counts rows discarded for lacking a transcription.
	DroppedRows int

	// UnnamedLessons counts lessons whose lesson name was empty.
	UnnamedLessons int

	// OrphanedLessons counts lessons attached to the placeholder course.
	OrphanedLessons int

	// Errors are per-record problems found while reading the input. The
	// affected records were skipped.
	Errors []string
}

// Placeholder returns the placeholder course, if present.
func (d *Dataset) Placeholder() (Course, bool) {
	for _, c := range d.Courses {
		if c.Placeholder {
			return c, true
		}
	}
	return Course{}, false
}

// IDMap maps course OriginalIdx to persisted ID, with a dedicated slot for
// the placeholder course. It lives for one run.
type IDMap struct {
	byIdx       map[int]string
	placeholder string

	// placeholderFailed is set when writing the placeholder course failed
	// and the failure was already recorded.
	placeholderFailed bool
}

// NewIDMap creates an empty map.
func NewIDMap() *IDMap {
	return &IDMap{byIdx: make(map[int]string)}
}

// Set records the ID of the course at idx. PlaceholderIndex sets the
// placeholder slot.
func (m *IDMap) Set(idx int, id string) {
	if idx == PlaceholderIndex {
		m.placeholder = id
		return
	}
	m.byIdx[idx] = id
}

// Get returns the ID of the course at idx.
func (m *IDMap) Get(idx int) (string, bool) {
	if idx == PlaceholderIndex {
		return m.placeholder, m.placeholder != ""
	}
	id, ok := m.byIdx[idx]
	return id, ok
}

// SetPlaceholder records the placeholder course's ID.
func (m *IDMap) SetPlaceholder(id string) { m.placeholder = id }

// MarkPlaceholderFailed records that the placeholder course could not be
// written and the error was reported.
func (m *IDMap) MarkPlaceholderFailed() { m.placeholderFailed = true }

// PlaceholderFailed reports whether MarkPlaceholderFailed was called.
func (m *IDMap) PlaceholderFailed() bool { return m.placeholderFailed }

// PlaceholderID returns the placeholder course's ID.
func (m *IDMap) PlaceholderID() (string, bool) {
	return m.placeholder, m.placeholder != ""
}

// Lookup resolves a CourseRef to a persisted ID.
func (m *IDMap) Lookup(ref CourseRef) (string, bool) {
	switch ref.Kind() {
	case RefPlaceholder:
		return m.PlaceholderID()
	case RefResolved:
		idx, _ := ref.Index()
		return m.Get(idx)
	default:
		return "", false
	}
}

// Len returns the number of mapped courses, counting the placeholder.
func (m *IDMap) Len() int {
	n := len(m.byIdx)
	if m.placeholder != "" {
		n++
	}
	return n
}

// Stats aggregates the outcome of one import run.
type Stats struct {
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`
	Schema string `json:"schema,omitempty"`

	CoursesTotal     int `json:"courses_total"`
	CoursesProcessed int `json:"courses_processed"`
	LessonsTotal     int `json:"lessons_total"`
	LessonsProcessed int `json:"lessons_processed"`

	// LessonsSkipped counts lessons whose course had no persisted ID.
	LessonsSkipped int `json:"lessons_skipped"`

	// DuplicateLessons counts lessons not written because an earlier lesson
	// of the same run had the same (course_id, modulo, nome).
	DuplicateLessons int `json:"duplicate_lessons"`

	DroppedRows     int `json:"dropped_rows"`
	UnnamedLessons  int `json:"unnamed_lessons"`
	OrphanedLessons int `json:"orphaned_lessons"`

	Errors          []string  `json:"errors"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
}

// ErrorCount returns the number of per-record errors.
func (s Stats) ErrorCount() int { return len(s.Errors) }
