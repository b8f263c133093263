package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/courseimport/internal/logging"
)

// Artifact file names written by ExportArtifacts.
const (
	CoursesFile = "courses.json"
	LessonsFile = "lessons.json"
)

// placeholderToken is the deferred reference of placeholder lessons.
const placeholderToken = "{course_placeholder}"

// CourseToken returns the deferred reference token for course idx.
func CourseToken(idx int) string {
	return "{course_" + strconv.Itoa(idx) + "}"
}

// ParseCourseToken decodes a token produced by CourseToken or the
// placeholder token.
func ParseCourseToken(tok string) (CourseRef, bool) {
	if tok == placeholderToken {
		return Placeholder(), true
	}
	if !strings.HasPrefix(tok, "{course_") || !strings.HasSuffix(tok, "}") {
		return CourseRef{}, false
	}
	n, err := strconv.Atoi(tok[len("{course_") : len(tok)-1])
	if err != nil {
		return CourseRef{}, false
	}
	if n == PlaceholderIndex {
		return Placeholder(), true
	}
	if n < 0 {
		return CourseRef{}, false
	}
	return Resolved(n), true
}

type courseRecord struct {
	Pilar            string   `json:"pilar"`
	Tipo             string   `json:"tipo"`
	Nome             string   `json:"nome"`
	Descricao        string   `json:"descricao"`
	OriginalIdx      *int     `json:"original_idx"`
	Placeholder      bool     `json:"placeholder,omitempty"`
	UnmatchedCourses []string `json:"unmatched_courses,omitempty"`
}

type lessonRecord struct {
	Nome              string    `json:"nome"`
	Modulo            string    `json:"modulo"`
	Transcricao       string    `json:"transcricao"`
	YoutubeLink       string    `json:"youtube_link"`
	VideoSummary      string    `json:"video_summary"`
	CourseName        string    `json:"course_name,omitempty"`
	CourseIdx         *looseInt `json:"course_idx"`
	CourseID          *string   `json:"course_id"`
	CourseRef         string    `json:"course_ref,omitempty"`
	PlaceholderCourse bool      `json:"placeholder_course,omitempty"`
}

// looseInt accepts a JSON number or a numeric string.
type looseInt int

func (n *looseInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("course_idx %s: %w", b, err)
	}
	*n = looseInt(v)
	return nil
}

func toCourseRecord(c Course) courseRecord {
	idx := c.OriginalIdx
	return courseRecord{
		Pilar:            c.Pilar,
		Tipo:             c.Tipo,
		Nome:             c.Nome,
		Descricao:        c.Descricao,
		OriginalIdx:      &idx,
		Placeholder:      c.Placeholder,
		UnmatchedCourses: c.UnmatchedNames,
	}
}

func toLessonRecord(l Lesson) lessonRecord {
	rec := lessonRecord{
		Nome:         l.Nome,
		Modulo:       l.Modulo,
		Transcricao:  l.Transcricao,
		YoutubeLink:  l.YoutubeLink,
		VideoSummary: l.VideoSummary,
		CourseName:   l.CourseName,
		CourseRef:    l.Course.Kind().String(),
	}
	switch l.Course.Kind() {
	case RefResolved:
		idx, _ := l.Course.Index()
		n, tok := looseInt(idx), CourseToken(idx)
		rec.CourseIdx, rec.CourseID = &n, &tok
	case RefPlaceholder:
		n, tok := looseInt(PlaceholderIndex), placeholderToken
		rec.CourseIdx, rec.CourseID = &n, &tok
		rec.PlaceholderCourse = true
	}
	return rec
}

// EncodeCourses writes courses as an indented JSON array.
func EncodeCourses(w io.Writer, courses []Course) error {
	recs := make([]courseRecord, len(courses))
	for i, c := range courses {
		recs[i] = toCourseRecord(c)
	}
	return encodeJSON(w, recs)
}

// EncodeLessons writes lessons as an indented JSON array, rendering each
// course reference as a deferred token.
func EncodeLessons(w io.Writer, lessons []Lesson) error {
	recs := make([]lessonRecord, len(lessons))
	for i, l := range lessons {
		recs[i] = toLessonRecord(l)
	}
	return encodeJSON(w, recs)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExportArtifacts writes courses.json and lessons.json into dir, creating
// it if needed, and returns both paths.
func ExportArtifacts(ds *Dataset, dir string) (coursesPath, lessonsPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create artifact dir: %w", err)
	}
	coursesPath = filepath.Join(dir, CoursesFile)
	lessonsPath = filepath.Join(dir, LessonsFile)

	if err := writeFile(coursesPath, func(w io.Writer) error { return EncodeCourses(w, ds.Courses) }); err != nil {
		return "", "", err
	}
	if err := writeFile(lessonsPath, func(w io.Writer) error { return EncodeLessons(w, ds.Lessons) }); err != nil {
		return "", "", err
	}
	return coursesPath, lessonsPath, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ArtifactsExist reports whether both artifact files are present in dir.
func ArtifactsExist(dir string) bool {
	for _, name := range []string{CoursesFile, LessonsFile} {
		if st, err := os.Stat(filepath.Join(dir, name)); err != nil || st.IsDir() {
			return false
		}
	}
	return true
}

// LoadArtifacts reads a courses/lessons artifact pair.
func LoadArtifacts(coursesPath, lessonsPath string, logger *slog.Logger) (*Dataset, error) {
	cf, err := os.Open(coursesPath)
	if err != nil {
		return nil, wrapInput("open courses", err)
	}
	defer cf.Close()

	lf, err := os.Open(lessonsPath)
	if err != nil {
		return nil, wrapInput("open lessons", err)
	}
	defer lf.Close()

	return DecodeArtifacts(cf, lf, logger)
}

// DecodeArtifacts parses courses and lessons artifacts.
//
// Files written before course_ref existed are accepted: a lesson with
// placeholder_course or course_idx -1 is a placeholder lesson, a
// non-negative course_idx is resolved and anything else is unresolved.
// A course is the placeholder when flagged, indexed -1 or named
// PlaceholderName. A course without original_idx is skipped and reported
// in Dataset.Errors. Lessons without a transcription are dropped.
func DecodeArtifacts(courses, lessons io.Reader, logger *slog.Logger) (*Dataset, error) {
	logger = logging.OrDefault(logger)

	var crecs []courseRecord
	if err := json.NewDecoder(courses).Decode(&crecs); err != nil {
		return nil, wrapInput("parse error in courses", err)
	}
	var lrecs []lessonRecord
	if err := json.NewDecoder(lessons).Decode(&lrecs); err != nil {
		return nil, wrapInput("parse error in lessons", err)
	}

	ds := &Dataset{Schema: "artifacts"}
	seen := make(map[int]bool, len(crecs))
	for i, rec := range crecs {
		isPlaceholder := rec.Placeholder || rec.Nome == PlaceholderName
		if rec.OriginalIdx == nil && !isPlaceholder {
			logger.Warn("skipping artifact course without original_idx", "record", i, "nome", rec.Nome)
			ds.Errors = append(ds.Errors, recordError("course", rec.Nome, errNoOriginalIdx))
			continue
		}
		c := Course{
			Pilar:          rec.Pilar,
			Tipo:           rec.Tipo,
			Nome:           rec.Nome,
			Descricao:      rec.Descricao,
			OriginalIdx:    PlaceholderIndex,
			UnmatchedNames: rec.UnmatchedCourses,
		}
		if rec.OriginalIdx != nil {
			c.OriginalIdx = *rec.OriginalIdx
		}
		if isPlaceholder || c.OriginalIdx == PlaceholderIndex {
			c.Placeholder = true
			c.OriginalIdx = PlaceholderIndex
		} else {
			if c.OriginalIdx < 0 {
				return nil, inputError("course %q has invalid original_idx %d", c.Nome, c.OriginalIdx)
			}
			if seen[c.OriginalIdx] {
				return nil, inputError("duplicate original_idx %d", c.OriginalIdx)
			}
			seen[c.OriginalIdx] = true
		}
		ds.Courses = append(ds.Courses, c)
	}

	for _, rec := range lrecs {
		if strings.TrimSpace(rec.Transcricao) == "" {
			ds.DroppedRows++
			continue
		}
		l := Lesson{
			Nome:         rec.Nome,
			Modulo:       rec.Modulo,
			Transcricao:  rec.Transcricao,
			YoutubeLink:  rec.YoutubeLink,
			VideoSummary: rec.VideoSummary,
			CourseName:   rec.CourseName,
			Course:       decodeRef(rec),
		}
		if l.Nome == "" {
			ds.UnnamedLessons++
		}
		if idx, ok := l.Course.Index(); ok && !seen[idx] {
			logger.Warn("lesson references unknown course index", "lesson", l.Nome, "course_idx", idx)
		}
		ds.Lessons = append(ds.Lessons, l)
	}

	if ds.DroppedRows > 0 {
		logger.Warn("dropped artifact lessons without transcription", "count", ds.DroppedRows)
	}
	return ds, nil
}

func decodeRef(rec lessonRecord) CourseRef {
	switch rec.CourseRef {
	case "placeholder":
		return Placeholder()
	case "unresolved":
		return Unresolved()
	case "resolved":
		if rec.CourseIdx != nil && int(*rec.CourseIdx) >= 0 {
			return Resolved(int(*rec.CourseIdx))
		}
	}

	if rec.PlaceholderCourse {
		return Placeholder()
	}
	if rec.CourseIdx != nil {
		switch idx := int(*rec.CourseIdx); {
		case idx == PlaceholderIndex:
			return Placeholder()
		case idx >= 0:
			return Resolved(idx)
		}
	}
	if rec.CourseID != nil {
		if ref, ok := ParseCourseToken(*rec.CourseID); ok {
			return ref
		}
	}
	return Unresolved()
}

// BoundLesson is a lesson with its deferred course reference replaced by
// a persisted course ID.
type BoundLesson struct {
	Lesson
	CourseID string
}

// Bind substitutes the persisted ID for l's course reference.
func (m *IDMap) Bind(l Lesson) (BoundLesson, bool) {
	id, ok := m.Lookup(l.Course)
	return BoundLesson{Lesson: l, CourseID: id}, ok
}

// BindCourseIDs binds every lesson. Lessons whose course has no ID keep an
// empty CourseID and are reported in missing by position.
func BindCourseIDs(lessons []Lesson, ids *IDMap) (bound []BoundLesson, missing []int) {
	bound = make([]BoundLesson, len(lessons))
	for i, l := range lessons {
		b, ok := ids.Bind(l)
		bound[i] = b
		if !ok {
			missing = append(missing, i)
		}
	}
	return bound, missing
}
