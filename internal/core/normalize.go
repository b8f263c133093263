package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/schema"
)

// Normalizer turns raw CSV rows into a Dataset of distinct courses and
// their lessons.
type Normalizer struct {
	// Columns selects the column layout. When nil, Schema names a
	// registered layout; empty or "auto" detects it from the header.
	Columns *schema.Columns
	Schema  string

	Logger *slog.Logger
}

// NormalizeFile reads and normalizes the CSV at path.
func (n *Normalizer) NormalizeFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapInput("open csv", err)
	}
	defer f.Close()
	return n.NormalizeCSV(f)
}

// NormalizeCSV parses r as CSV with a header row and normalizes it.
// Invalid UTF-8 is replaced rather than rejected and a leading BOM is ignored.
func (n *Normalizer) NormalizeCSV(r io.Reader) (*Dataset, error) {
	records, err := newCSVReader(r).ReadAll()
	if err != nil {
		return nil, wrapInput("csv", err)
	}
	if len(records) == 0 {
		return nil, inputError("empty file: no header row")
	}
	return n.Normalize(records[0], records[1:])
}

// Normalize extracts courses and lessons from rows read under header.
//
// Rows without a transcription are dropped and counted. Courses are keyed
// by cleaned name in first-seen order and keep the pilar and tipo of their
// first row. Every surviving row yields one lesson, resolved to its course
// or left unresolved when the row names no course. If the input has rows
// but yields no course, the placeholder course is added immediately.
func (n *Normalizer) Normalize(header []string, rows [][]string) (*Dataset, error) {
	logger := logging.OrDefault(n.Logger)

	cols, err := n.columns(header)
	if err != nil {
		return nil, wrapInput("schema", err)
	}
	b, err := cols.Bind(header)
	if err != nil {
		return nil, wrapInput("header", err)
	}
	if missing := b.Missing(); len(missing) > 0 {
		logger.Warn("columns absent from header, values read as empty",
			"schema", cols.Name, "missing", fieldList(missing))
	}

	ds := &Dataset{Schema: cols.Name}
	byName := make(map[string]int)
	dataRows := 0

	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		dataRows++

		transcription := CleanText(b.Get(row, schema.Transcription))
		if transcription == "" {
			ds.DroppedRows++
			continue
		}

		courseName := CleanText(b.Get(row, schema.CourseName))
		if courseName != "" {
			if _, seen := byName[courseName]; !seen {
				idx := len(ds.Courses)
				byName[courseName] = idx
				ds.Courses = append(ds.Courses, Course{
					Pilar:       CleanText(b.Get(row, schema.Pilar)),
					Tipo:        CleanText(b.Get(row, schema.Tipo)),
					Nome:        courseName,
					Descricao:   defaultDescription(courseName),
					OriginalIdx: idx,
				})
			}
		}

		lesson := Lesson{
			Nome:         CleanText(b.Get(row, schema.LessonName)),
			Modulo:       CleanText(b.Get(row, schema.Module)),
			Transcricao:  transcription,
			YoutubeLink:  CleanText(b.Get(row, schema.YoutubeLink)),
			VideoSummary: CleanText(b.Get(row, schema.VideoSummary)),
			CourseName:   courseName,
			Course:       Unresolved(),
		}
		if idx, ok := byName[courseName]; ok {
			lesson.Course = Resolved(idx)
		}
		if lesson.Nome == "" {
			ds.UnnamedLessons++
			logger.Warn("lesson has no name", "course", courseName, "module", lesson.Modulo)
		}
		ds.Lessons = append(ds.Lessons, lesson)
	}

	if dataRows > 0 && len(ds.Courses) == 0 {
		logger.Warn("no valid courses found, creating placeholder course")
		ds.Courses = append(ds.Courses, NewPlaceholderCourse(nil))
	}

	if ds.DroppedRows > 0 {
		logger.Info("dropped rows without transcription", "count", ds.DroppedRows)
	}
	logger.Info("normalized csv",
		"schema", ds.Schema,
		"rows", dataRows,
		"courses", len(ds.Courses),
		"lessons", len(ds.Lessons))

	return ds, nil
}

func (n *Normalizer) columns(header []string) (schema.Columns, error) {
	if n.Columns != nil {
		return *n.Columns, n.Columns.Validate()
	}
	cols, err := schema.Resolve(n.Schema, header)
	if err != nil {
		return schema.Columns{}, err
	}
	logging.OrDefault(n.Logger).Debug("csv schema selected", "requested", n.Schema, "schema", cols.Name)
	return cols, nil
}

func fieldList(fields []schema.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

// newCSVReader decodes r as UTF-8 on the fly: a leading BOM is stripped
// and invalid bytes become U+FFFD, which CleanText later drops.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Summary is a human-oriented overview of a normalized dataset.
type Summary struct {
	Courses             int
	Lessons             int
	AvgLessonsPerCourse float64
	CoursesByPilar      map[string]int
	Placeholder         bool
}

// Summarize counts courses, lessons and courses per pilar. The placeholder
// course is excluded from the course counts.
func Summarize(ds *Dataset) Summary {
	s := Summary{CoursesByPilar: make(map[string]int), Lessons: len(ds.Lessons)}
	for _, c := range ds.Courses {
		if c.Placeholder {
			s.Placeholder = true
			continue
		}
		s.Courses++
		s.CoursesByPilar[c.Pilar]++
	}
	if s.Courses > 0 {
		attached := 0
		for _, l := range ds.Lessons {
			if l.Course.Kind() == RefResolved {
				attached++
			}
		}
		s.AvgLessonsPerCourse = float64(attached) / float64(s.Courses)
	}
	return s
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("courses", s.Courses),
		slog.Int("lessons", s.Lessons),
		slog.String("avg_lessons_per_course", fmt.Sprintf("%.1f", s.AvgLessonsPerCourse)),
		slog.Bool("placeholder", s.Placeholder),
	}
	for pilar, n := range s.CoursesByPilar {
		if pilar == "" {
			pilar = "(none)"
		}
		attrs = append(attrs, slog.Int("pilar."+pilar, n))
	}
	return slog.GroupValue(attrs...)
}
