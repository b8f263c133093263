// Package schema describes the accepted CSV column layouts for course exports.
//
// A Columns value maps every logical field the normalizer needs onto the
// header names that may carry it in a source file. Two layouts are built in
// (the Portuguese test-data export and the snake_case production export);
// additional layouts can be loaded from YAML.
package schema

import (
	"fmt"
	"strings"
)

// Field identifies a logical input column.
type Field int

const (
	CourseName Field = iota
	Pilar
	Tipo
	LessonName
	Module
	Transcription
	YoutubeLink
	VideoSummary

	numFields
)

var fieldNames = [numFields]string{
	CourseName:    "course_name",
	Pilar:         "pilar",
	Tipo:          "tipo",
	LessonName:    "lesson_name",
	Module:        "module",
	Transcription: "transcription",
	YoutubeLink:   "youtube_link",
	VideoSummary:  "video_summary",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields returns every logical field in declaration order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Columns is one accepted column layout.
//
// Each field lists the header names that may carry it; the first one present
// in a file wins. Detect lists headers whose joint presence identifies the
// layout during auto-detection.
type Columns struct {
	Name   string   `yaml:"name" json:"name"`
	Detect []string `yaml:"detect,omitempty" json:"detect,omitempty"`

	CourseName    []string `yaml:"course_name" json:"course_name"`
	Pilar         []string `yaml:"pilar" json:"pilar"`
	Tipo          []string `yaml:"tipo" json:"tipo"`
	LessonName    []string `yaml:"lesson_name" json:"lesson_name"`
	Module        []string `yaml:"module" json:"module"`
	Transcription []string `yaml:"transcription" json:"transcription"`
	YoutubeLink   []string `yaml:"youtube_link" json:"youtube_link"`
	VideoSummary  []string `yaml:"video_summary" json:"video_summary"`
}

// Candidates returns the header names configured for f.
func (c Columns) Candidates(f Field) []string {
	switch f {
	case CourseName:
		return c.CourseName
	case Pilar:
		return c.Pilar
	case Tipo:
		return c.Tipo
	case LessonName:
		return c.LessonName
	case Module:
		return c.Module
	case Transcription:
		return c.Transcription
	case YoutubeLink:
		return c.YoutubeLink
	case VideoSummary:
		return c.VideoSummary
	}
	return nil
}

// requiredFields must be mapped by every layout.
var requiredFields = []Field{CourseName, LessonName, Transcription}

// Validate checks the layout is usable and reports every problem at once.
func (c Columns) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	for _, f := range requiredFields {
		if len(c.Candidates(f)) == 0 {
			errs = append(errs, fmt.Sprintf("%s must map at least one column", f))
		}
	}

	claimed := make(map[string]Field)
	for _, f := range Fields() {
		for _, name := range c.Candidates(f) {
			key := CleanHeader(name)
			if key == "" {
				errs = append(errs, fmt.Sprintf("%s has an empty column name", f))
				continue
			}
			if prev, ok := claimed[key]; ok && prev != f {
				errs = append(errs, fmt.Sprintf("column %q is mapped to both %s and %s", name, prev, f))
				continue
			}
			claimed[key] = f
		}
	}
	for _, d := range c.Detect {
		if CleanHeader(d) == "" {
			errs = append(errs, "detect has an empty column name")
		}
	}

	if len(errs) > 0 {
		name := c.Name
		if name == "" {
			name = "<unnamed>"
		}
		return fmt.Errorf("schema %s invalid:\n  - %s", name, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Matches reports whether header carries every Detect column.
// A layout with no Detect columns never matches.
func (c Columns) Matches(idx HeaderIndex) bool {
	if len(c.Detect) == 0 {
		return false
	}
	for _, d := range c.Detect {
		if _, ok := idx[CleanHeader(d)]; !ok {
			return false
		}
	}
	return true
}

// Bind resolves the layout against a file header.
// Only the transcription column is mandatory in the file itself; other
// fields that are absent read as empty strings.
func (c Columns) Bind(header []string) (*Binding, error) {
	idx := MakeHeaderIndex(header)
	b := &Binding{Schema: c.Name}
	for _, f := range Fields() {
		b.pos[f] = -1
		for _, name := range c.Candidates(f) {
			if p, ok := idx[CleanHeader(name)]; ok {
				b.pos[f] = p
				break
			}
		}
	}
	if b.pos[Transcription] < 0 {
		return nil, fmt.Errorf("missing required column %s (schema %s expects one of: %s)",
			Transcription, c.Name, strings.Join(c.Transcription, ", "))
	}
	return b, nil
}

// Binding is a Columns layout resolved to positions within one file.
type Binding struct {
	Schema string
	pos    [numFields]int
}

// Has reports whether f was found in the header.
func (b *Binding) Has(f Field) bool {
	return f >= 0 && f < numFields && b.pos[f] >= 0
}

// Missing returns the fields absent from the header.
func (b *Binding) Missing() []Field {
	var out []Field
	for _, f := range Fields() {
		if !b.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Get returns the raw value of f in row, or "" when the column is absent
// or the row is short.
func (b *Binding) Get(row []string, f Field) string {
	if !b.Has(f) {
		return ""
	}
	p := b.pos[f]
	if p >= len(row) {
		return ""
	}
	return row[p]
}
