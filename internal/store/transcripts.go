package store

import (
	"context"
	"fmt"
)

// Transcript is a lesson's transcription together with the context needed to
// present it: lesson and module names and the owning course.
type Transcript struct {
	LessonID      string `json:"lesson_id"`
	Lesson        string `json:"aula_nome"`
	Module        string `json:"modulo"`
	Transcription string `json:"transcription"`
	VideoSummary  string `json:"video_summary"`
	Course        string `json:"curso_nome"`
	Pilar         string `json:"pilar"`
	Tipo          string `json:"tipo"`
}

// Transcripts looks up lesson transcriptions through any Store.
type Transcripts struct {
	store Store
}

// NewTranscripts creates a lookup over st.
func NewTranscripts(st Store) *Transcripts {
	return &Transcripts{store: st}
}

// Lookup returns the transcript of lessonID, or ErrNotFound.
func (t *Transcripts) Lookup(ctx context.Context, lessonID string) (*Transcript, error) {
	lessons, err := t.store.Select(ctx, TableLessons,
		[]string{"id", "course_id", "nome", "modulo", "transcription", "video_summary"},
		Eq("id", lessonID))
	if err != nil {
		return nil, fmt.Errorf("lookup lesson %s: %w", lessonID, err)
	}
	if len(lessons) == 0 {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, ErrNotFound)
	}
	l := lessons[0]

	tr := &Transcript{
		LessonID:      lessonID,
		Lesson:        l.String("nome"),
		Module:        l.String("modulo"),
		Transcription: l.String("transcription"),
		VideoSummary:  l.String("video_summary"),
	}

	courseID := l.String("course_id")
	if courseID == "" {
		return tr, nil
	}
	courses, err := t.store.Select(ctx, TableCourses, []string{"nome", "pilar", "tipo"}, Eq("id", courseID))
	if err != nil {
		return nil, fmt.Errorf("lookup course %s: %w", courseID, err)
	}
	if len(courses) > 0 {
		tr.Course = courses[0].String("nome")
		tr.Pilar = courses[0].String("pilar")
		tr.Tipo = courses[0].String("tipo")
	}
	return tr, nil
}
