package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   string
		wantOK bool
	}{
		{
			name:   "test data header",
			header: []string{"Pilar", "Tipo", "Nome", "Módulo", "Aula", "transcription", "youtube_link", "video_summary"},
			want:   NameTestData,
			wantOK: true,
		},
		{
			name:   "production header",
			header: []string{"course_name", "pilar", "tipo", "lesson_name", "module", "transcription"},
			want:   NameProduction,
			wantOK: true,
		},
		{
			name:   "test data wins when both present",
			header: []string{"Pilar", "Tipo", "Nome", "course_name", "lesson_name", "transcription"},
			want:   NameTestData,
			wantOK: true,
		},
		{
			name:   "BOM and case are ignored",
			header: []string{"\ufeffPILAR", " tipo ", "nome", "transcription"},
			want:   NameTestData,
			wantOK: true,
		},
		{
			name:   "no match falls back to production",
			header: []string{"transcription", "something"},
			want:   NameProduction,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.header)
			if got.Name != tt.want {
				t.Errorf("Detect() = %q, want %q", got.Name, tt.want)
			}
			if ok != tt.wantOK {
				t.Errorf("Detect() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestBind(t *testing.T) {
	header := []string{"Pilar", "Tipo", "Nome", "Modulo", "Aula", "transcription"}
	b, err := TestData.Bind(header)
	require.NoError(t, err)
	assert.Equal(t, NameTestData, b.Schema)

	row := []string{"IA", "Curso", "A", "M1", "L1", "t1"}
	assert.Equal(t, "A", b.Get(row, CourseName))
	assert.Equal(t, "M1", b.Get(row, Module), "unaccented alias should bind")
	assert.Equal(t, "t1", b.Get(row, Transcription))
	assert.Equal(t, "", b.Get(row, YoutubeLink))
	assert.Equal(t, []Field{YoutubeLink, VideoSummary}, b.Missing())

	assert.Equal(t, "", b.Get([]string{"IA"}, Transcription), "short rows read as empty")
}

func TestBind_DecomposedHeader(t *testing.T) {
	// "Módulo" with a combining acute accent.
	header := []string{"Nome", "Mo\u0301dulo", "Aula", "transcription"}
	b, err := TestData.Bind(header)
	require.NoError(t, err)
	assert.True(t, b.Has(Module))
}

func TestBind_MissingTranscription(t *testing.T) {
	_, err := Production.Bind([]string{"course_name", "lesson_name"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column transcription")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, TestData.Validate())
	assert.NoError(t, Production.Validate())

	err := Columns{
		CourseName: []string{"x"},
		LessonName: []string{"X"},
	}.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "transcription must map at least one column")
	assert.Contains(t, msg, `column "X" is mapped to both course_name and lesson_name`)
}

func TestResolve(t *testing.T) {
	c, err := Resolve("production", nil)
	require.NoError(t, err)
	assert.Equal(t, NameProduction, c.Name)

	c, err = Resolve("auto", []string{"Pilar", "Tipo", "Nome", "transcription"})
	require.NoError(t, err)
	assert.Equal(t, NameTestData, c.Name)

	_, err = Resolve("nope", nil)
	assert.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	assert.Panics(t, func() { Register(TestData) })
	assert.Equal(t, []string{NameProduction, NameTestData}, Names())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	content := strings.Join([]string{
		"name: legacy",
		"detect: [curso, aula]",
		"course_name: [curso]",
		"lesson_name: [aula]",
		"module: [modulo]",
		"transcription: [transcricao, transcription]",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy", c.Name)
	assert.Equal(t, []string{"transcricao", "transcription"}, c.Transcription)

	b, err := c.Bind([]string{"curso", "aula", "transcricao"})
	require.NoError(t, err)
	assert.Equal(t, "t", b.Get([]string{"A", "L", "t"}, Transcription))
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("name: x\ncourse_name: [c]\nlesson_name: [l]\ntranscription: [t]\nbogus: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Parse([]byte("name: x\ncourse_name: [c]\n"))
	assert.Error(t, err)
}
