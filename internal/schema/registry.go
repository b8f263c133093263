package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in layout names.
const (
	NameTestData   = "testdata"
	NameProduction = "production"
)

// TestData is the spreadsheet export used for test fixtures:
// Pilar,Tipo,Nome,Módulo,Aula,transcription,youtube_link,video_summary.
var TestData = Columns{
	Name:          NameTestData,
	Detect:        []string{"Pilar", "Tipo", "Nome"},
	CourseName:    []string{"Nome"},
	Pilar:         []string{"Pilar"},
	Tipo:          []string{"Tipo"},
	LessonName:    []string{"Aula"},
	Module:        []string{"Módulo", "Modulo", "MÃ³dulo"},
	Transcription: []string{"transcription"},
	YoutubeLink:   []string{"youtube_link"},
	VideoSummary:  []string{"video_summary"},
}

// Production is the snake_case export produced by the content platform.
var Production = Columns{
	Name:          NameProduction,
	Detect:        []string{"course_name", "lesson_name"},
	CourseName:    []string{"course_name"},
	Pilar:         []string{"pilar"},
	Tipo:          []string{"tipo"},
	LessonName:    []string{"lesson_name"},
	Module:        []string{"module"},
	Transcription: []string{"transcription"},
	YoutubeLink:   []string{"youtube_link"},
	VideoSummary:  []string{"video_summary"},
}

var (
	registry   = make(map[string]Columns)
	order      []string
	registryMu sync.RWMutex
)

func init() {
	Register(TestData)
	Register(Production)
}

// Register adds a layout. Registration order is detection order.
// Panics if the layout is invalid or the name is taken.
func Register(c Columns) {
	if err := c.Validate(); err != nil {
		panic(err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[c.Name]; exists {
		panic(fmt.Sprintf("schema already registered: %s", c.Name))
	}
	registry[c.Name] = c
	order = append(order, c.Name)
}

// Get returns a layout by name.
func Get(name string) (Columns, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c, ok := registry[name]
	return c, ok
}

// Names returns the registered layout names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := append([]string(nil), order...)
	sort.Strings(out)
	return out
}

// Detect picks the first registered layout whose Detect columns are all
// present in header. When none match, Production is returned with ok=false.
func Detect(header []string) (c Columns, ok bool) {
	idx := MakeHeaderIndex(header)

	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range order {
		if registry[name].Matches(idx) {
			return registry[name], true
		}
	}
	return Production, false
}

// Resolve returns the named layout, or detects one from header when name is
// empty or "auto".
func Resolve(name string, header []string) (Columns, error) {
	if name == "" || name == "auto" {
		c, _ := Detect(header)
		return c, nil
	}
	c, ok := Get(name)
	if !ok {
		return Columns{}, fmt.Errorf("unknown schema %q (available: %v)", name, Names())
	}
	return c, nil
}
