package schema

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// LoadFile reads a layout from a YAML file and validates it.
//
//	name: legacy
//	detect: [curso, aula]
//	course_name: [curso]
//	lesson_name: [aula]
//	transcription: [transcricao, transcription]
func LoadFile(path string) (Columns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Columns{}, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layout. Unknown keys are rejected.
func Parse(data []byte) (Columns, error) {
	var c Columns
	if err := yaml.UnmarshalWithOptions(data, &c, yaml.Strict()); err != nil {
		return Columns{}, fmt.Errorf("parse schema: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Columns{}, err
	}
	return c, nil
}
