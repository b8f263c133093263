package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdPolicy(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  bool
	}{
		{"everything processed", Stats{CoursesTotal: 10, CoursesProcessed: 10, LessonsTotal: 10, LessonsProcessed: 10}, true},
		{"nine tenths of lessons", Stats{CoursesTotal: 10, CoursesProcessed: 10, LessonsTotal: 10, LessonsProcessed: 9}, true},
		{"eight tenths of lessons", Stats{CoursesTotal: 10, CoursesProcessed: 10, LessonsTotal: 10, LessonsProcessed: 8}, false},
		{"one course missing", Stats{CoursesTotal: 10, CoursesProcessed: 9, LessonsTotal: 10, LessonsProcessed: 10}, false},
		{"rounding at the boundary", Stats{CoursesTotal: 3, CoursesProcessed: 3, LessonsTotal: 30, LessonsProcessed: 27}, true},
		{"empty run", Stats{}, true},
		{"errors alone do not fail", Stats{CoursesTotal: 1, CoursesProcessed: 1, LessonsTotal: 10, LessonsProcessed: 9, Errors: []string{"x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultThresholdPolicy.Success(tt.stats))
		})
	}
}

func TestZeroErrorsPolicy(t *testing.T) {
	p := ZeroErrorsPolicy{}
	assert.True(t, p.Success(Stats{}))
	assert.False(t, p.Success(Stats{Errors: []string{"[ST001] lesson \"x\": duplicate key"}}))
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"threshold", " Threshold "} {
		p, err := PolicyByName(name)
		require.NoError(t, err)
		assert.Equal(t, "threshold", p.Name())
	}
	for _, name := range []string{"zero-errors", "zero_errors", "strict"} {
		p, err := PolicyByName(name)
		require.NoError(t, err)
		assert.Equal(t, "zero-errors", p.Name())
	}
	_, err := PolicyByName("lenient")
	assert.Error(t, err)
}
