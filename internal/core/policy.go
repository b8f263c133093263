package core

import (
	"fmt"
	"strings"
)

// SuccessPolicy judges whether an import run succeeded.
type SuccessPolicy interface {
	Name() string
	Success(s Stats) bool
}

// ThresholdPolicy passes when the processed share of courses and lessons
// both reach their minimum ratios. An empty total passes its check.
type ThresholdPolicy struct {
	MinCourseRatio float64
	MinLessonRatio float64
}

// DefaultThresholdPolicy requires every course and at least 90% of lessons.
var DefaultThresholdPolicy = ThresholdPolicy{MinCourseRatio: 1.0, MinLessonRatio: 0.9}

const ratioEpsilon = 1e-9

func (p ThresholdPolicy) Name() string { return "threshold" }

func (p ThresholdPolicy) Success(s Stats) bool {
	return meets(s.CoursesProcessed, s.CoursesTotal, p.MinCourseRatio) &&
		meets(s.LessonsProcessed, s.LessonsTotal, p.MinLessonRatio)
}

func meets(done, total int, min float64) bool {
	if total <= 0 {
		return true
	}
	return float64(done)/float64(total)+ratioEpsilon >= min
}

// ZeroErrorsPolicy passes when no per-record error was recorded.
type ZeroErrorsPolicy struct{}

func (ZeroErrorsPolicy) Name() string { return "zero-errors" }

func (ZeroErrorsPolicy) Success(s Stats) bool { return len(s.Errors) == 0 }

// PolicyByName returns a built-in policy: "threshold" or "zero-errors".
func PolicyByName(name string) (SuccessPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "threshold":
		return DefaultThresholdPolicy, nil
	case "zero-errors", "zero_errors", "strict":
		return ZeroErrorsPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown success policy %q (want threshold or zero-errors)", name)
	}
}
