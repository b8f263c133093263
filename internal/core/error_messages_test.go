package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/courseimport/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"store duplicate", &store.Error{Op: "insert", Table: "courses", Err: store.ErrDuplicate}, "ST001"},
		{"postgres unique violation", errors.New("ERROR: duplicate key value violates unique constraint \"courses_nome_key\""), "ST001"},
		{"foreign key", errors.New("insert or update on table \"lessons\" violates foreign key constraint"), "ST002"},
		{"empty write result", fmt.Errorf("insert: %w", store.ErrEmptyResult), "ST003"},
		{"throttled", errors.New("http error: POST /rest/v1/lessons status=429 body=slow down"), "ST004"},
		{"unreachable", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "ST005"},
		{"service unavailable", errors.New("http error: GET /rest/v1/courses status=503"), "ST005"},
		{"timeout", errors.New("context deadline exceeded"), "ST006"},
		{"bad key", errors.New("http error: GET /rest/v1/courses status=401"), "ST007"},
		{"missing column", fmt.Errorf("%w: header: missing required column transcription", ErrInput), "IN001"},
		{"bad artifact", errors.New("parse error in courses: invalid character 'x'"), "IN002"},
		{"incomplete artifact record", errNoOriginalIdx, "IN003"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("DUPLICATE KEY"), "ST001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("status=429"))

	expected := "The store throttled the request (Code: ST004). Increase IMPORT_DELAY"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("duplicate key"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	got := recordError("lesson", "Aula 1", errors.New("connection reset by peer"))
	want := `[ST005] lesson "Aula 1": connection reset by peer`
	if got != want {
		t.Errorf("recordError() = %q, want %q", got, want)
	}
}
