package core

// # Error Codes Reference
//
// Per-record failures carry a short code so an operator reading the run
// report can tell a throttled request from a rejected row at a glance.
//
// # Store Errors (ST001-ST099)
//
//	ST001 - Duplicate: a row with the same natural key already exists
//	        Patterns: "duplicate", "unique constraint", "violates unique"
//	ST002 - Missing parent: the referenced course does not exist
//	        Patterns: "foreign key"
//	ST003 - Empty response: the store accepted the call but returned no row
//	        Patterns: "returned no rows"
//	ST004 - Rate limited: the store throttled the request
//	        Patterns: "status=429", "rate limit"
//	ST005 - Unavailable: the store could not be reached
//	        Patterns: "connection refused", "connection reset", "status=503", "no such host"
//	ST006 - Timeout
//	        Patterns: "timeout", "deadline exceeded"
//	ST007 - Unauthorized: credentials were rejected
//	        Patterns: "status=401", "status=403", "permission denied"
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Missing column
//	        Patterns: "missing required column"
//	IN002 - Unparseable file
//	        Patterns: "parse error", "invalid character", "cannot unmarshal"
//	IN003 - Incomplete record: an artifact record lacks a required field
//	        Patterns: "has no original_idx"

import (
	"fmt"
	"strings"
)

// UserMessage is a short, operator-facing description of a failure.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Reference code
}

// errorPattern maps a lowercase substring of an error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is matched in order; the first hit wins, so specific
// patterns come before general ones.
var errorPatterns = []errorPattern{
	// Store constraint errors
	{
		pattern: "duplicate",
		msg: UserMessage{
			Message: "A row with the same natural key already exists",
			Action:  "Re-run without concurrent writers or enable ON CONFLICT upserts",
			Code:    "ST001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A row with the same natural key already exists",
			Action:  "Re-run without concurrent writers or enable ON CONFLICT upserts",
			Code:    "ST001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A row with the same natural key already exists",
			Action:  "Re-run without concurrent writers or enable ON CONFLICT upserts",
			Code:    "ST001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "The referenced course does not exist",
			Action:  "Check that the course row was created before its lessons",
			Code:    "ST002",
		},
	},
	{
		pattern: "returned no rows",
		msg: UserMessage{
			Message: "The store returned no row for the write",
			Action:  "Check row-level security policies on the table",
			Code:    "ST003",
		},
	},

	// Store transport errors
	{
		pattern: "status=429",
		msg: UserMessage{
			Message: "The store throttled the request",
			Action:  "Increase IMPORT_DELAY",
			Code:    "ST004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "The store throttled the request",
			Action:  "Increase IMPORT_DELAY",
			Code:    "ST004",
		},
	},
	{
		pattern: "status=401",
		msg: UserMessage{
			Message: "The store rejected the credentials",
			Action:  "Check SUPABASE_SERVICE_KEY",
			Code:    "ST007",
		},
	},
	{
		pattern: "status=403",
		msg: UserMessage{
			Message: "The store rejected the credentials",
			Action:  "Check SUPABASE_SERVICE_KEY",
			Code:    "ST007",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The store rejected the credentials",
			Action:  "Check the database role's grants",
			Code:    "ST007",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the store",
			Action:  "Check the store URL and try again",
			Code:    "ST005",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The store connection was interrupted",
			Action:  "Try again",
			Code:    "ST005",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the store",
			Action:  "Check the store URL",
			Code:    "ST005",
		},
	},
	{
		pattern: "status=503",
		msg: UserMessage{
			Message: "The store is temporarily unavailable",
			Action:  "Try again later",
			Code:    "ST005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The store call timed out",
			Action:  "Try again or raise STORE_HTTP_TIMEOUT",
			Code:    "ST006",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The store call timed out",
			Action:  "Try again or raise STORE_HTTP_TIMEOUT",
			Code:    "ST006",
		},
	},

	// Input errors
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from the CSV",
			Action:  "Check the header against the selected schema",
			Code:    "IN001",
		},
	},
	{
		pattern: "has no original_idx",
		msg: UserMessage{
			Message: "An artifact record is incomplete and was skipped",
			Action:  "Regenerate the artifacts with --reprocess",
			Code:    "IN003",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "The file could not be parsed",
			Action:  "Check the file is valid UTF-8 CSV or JSON",
			Code:    "IN002",
		},
	},
	{
		pattern: "invalid character",
		msg: UserMessage{
			Message: "The file could not be parsed",
			Action:  "Check the file is valid JSON",
			Code:    "IN002",
		},
	},
	{
		pattern: "cannot unmarshal",
		msg: UserMessage{
			Message: "The file could not be parsed",
			Action:  "Check the file is valid JSON",
			Code:    "IN002",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the underlying error",
	Code:    "ERR000",
}

// MapError converts an error to an operator-facing message. Matching is
// case-insensitive on the error text.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// recordError formats a per-record failure for Stats.Errors.
func recordError(kind, name string, err error) string {
	return fmt.Sprintf("[%s] %s %q: %v", MapError(err).Code, kind, name, err)
}
