package store

import (
	"encoding/json"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
)

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func timePtrString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalDoc(doc json.RawMessage) (string, error) {
	if len(doc) == 0 {
		return "{}", nil
	}
	return string(doc), nil
}

func joinAnd(clauses []string) string {
	return strings.Join(clauses, " AND ")
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE
// constraint violation, the signal the repository turns into a
// ConflictError rather than an opaque InternalError.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	serr, ok := err.(sqlite.Error)
	if ok {
		return serr.Code == sqlite.ResultConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullableText returns the SQL value for an optional text column,
// using Go's nil-friendly any() so an empty string round-trips as ''
// rather than NULL (every *-Substring/optional text field in this
// store is modeled as NOT NULL DEFAULT '').
func nullableText(s string) any {
	return s
}
