package ids

import (
	"strings"

	"github.com/google/uuid"
)

// absentValues are the spellings legacy clients used for "no id".
var absentValues = map[string]struct{}{
	"":          {},
	"null":      {},
	"undefined": {},
	"none":      {},
	"nil":       {},
}

// New returns a fresh identifier for a locally created record.
func New() string {
	return uuid.NewString()
}

// ParseOptionalID normalizes a raw identifier. The second return value is false
// when the input does not name anything.
func ParseOptionalID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if _, absent := absentValues[strings.ToLower(id)]; absent {
		return "", false
	}
	return id, true
}

// FromPtr applies ParseOptionalID to a nullable column.
func FromPtr(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	return ParseOptionalID(*raw)
}

// Ptr returns a pointer to the normalized id, or nil when it is absent.
func Ptr(raw string) *string {
	id, ok := ParseOptionalID(raw)
	if !ok {
		return nil
	}
	return &id
}

// Equal reports whether a nullable column holds exactly the given present id.
func Equal(raw *string, id string) bool {
	got, ok := FromPtr(raw)
	return ok && got == id
}

// ParseList normalizes a list of ids, dropping duplicates while keeping the
// first-seen order. It returns the raw entries that were absent.
func ParseList(raw []string) (out []string, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		id, ok := ParseOptionalID(r)
		if !ok {
			invalid = append(invalid, r)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, invalid
}

// SplitCSV splits a comma separated id list as passed on the command line.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
