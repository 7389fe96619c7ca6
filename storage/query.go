// Package storage defines the store-native query format shared by the
// entity store implementations: a JSON object of field equality filters
// applied to entity data. An empty query matches everything. Dotted keys
// descend into nested objects ("address.city").
package storage

import (
	"encoding/json"
	"strings"

	"github.com/Sangrene/flexible-data-relay/errors"
)

// Query is a parsed equality filter.
type Query struct {
	filters map[string]any
}

// ParseQuery parses the store-native query string. Empty or "{}" yields a
// match-all query.
func ParseQuery(raw string) (*Query, error) {
	q := &Query{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return q, nil
	}
	if err := json.Unmarshal([]byte(raw), &q.filters); err != nil {
		return nil, errors.WrapInvalid(err, "storage", "ParseQuery", "query must be a JSON object of field filters")
	}
	return q, nil
}

// Matches reports whether the document satisfies every filter.
func (q *Query) Matches(doc map[string]any) bool {
	for path, want := range q.filters {
		got, ok := lookup(doc, path)
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = doc
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equalValue compares decoded JSON values. Scalars compare directly;
// composites compare by canonical JSON encoding.
func equalValue(a, b any) bool {
	if a == b {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}
