package lms

import (
	"bytes"
	"encoding/json"
)

// Shape is one known response schema for a list operation: the key path, from the response
// root, leading to the JSON array holding the payload.
type Shape struct {
	Name string
	Path []string
}

// Acceptance is one known success marker of a submission response: a root field and the
// value it holds when the submission went through.
type Acceptance struct {
	Field string
	Value string
}

// Response schemas accumulated across backend versions, in extraction order.
var (
	CourseShapes = []Shape{
		{Name: "courseList", Path: []string{"courseList"}},
		{Name: "data.courseList", Path: []string{"data", "courseList"}},
		{Name: "data", Path: []string{"data"}},
	}
	HomeworkShapes = []Shape{
		{Name: "homeworkList", Path: []string{"homeworkList"}},
		{Name: "data", Path: []string{"data"}},
	}
	ActivityShapes = []Shape{
		{Name: "list", Path: []string{"list"}},
		{Name: "data", Path: []string{"data"}},
	}

	// both markers exist across backend versions; neither is known to be dead
	SubmitAcceptances = []Acceptance{
		{Field: "status", Value: "200"},
		{Field: "code", Value: "0"},
	}
)

// lookup walks `path` through nested JSON objects and returns the raw value at its end.
func lookup(body []byte, path []string) (json.RawMessage, bool) {
	raw := json.RawMessage(body)
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		raw = next
	}
	return raw, true
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// ExtractList returns an extraction func that tries `shapes` in order and decodes the first
// array found into []T. The second result is false when no shape matches.
func ExtractList[T any](shapes []Shape) func(body []byte) ([]T, bool) {
	return func(body []byte) ([]T, bool) {
		_, items, ok := MatchList[T](shapes, body)
		return items, ok
	}
}

// MatchList is ExtractList that also returns the name of the matching shape. An empty array
// matches only when no later shape holds items.
func MatchList[T any](shapes []Shape, body []byte) (string, []T, bool) {
	empty := ""
	for _, shape := range shapes {
		raw, ok := lookup(body, shape.Path)
		if !ok || !isArray(raw) {
			continue
		}
		items := make([]T, 0)
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		if len(items) > 0 {
			return shape.Name, items, true
		}
		if empty == "" {
			empty = shape.Name
		}
	}
	if empty != "" {
		return empty, make([]T, 0), true
	}
	return "", nil, false
}

// ExtractAccepted reports whether `body` carries one of SubmitAcceptances. A body without
// any success marker does not match, so the submission moves on to the next candidate.
func ExtractAccepted(body []byte) (bool, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return false, false
	}
	for _, acc := range SubmitAcceptances {
		raw, ok := obj[acc.Field]
		if !ok {
			continue
		}
		var val Scalar
		if err := json.Unmarshal(raw, &val); err != nil {
			continue
		}
		if val.Valid && val.Value == acc.Value {
			return true, true
		}
	}
	return false, false
}
