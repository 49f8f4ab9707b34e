package ai

import (
	"errors"
	"sort"
	"strings"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrInvalidResponse means the model answered but not in the expected shape.
var ErrInvalidResponse = errors.New("ai response does not match schema")

// ErrBusy is returned when a flow is asked to submit while a cycle is running.
var ErrBusy = errors.New("analysis already in progress")

// ValidationError carries field-level messages; no network call was made.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
