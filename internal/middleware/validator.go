package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bryanwahyu/codesight/internal/domain/history"
)

var itemIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateItemID checks the shape of a history id path parameter.
func ValidateItemID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !itemIDPattern.MatchString(id) {
		return fmt.Errorf("invalid id format")
	}
	return nil
}

// ValidateLimit clamps a listing limit to [1, history.DefaultCapacity*2].
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return history.DefaultCapacity
	}
	if limit > 2*history.DefaultCapacity {
		return 2 * history.DefaultCapacity
	}
	return limit
}

// ParseOrder accepts "asc"/"desc" (any case); anything else is newest first.
func ParseOrder(s string) history.Order {
	if strings.EqualFold(strings.TrimSpace(s), string(history.OldestFirst)) {
		return history.OldestFirst
	}
	return history.NewestFirst
}
