package history

import "errors"

// ErrNotFound is returned when no row matches id (and owner, for mutations).
var ErrNotFound = errors.New("analysis not found")

// ErrEmptyPatch is returned for an update that changes nothing.
var ErrEmptyPatch = errors.New("no fields to update")
