package tracker

import "errors"

// ErrNotFound is returned when a book, notification or custom site lookup
// by id misses. Distinct from transport errors by design: callers map it
// to a 404.
var ErrNotFound = errors.New("tracker: not found")

// ErrInvalidInput is returned when input fails validation.
var ErrInvalidInput = errors.New("tracker: invalid input")

// ErrCheckInProgress is returned when a check is requested for a book that
// already has one in flight. Overlapping checks would double-count new
// listings since both see the same stale dedup snapshot.
var ErrCheckInProgress = errors.New("tracker: check already in progress")
