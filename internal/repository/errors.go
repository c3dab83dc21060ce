package repository

import "errors"

// ErrConflict is returned when a write hits a unique constraint.
var ErrConflict = errors.New("conflict")
