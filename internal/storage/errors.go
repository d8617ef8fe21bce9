package storage

import "errors"

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")
