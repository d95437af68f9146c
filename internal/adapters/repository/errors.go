package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("target not found")
	ErrInvalidLimit = errors.New("invalid candidate limit")
	ErrBadCell      = errors.New("malformed cell")
)
