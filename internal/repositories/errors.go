package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidTokens indicates a connected YouTube credential bundle is missing a token.
	ErrInvalidTokens = errors.New("youtube token bundle incomplete")
)
