package keystore

import "errors"

var (
	// ErrNotLocked indicates a commit found no live processing record for the key.
	ErrNotLocked = errors.New("no processing record held for key")
)
