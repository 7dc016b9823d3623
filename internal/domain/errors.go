package domain

import "errors"

// ErrDuplicateGame is returned by stores when an insert collides with an
// already-stored app id. Reconciliation treats it as benign: the record the
// insert wanted to create already exists.
var ErrDuplicateGame = errors.New("game already exists")

// ErrNotFound is returned by stores when a lookup matches no record.
var ErrNotFound = errors.New("not found")
