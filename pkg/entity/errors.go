package entity

import "errors"

var (
	ErrUnknownSpawnType = errors.New("unknown spawn type")
	ErrNotInitialized   = errors.New("entity has not been initialized")
	ErrNotClient        = errors.New("operation requires a client copy")
	ErrNotServer        = errors.New("operation requires server authority")
)
