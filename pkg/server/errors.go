package server

import "errors"

var (
	ErrNoHostFactory  = errors.New("server config has no host factory")
	ErrAlreadyStarted = errors.New("server has already started")
	ErrIdMismatch     = errors.New("declared id does not match the sender's entity")
	ErrAlreadySpawned = errors.New("peer already owns an entity")
)
