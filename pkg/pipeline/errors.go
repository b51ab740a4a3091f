package pipeline

import "errors"

var (
	ErrQueueFull        = errors.New("pipeline queue is full")
	ErrPoolExhausted    = errors.New("command pool exhausted")
	ErrCommandNotLeased = errors.New("command returned to the pool twice")
	ErrForeignCommand   = errors.New("command does not belong to this pool")
	ErrStaleCommand     = errors.New("command was recycled while still queued")
	ErrPipelineRunning  = errors.New("pipeline is already running")
	ErrPipelineStopped  = errors.New("pipeline is not running")
	ErrHostStart        = errors.New("host failed to start")
	ErrHostNotRunning   = errors.New("host has not been started")
	ErrUnknownCommand   = errors.New("unknown command type")
	ErrNoHostFactory    = errors.New("pipeline config has no host factory")
	ErrNoExecutor       = errors.New("pipeline config has no executor")
)
