package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNoJobAvailable  = errors.New("no job available")
	ErrJobTerminal     = errors.New("job already in terminal status")
	ErrNotAwaitingGate = errors.New("job is not awaiting approval")
	ErrAlreadyDecided  = errors.New("approval already recorded")
	ErrInvalidMove     = errors.New("invalid status transition")
	ErrProviderFailure = errors.New("provider failure")
	ErrPublishFailed   = errors.New("publish handoff failed")
)
