package session

import "errors"

var (
	// ErrBusy means a start or stop for this session is still in flight.
	ErrBusy = errors.New("a lab start or stop is already in progress")
	// ErrAlreadyRunning means a lab is running and must be stopped first.
	ErrAlreadyRunning = errors.New("lab is already running")
	// ErrClosed means the machine was shut down.
	ErrClosed = errors.New("lab session closed")
)
