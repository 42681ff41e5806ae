package queue

import "errors"

// NoHandlerMessage is recorded on jobs whose type has no registered handler.
const NoHandlerMessage = "No handler registered"

var (
	ErrAlreadyStarted = errors.New("queue: already started")
	ErrClosed         = errors.New("queue: shut down")
)
