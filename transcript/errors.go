package transcript

import "errors"

// ErrNotRunning is returned by HandlePayload when the engine has not
// been started (or has been stopped). The condition is recoverable:
// the caller may Start the engine again and redeliver.
var ErrNotRunning = errors.New("transcript engine is not running")

// ErrAlreadyRunning is returned by Start when the engine is running.
var ErrAlreadyRunning = errors.New("transcript engine is already running")
