package engine

import "errors"

var (
	// ErrNoMatch indicates the envelope did not match any registered state.
	// Recoverable: callers fall back to a secondary dispatch path.
	ErrNoMatch = errors.New("engine: input does not match any state")

	// ErrNoAction indicates a state matched but has no registered action.
	// This is a configuration error, not a user error.
	ErrNoAction = errors.New("engine: no action registered for state")

	// ErrDanglingState indicates a button referenced a state id that was
	// never registered. This is a programmer error surfaced at render time.
	ErrDanglingState = errors.New("engine: button references unknown state")
)
