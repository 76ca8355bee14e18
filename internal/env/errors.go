package env

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidTable      = errors.New("invalid transition table")
)

// WrapTransitionError attaches the state and action that produced err.
func WrapTransitionError(state, action int, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("state %d action %d: %w", state, action, err)
}
