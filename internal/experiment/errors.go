package experiment

import (
	"errors"
	"fmt"
)

// ErrStepLimit is returned when an episode runs past MaxStepsPerEpisode
var ErrStepLimit = errors.New("episode step limit exceeded")

// TrialError records where inside a trial a failure happened
type TrialError struct {
	Trial   int
	Episode int
	Step    int
	Err     error
}

// NewTrialError creates a new TrialError
func NewTrialError(trial, episode, step int, err error) *TrialError {
	return &TrialError{
		Trial:   trial,
		Episode: episode,
		Step:    step,
		Err:     err,
	}
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %d episode %d step %d: %v", e.Trial, e.Episode, e.Step, e.Err)
}

func (e *TrialError) Unwrap() error {
	return e.Err
}
