package agent

import "errors"

var (
	ErrInvalidTrajectory = errors.New("invalid trajectory")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidConfig     = errors.New("invalid learner config")
	ErrNilRandSource     = errors.New("nil random source")
	ErrUnknownUpdateRule = errors.New("unknown update rule")
)
