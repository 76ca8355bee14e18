package agent

import (
	"fmt"
	"math"
)

// Config holds the learner hyperparameters. They are fixed once a QLearner is built.
type Config struct {
	ActionCount  int     `mapstructure:"action_count"`
	StateCount   int     `mapstructure:"state_count"`
	LearningRate float64 `mapstructure:"learning_rate"`
	DiscountRate float64 `mapstructure:"discount_rate"`
	InitialValue float64 `mapstructure:"initial_value"`
}

// DefaultConfig returns the hyperparameters of the reference experiment
func DefaultConfig() Config {
	return Config{
		ActionCount:  3,
		StateCount:   21,
		LearningRate: 0.1,
		DiscountRate: 0.1,
		InitialValue: 0,
	}
}

// Validate checks the hyperparameter ranges. A learning rate of 0 is
// accepted and disables learning. NaN and infinite values are rejected.
func (c Config) Validate() error {
	if c.ActionCount <= 0 {
		return fmt.Errorf("%w: action_count must be positive, got %d", ErrInvalidConfig, c.ActionCount)
	}
	if c.StateCount <= 0 {
		return fmt.Errorf("%w: state_count must be positive, got %d", ErrInvalidConfig, c.StateCount)
	}
	if !inUnitInterval(c.LearningRate) {
		return fmt.Errorf("%w: learning_rate must be between 0 and 1, got %g", ErrInvalidConfig, c.LearningRate)
	}
	if !inUnitInterval(c.DiscountRate) {
		return fmt.Errorf("%w: discount_rate must be between 0 and 1, got %g", ErrInvalidConfig, c.DiscountRate)
	}
	if math.IsNaN(c.InitialValue) || math.IsInf(c.InitialValue, 0) {
		return fmt.Errorf("%w: initial_value must be finite, got %g", ErrInvalidConfig, c.InitialValue)
	}
	return nil
}

// inUnitInterval reports whether x is in [0, 1]; false for NaN
func inUnitInterval(x float64) bool {
	return x >= 0 && x <= 1
}
