package experiment

import (
	"fmt"

	"github.com/mitchelldurbincs/ImprovedQ/internal/agent"
	"github.com/mitchelldurbincs/ImprovedQ/internal/env"
)

// Config describes one experiment: Trials independent learners, each run
// for Episodes episodes.
type Config struct {
	Trials             int          `mapstructure:"trials"`
	Episodes           int          `mapstructure:"episodes"`
	Epsilon            float64      `mapstructure:"epsilon"`
	SeedBase           int64        `mapstructure:"seed_base"`
	Parallelism        int          `mapstructure:"parallelism"`
	UpdateRule         string       `mapstructure:"update_rule"`
	MaxStepsPerEpisode int          `mapstructure:"max_steps_per_episode"`
	Agent              agent.Config `mapstructure:"agent"`
}

// DefaultConfig returns the reference experiment: 100 trials of 100
// episodes, epsilon 0.2, seeds 1000+trial.
func DefaultConfig() Config {
	return Config{
		Trials:             100,
		Episodes:           100,
		Epsilon:            0.2,
		SeedBase:           1000,
		Parallelism:        1,
		UpdateRule:         agent.RuleStep,
		MaxStepsPerEpisode: 10000,
		Agent:              agent.DefaultConfig(),
	}
}

// Seed returns the rng seed used by trial
func (c Config) Seed(trial int) int64 {
	return c.SeedBase + int64(trial)
}

// Validate checks the experiment settings and the embedded learner config
func (c Config) Validate() error {
	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", c.Trials)
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive, got %d", c.Episodes)
	}
	if !(c.Epsilon >= 0 && c.Epsilon <= 1) {
		return fmt.Errorf("epsilon must be between 0 and 1, got %g", c.Epsilon)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative, got %d", c.Parallelism)
	}
	if c.MaxStepsPerEpisode <= 0 {
		return fmt.Errorf("max_steps_per_episode must be positive, got %d", c.MaxStepsPerEpisode)
	}
	if _, err := agent.ParseUpdateRule(c.UpdateRule); err != nil {
		return err
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	// The learner is sized for the fixed environment
	if c.Agent.StateCount != env.StateCount || c.Agent.ActionCount != env.ActionCount {
		return fmt.Errorf("%w: agent is %d states x %d actions, environment is %d x %d",
			agent.ErrInvalidConfig, c.Agent.StateCount, c.Agent.ActionCount, env.StateCount, env.ActionCount)
	}
	return nil
}
