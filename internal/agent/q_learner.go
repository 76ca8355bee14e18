package agent

import (
	"fmt"
	"io"
	"math/rand"
)

// QLearner keeps the action-value estimates for one trial. It is not safe
// for concurrent use.
type QLearner struct {
	cfg    Config
	rule   UpdateRule
	values *QTable
}

// NewQLearner creates a learner with every Q-value at cfg.InitialValue.
// A nil rule selects StepUpdate.
func NewQLearner(cfg Config, rule UpdateRule) (*QLearner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rule == nil {
		rule = StepUpdate{}
	}
	return &QLearner{
		cfg:    cfg,
		rule:   rule,
		values: NewQTable(cfg.StateCount, cfg.ActionCount, cfg.InitialValue),
	}, nil
}

// Config returns the learner's hyperparameters
func (l *QLearner) Config() Config {
	return l.cfg
}

// Rule returns the update rule the learner applies
func (l *QLearner) Rule() UpdateRule {
	return l.rule
}

// SelectAction picks an action for state with an epsilon-greedy policy.
// With probability epsilon a uniformly random action is returned; otherwise
// one of the highest-valued actions, chosen by shuffling the tied
// candidates with rng and taking the first. rng is caller-owned and must be
// reused across calls for runs to be reproducible. No random number is
// drawn for the exploration test when epsilon is 0.
func (l *QLearner) SelectAction(state int, rng *rand.Rand, epsilon float64) (int, error) {
	if rng == nil {
		return 0, ErrNilRandSource
	}
	if state < 0 || state >= l.cfg.StateCount {
		return 0, fmt.Errorf("%w: %d outside [0, %d)", ErrInvalidState, state, l.cfg.StateCount)
	}

	if epsilon > 0 && rng.Float64() <= epsilon {
		return rng.Intn(l.cfg.ActionCount), nil
	}

	candidates := l.values.ArgMaxes(state)
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: state %d has no comparable action values", ErrInvalidState, state)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[0], nil
}

// Update folds reward into the table using the learner's update rule
func (l *QLearner) Update(trajectory *Trajectory, reward float64) error {
	return l.rule.Update(l.values, l.cfg, trajectory, reward)
}

// Value returns Q[state][action]
func (l *QLearner) Value(state, action int) float64 {
	return l.values.Get(state, action)
}

// QValues returns a snapshot of the table
func (l *QLearner) QValues() *QTable {
	return l.values.Clone()
}

// Show writes the learner's table, see QTable.Show.
func (l *QLearner) Show(w io.Writer, color bool) error {
	return l.values.Show(w, color)
}
