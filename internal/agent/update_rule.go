package agent

import "fmt"

const (
	RuleStep    = "step"
	RuleEpisode = "episode"
)

// UpdateRule folds an observed reward back into a QTable
type UpdateRule interface {
	// Name identifies the rule in config and logs
	Name() string

	// PerStep reports whether the rule runs after every action (true) or
	// once per episode after the goal is reached (false)
	PerStep() bool

	// Update applies the rule to q using the hyperparameters in cfg
	Update(q *QTable, cfg Config, trajectory *Trajectory, reward float64) error
}

// ParseUpdateRule returns the rule registered under name
func ParseUpdateRule(name string) (UpdateRule, error) {
	switch name {
	case RuleStep, "":
		return StepUpdate{}, nil
	case RuleEpisode:
		return EpisodeUpdate{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdateRule, name)
	}
}

// StepUpdate is one-step bootstrapped Q-learning over the last transition:
//
//	Q[b][a] <- (1-alpha)*Q[b][a] + alpha*(r + gamma*max Q[after])
type StepUpdate struct{}

func (StepUpdate) Name() string  { return RuleStep }
func (StepUpdate) PerStep() bool { return true }

func (StepUpdate) Update(q *QTable, cfg Config, trajectory *Trajectory, reward float64) error {
	if err := checkTrajectory(trajectory, cfg, trajectory.Len()-2); err != nil {
		return err
	}

	i := trajectory.Len() - 1
	before := trajectory.At(i - 1).State
	last := trajectory.At(i)

	target := reward + cfg.DiscountRate*q.Max(last.State)
	updated := (1-cfg.LearningRate)*q.Get(before, last.Action) + cfg.LearningRate*target
	q.Set(before, last.Action, updated)
	return nil
}

// EpisodeUpdate spreads the final reward backwards over the whole
// trajectory with a weight that shrinks by gamma per step and no
// bootstrapping:
//
//	Q[s(i-1)][a(i)] <- (1-alpha)*Q + alpha*r*gamma^(n-1-i)   for i = n-1 .. 1
//
// Index 0 only contributes its state; its placeholder action is never read.
type EpisodeUpdate struct{}

func (EpisodeUpdate) Name() string  { return RuleEpisode }
func (EpisodeUpdate) PerStep() bool { return false }

func (EpisodeUpdate) Update(q *QTable, cfg Config, trajectory *Trajectory, reward float64) error {
	if err := checkTrajectory(trajectory, cfg, 0); err != nil {
		return err
	}

	rate := 1.0
	for i := trajectory.Len() - 1; i >= 1; i-- {
		before := trajectory.At(i - 1).State
		action := trajectory.At(i).Action

		updated := (1-cfg.LearningRate)*q.Get(before, action) + cfg.LearningRate*reward*rate
		q.Set(before, action, updated)
		rate *= cfg.DiscountRate
	}
	return nil
}

// checkTrajectory rejects trajectories that cannot be indexed into a table
// of cfg's shape, looking at entries from index from onwards.
func checkTrajectory(trajectory *Trajectory, cfg Config, from int) error {
	if trajectory.Len() < 2 {
		return fmt.Errorf("%w: need at least 2 entries, got %d", ErrInvalidTrajectory, trajectory.Len())
	}
	for i := from; i < trajectory.Len(); i++ {
		step := trajectory.steps[i]
		if step.State < 0 || step.State >= cfg.StateCount {
			return fmt.Errorf("%w: entry %d has state %d outside [0, %d)", ErrInvalidTrajectory, i, step.State, cfg.StateCount)
		}
		if i > 0 && (step.Action < 0 || step.Action >= cfg.ActionCount) {
			return fmt.Errorf("%w: entry %d has action %d outside [0, %d)", ErrInvalidTrajectory, i, step.Action, cfg.ActionCount)
		}
	}
	return nil
}
