package agent

// PlaceholderAction pairs with the initial state of every trajectory
const PlaceholderAction = 0

// Step is one trajectory entry: the state reached and the action that led there
type Step struct {
	State  int
	Action int
}

// Trajectory is the ordered list of steps taken during one episode
type Trajectory struct {
	steps []Step
}

// NewTrajectory starts a trajectory at initialState with the placeholder action
func NewTrajectory(initialState int) *Trajectory {
	t := &Trajectory{steps: make([]Step, 0, 16)}
	t.steps = append(t.steps, Step{State: initialState, Action: PlaceholderAction})
	return t
}

// TrajectoryFromSteps builds a trajectory from explicit steps, without a placeholder
func TrajectoryFromSteps(steps ...Step) *Trajectory {
	t := &Trajectory{steps: make([]Step, len(steps))}
	copy(t.steps, steps)
	return t
}

// Append records that action moved the environment into state
func (t *Trajectory) Append(state, action int) {
	t.steps = append(t.steps, Step{State: state, Action: action})
}

// Len returns the number of entries including the initial one
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.steps)
}

// At returns the i-th entry
func (t *Trajectory) At(i int) Step {
	return t.steps[i]
}

// Last returns the most recent entry
func (t *Trajectory) Last() Step {
	return t.steps[len(t.steps)-1]
}

// Steps returns a copy of all entries
func (t *Trajectory) Steps() []Step {
	if t == nil {
		return nil
	}
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}
