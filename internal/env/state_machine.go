package env

// StateMachine is the deterministic environment the agent acts in. It is
// not safe for concurrent use; each trial owns its own instance.
type StateMachine struct {
	currentState int
	table        *TransitionTable
}

// NewStateMachine creates an environment at state 0 over the default table
func NewStateMachine() *StateMachine {
	return NewStateMachineWithTable(DefaultTransitionTable())
}

// NewStateMachineWithTable creates an environment at state 0 over t
func NewStateMachineWithTable(t *TransitionTable) *StateMachine {
	if t == nil {
		t = DefaultTransitionTable()
	}
	return &StateMachine{table: t}
}

// CurrentState returns the state the environment is in
func (sm *StateMachine) CurrentState() int {
	return sm.currentState
}

// IsGoal reports whether the current state is terminal
func (sm *StateMachine) IsGoal() bool {
	return sm.table.IsGoal(sm.currentState)
}

// Reward is zero outside goal states and RewardPerState times the state inside them
func (sm *StateMachine) Reward() float64 {
	if !sm.IsGoal() {
		return 0
	}
	return float64(sm.currentState * RewardPerState)
}

// Apply moves the environment along the transition for action. The state is
// left untouched when the action is out of range or has no successor.
func (sm *StateMachine) Apply(action int) error {
	if action < 0 || action >= sm.table.Actions() {
		return WrapTransitionError(sm.currentState, action, ErrInvalidAction)
	}
	next, ok := sm.table.Next(sm.currentState, action)
	if !ok {
		return WrapTransitionError(sm.currentState, action, ErrInvalidTransition)
	}
	sm.currentState = next
	return nil
}

// Reset returns the environment to state 0
func (sm *StateMachine) Reset() {
	sm.currentState = 0
}

// Table returns the transition table backing the environment
func (sm *StateMachine) Table() *TransitionTable {
	return sm.table
}
