package env

import "fmt"

const (
	// StateCount is the number of states in the default table
	StateCount = 21

	// ActionCount is the number of actions available in every state
	ActionCount = 3

	// GoalThreshold is the first goal state; every state at or above it is terminal
	GoalThreshold = 15

	// InvalidState marks a (state, action) pair with no successor
	InvalidState = -1

	// RewardPerState scales the goal reward: reward(s) = RewardPerState * s
	RewardPerState = 10
)

var defaultRows = [][]int{
	{1, 2, 0},
	{3, 4, 1},
	{4, 5, 2},
	{6, 7, 3},
	{7, 8, 4},
	{8, 9, 5},
	{10, 11, 6},
	{11, 12, 7},
	{12, 13, 8},
	{13, 14, 9},
	{15, 16, 10},
	{16, 17, 11},
	{17, 18, 12},
	{18, 19, 13},
	{19, 20, 14},
	{0, 0, 15},
	{-1, -1, 16},
	{-1, -1, 17},
	{-1, -1, 18},
	{-1, -1, 19},
	{-1, -1, 20},
}

var defaultTable = mustTransitionTable(defaultRows, GoalThreshold)

// transitionKey identifies one entry of a TransitionTable
type transitionKey struct {
	state  int
	action int
}

// TransitionTable is an immutable (state, action) -> next state mapping.
// Pairs without a successor are absent from the map.
type TransitionTable struct {
	next     map[transitionKey]int
	states   int
	actions  int
	goalFrom int
}

// DefaultTransitionTable returns the fixed 21-state table used by every StateMachine
func DefaultTransitionTable() *TransitionTable {
	return defaultTable
}

func mustTransitionTable(rows [][]int, goalFrom int) *TransitionTable {
	t, err := NewTransitionTable(rows, goalFrom)
	if err != nil {
		panic("default transition table is inconsistent: " + err.Error())
	}
	return t
}

// NewTransitionTable builds a table from a dense state x action matrix where
// InvalidState marks a missing transition. States >= goalFrom are goals.
// The table is checked for consistency before it is returned.
func NewTransitionTable(rows [][]int, goalFrom int) (*TransitionTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no states", ErrInvalidTable)
	}
	if goalFrom <= 0 || goalFrom >= len(rows) {
		return nil, fmt.Errorf("%w: goal threshold %d outside (0, %d)", ErrInvalidTable, goalFrom, len(rows))
	}

	actions := len(rows[0])
	if actions == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidTable)
	}

	t := &TransitionTable{
		next:     make(map[transitionKey]int, len(rows)*actions),
		states:   len(rows),
		actions:  actions,
		goalFrom: goalFrom,
	}

	for s, row := range rows {
		if len(row) != actions {
			return nil, fmt.Errorf("%w: state %d has %d actions, want %d", ErrInvalidTable, s, len(row), actions)
		}
		for a, next := range row {
			if next == InvalidState {
				continue
			}
			if next < 0 || next >= len(rows) {
				return nil, fmt.Errorf("%w: state %d action %d leads to unknown state %d", ErrInvalidTable, s, a, next)
			}
			t.next[transitionKey{state: s, action: a}] = next
		}
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TransitionTable) hasSelfLoop(state int) bool {
	for _, a := range t.ValidActions(state) {
		if next, _ := t.Next(state, a); next == state {
			return true
		}
	}
	return false
}

// validate checks that transient states can move and goal states can stay
func (t *TransitionTable) validate() error {
	for s := 0; s < t.states; s++ {
		if t.IsGoal(s) {
			if !t.hasSelfLoop(s) {
				return fmt.Errorf("%w: goal state %d has no self-loop action", ErrInvalidTable, s)
			}
			continue
		}
		if len(t.ValidActions(s)) == 0 {
			return fmt.Errorf("%w: transient state %d has no outgoing action", ErrInvalidTable, s)
		}
	}
	return nil
}

// States returns the number of states
func (t *TransitionTable) States() int {
	return t.states
}

// Actions returns the number of actions per state
func (t *TransitionTable) Actions() int {
	return t.actions
}

// IsGoal reports whether s is a terminal state
func (t *TransitionTable) IsGoal(s int) bool {
	return s >= t.goalFrom
}

// Next looks up the successor of (state, action). ok is false when the
// pair is unknown or marked invalid.
func (t *TransitionTable) Next(state, action int) (next int, ok bool) {
	next, ok = t.next[transitionKey{state: state, action: action}]
	if !ok {
		return InvalidState, false
	}
	return next, true
}

// ValidActions returns the actions with a defined successor from state, in index order
func (t *TransitionTable) ValidActions(state int) []int {
	valid := make([]int, 0, t.actions)
	for a := 0; a < t.actions; a++ {
		if _, ok := t.next[transitionKey{state: state, action: a}]; ok {
			valid = append(valid, a)
		}
	}
	return valid
}

// PathWithAction follows a fixed action from start until a goal is reached
// and returns the visited states including start. It gives up after
// maxSteps transitions or on an invalid transition.
func (t *TransitionTable) PathWithAction(start, action, maxSteps int) ([]int, error) {
	path := []int{start}
	state := start
	for step := 0; step < maxSteps && !t.IsGoal(state); step++ {
		next, ok := t.Next(state, action)
		if !ok {
			return path, WrapTransitionError(state, action, ErrInvalidTransition)
		}
		state = next
		path = append(path, state)
	}
	if !t.IsGoal(state) {
		return path, fmt.Errorf("no goal reached from state %d with action %d after %d steps", start, action, maxSteps)
	}
	return path, nil
}
