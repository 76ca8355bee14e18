package agent

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// QTable stores one value per (state, action). Rows are states and columns
// are actions; dimensions are fixed at construction.
type QTable struct {
	values *mat.Dense
}

// NewQTable creates a states x actions table with every entry set to initial
func NewQTable(states, actions int, initial float64) *QTable {
	data := make([]float64, states*actions)
	if initial != 0 {
		for i := range data {
			data[i] = initial
		}
	}
	return &QTable{values: mat.NewDense(states, actions, data)}
}

// Dims returns the number of states and actions
func (q *QTable) Dims() (states, actions int) {
	return q.values.Dims()
}

// Get returns Q[state][action]
func (q *QTable) Get(state, action int) float64 {
	return q.values.At(state, action)
}

// Set overwrites Q[state][action]
func (q *QTable) Set(state, action int, value float64) {
	q.values.Set(state, action, value)
}

// Row returns a copy of the action values for state
func (q *QTable) Row(state int) []float64 {
	_, actions := q.values.Dims()
	row := make([]float64, actions)
	copy(row, q.values.RawRowView(state))
	return row
}

// Max returns the highest action value for state
func (q *QTable) Max(state int) float64 {
	return floats.Max(q.values.RawRowView(state))
}

// ArgMaxes returns every action whose value equals the row maximum, in index order
func (q *QTable) ArgMaxes(state int) []int {
	row := q.values.RawRowView(state)
	best := floats.Max(row)
	candidates := make([]int, 0, len(row))
	for a, v := range row {
		if v == best {
			candidates = append(candidates, a)
		}
	}
	return candidates
}

// Clone returns a deep copy of the table
func (q *QTable) Clone() *QTable {
	return &QTable{values: mat.DenseCopyOf(q.values)}
}

// Equal reports whether both tables have the same shape and identical entries
func (q *QTable) Equal(other *QTable) bool {
	if other == nil {
		return false
	}
	return mat.Equal(q.values, other.values)
}

// Show writes the table with one row per action and one column per state,
// values truncated to integers. With color set, the greedy entries of each
// state are highlighted.
func (q *QTable) Show(w io.Writer, color bool) error {
	au := aurora.NewAurora(color)
	states, actions := q.Dims()

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", 4) + "|")
	for s := 0; s < states; s++ {
		fmt.Fprintf(&b, "%4s ", fmt.Sprintf("s%d", s))
	}
	b.WriteString("\n" + strings.Repeat("-", 5*states) + "\n")

	for a := 0; a < actions; a++ {
		fmt.Fprintf(&b, "%4s|", fmt.Sprintf("a%d", a))
		for s := 0; s < states; s++ {
			v := q.Get(s, a)
			cell := fmt.Sprintf("%4d ", int(v))
			if best := q.Max(s); v == best && best != 0 {
				b.WriteString(au.Green(cell).String())
			} else {
				b.WriteString(cell)
			}
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
