package solver

import (
	"context"
	"time"
)

// Item is a single candidate for selection.
type Item struct {
	ID     string
	Value  float64
	Weight float64
}

// Problem is one knapsack instance. Item order is only used for tie-breaking
// and for reporting the selection.
type Problem struct {
	Items    []Item
	Capacity float64
}

// Status describes how much confidence the solver has in a Solution.
type Status int

const (
	// Optimal means the search proved that no better selection exists.
	Optimal Status = iota
	// TimedOut means the budget elapsed before optimality was proven.
	TimedOut
	// Infeasible means the capacity is negative, so only the empty selection is reported.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "Optimal"
	case TimedOut:
		return "TimedOut"
	case Infeasible:
		return "Infeasible"
	default:
		return "Unknown"
	}
}

// Solution is the result of a single Solve call.
// Items is a sub-sequence of Problem.Items in their original order and Value
// is the sum of their values.
type Solution struct {
	Items  []Item
	Value  float64
	Status Status
	Nodes  int64
}

// Weight returns the total weight of the selected items.
func (s Solution) Weight() float64 {
	total := 0.0
	for _, it := range s.Items {
		total += it.Weight
	}
	return total
}

// Solver describes the behaviour required from a knapsack solver.
type Solver interface {
	Solve(ctx context.Context, problem Problem, budget time.Duration) Solution
}
