package solver

import (
	"context"
	"math"
	"sort"
	"time"
)

const defaultCheckInterval = 1024

// Option configures the solver returned by New.
type Option func(*bbSolver)

// WithCheckInterval sets how many search nodes are visited between two
// deadline checks. The value is rounded up to a power of two; values below 1
// are ignored.
func WithCheckInterval(nodes int) Option {
	return func(s *bbSolver) {
		if nodes < 1 {
			return
		}
		interval := int64(1)
		for interval < int64(nodes) {
			interval <<= 1
		}
		s.checkMask = interval - 1
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *bbSolver) {
		if clock != nil {
			s.clock = clock
		}
	}
}

type bbSolver struct {
	checkMask int64
	clock     func() time.Time
}

// New creates a Solver based on depth-first branch-and-bound.
func New(opts ...Option) Solver {
	s := &bbSolver{
		checkMask: defaultCheckInterval - 1,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve returns the best selection it can prove or find within budget.
// A non-positive budget or an already cancelled ctx skips the search and
// returns the greedy selection.
func (s *bbSolver) Solve(ctx context.Context, problem Problem, budget time.Duration) Solution {
	if len(problem.Items) == 0 {
		return Solution{Items: []Item{}, Status: Optimal}
	}
	if problem.Capacity < 0 {
		return Solution{Items: []Item{}, Status: Infeasible}
	}

	e := newEngine(ctx, problem, s.checkMask, s.clock)
	e.seedGreedy()

	status := Optimal
	switch {
	case len(e.items) == 0:
	case budget <= 0 || ctx.Err() != nil:
		if e.bound(0, 0, 0) > e.bestValue {
			status = TimedOut
		}
	default:
		e.deadline = s.clock().Add(budget)
		if d, ok := ctx.Deadline(); ok && d.Before(e.deadline) {
			e.deadline = d
		}
		e.dfs(0, 0, 0)
		if e.expired {
			status = TimedOut
		}
	}

	return e.solution(problem, status)
}

// candidate is an item that may appear in an improving selection, kept
// together with its position in the input.
type candidate struct {
	index  int
	value  float64
	weight float64
	ratio  float64
}

// bbEngine holds the state of one search. It is never shared between calls.
type bbEngine struct {
	items    []candidate
	capacity float64

	// prefixValue[k] and prefixWeight[k] sum items[0:k].
	prefixValue  []float64
	prefixWeight []float64

	// inputOrder lists positions in items by ascending input index.
	inputOrder []int

	ctx       context.Context
	clock     func() time.Time
	deadline  time.Time
	checkMask int64
	nodes     int64
	expired   bool

	take      []bool
	best      []bool
	bestValue float64
}

func newEngine(ctx context.Context, problem Problem, checkMask int64, clock func() time.Time) *bbEngine {
	items := make([]candidate, 0, len(problem.Items))
	for i, it := range problem.Items {
		// Items that cannot fit or add nothing are never branched on.
		if it.Value <= 0 || it.Weight > problem.Capacity {
			continue
		}
		ratio := math.Inf(1)
		if it.Weight > 0 {
			ratio = it.Value / it.Weight
		}
		items = append(items, candidate{index: i, value: it.Value, weight: it.Weight, ratio: ratio})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ratio == items[j].ratio {
			return items[i].index < items[j].index
		}
		return items[i].ratio > items[j].ratio
	})

	n := len(items)
	e := &bbEngine{
		items:        items,
		capacity:     problem.Capacity,
		prefixValue:  make([]float64, n+1),
		prefixWeight: make([]float64, n+1),
		ctx:          ctx,
		clock:        clock,
		checkMask:    checkMask,
		inputOrder:   make([]int, n),
		take:         make([]bool, n),
		best:         make([]bool, n),
	}
	for k, c := range items {
		e.prefixValue[k+1] = e.prefixValue[k] + c.value
		e.prefixWeight[k+1] = e.prefixWeight[k] + c.weight
		e.inputOrder[k] = k
	}
	sort.Slice(e.inputOrder, func(a, b int) bool {
		return items[e.inputOrder[a]].index < items[e.inputOrder[b]].index
	})
	return e
}

// fits reports whether sel stays within capacity when its weights are summed
// in input order, the order Solution.Weight uses.
func (e *bbEngine) fits(sel []bool) bool {
	total := 0.0
	for _, k := range e.inputOrder {
		if sel[k] {
			total += e.items[k].weight
		}
	}
	return total <= e.capacity
}

// seedGreedy fills the knapsack in ratio order, skipping items that do not
// fit, and records the result as the first incumbent. It visits the same
// path as the first descent of dfs. Items are dropped in reverse order of
// insertion until the selection fits in input order too.
func (e *bbEngine) seedGreedy() {
	weight := 0.0
	added := make([]int, 0, len(e.items))
	for k, c := range e.items {
		if weight+c.weight <= e.capacity {
			e.best[k] = true
			weight += c.weight
			added = append(added, k)
		}
	}
	for len(added) > 0 && !e.fits(e.best) {
		e.best[added[len(added)-1]] = false
		added = added[:len(added)-1]
	}

	e.bestValue = 0
	for _, k := range added {
		e.bestValue += e.items[k].value
	}
}

// bound is the fractional relaxation over items[depth:]: remaining items are
// taken whole in ratio order and the first one that does not fit is taken
// partially.
func (e *bbEngine) bound(depth int, weight, value float64) float64 {
	room := e.capacity - weight
	base := e.prefixWeight[depth]
	rest := len(e.items) - depth
	k := depth + sort.Search(rest, func(i int) bool {
		return e.prefixWeight[depth+i+1]-base > room
	})

	ub := value + e.prefixValue[k] - e.prefixValue[depth]
	if k < len(e.items) {
		ub += (room - (e.prefixWeight[k] - base)) * e.items[k].ratio
	}
	return ub
}

// deadlineCheck counts a node and polls the clock and context once every
// checkMask+1 nodes.
func (e *bbEngine) deadlineCheck() bool {
	e.nodes++
	if e.nodes&e.checkMask != 0 {
		return false
	}
	if e.ctx.Err() != nil || e.clock().After(e.deadline) {
		e.expired = true
	}
	return e.expired
}

func (e *bbEngine) dfs(depth int, weight, value float64) {
	if e.expired || e.deadlineCheck() {
		return
	}

	if depth == len(e.items) {
		// Strictly better only: ties keep the earlier incumbent.
		if value > e.bestValue && e.fits(e.take) {
			e.bestValue = value
			copy(e.best, e.take)
		}
		return
	}

	if e.bound(depth, weight, value) <= e.bestValue {
		return
	}

	c := e.items[depth]
	if weight+c.weight <= e.capacity {
		e.take[depth] = true
		e.dfs(depth+1, weight+c.weight, value+c.value)
		e.take[depth] = false
		if e.expired {
			return
		}
	}
	e.dfs(depth+1, weight, value)
}

// solution maps the incumbent back to input order.
func (e *bbEngine) solution(problem Problem, status Status) Solution {
	picked := make([]bool, len(problem.Items))
	for k, c := range e.items {
		if e.best[k] {
			picked[c.index] = true
		}
	}

	sol := Solution{
		Items:  make([]Item, 0, len(e.items)),
		Status: status,
		Nodes:  e.nodes,
	}
	for i, it := range problem.Items {
		if picked[i] {
			sol.Items = append(sol.Items, it)
			sol.Value += it.Value
		}
	}
	return sol
}
