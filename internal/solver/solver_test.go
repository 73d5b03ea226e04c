package solver

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generousBudget = time.Minute

func TestSolveScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		problem    Problem
		wantIDs    []string
		wantValue  float64
		wantStatus Status
	}{
		{
			name: "SingleItemFitsExactly",
			problem: Problem{
				Items:    []Item{{ID: "a", Value: 10, Weight: 5}},
				Capacity: 5,
			},
			wantIDs:    []string{"a"},
			wantValue:  10,
			wantStatus: Optimal,
		},
		{
			name: "SingleItemTooHeavy",
			problem: Problem{
				Items:    []Item{{ID: "a", Value: 10, Weight: 6}},
				Capacity: 5,
			},
			wantIDs:    []string{},
			wantValue:  0,
			wantStatus: Optimal,
		},
		{
			name: "TextbookInstance",
			problem: Problem{
				Items: []Item{
					{ID: "a", Value: 60, Weight: 10},
					{ID: "b", Value: 100, Weight: 20},
					{ID: "c", Value: 120, Weight: 30},
				},
				Capacity: 50,
			},
			wantIDs:    []string{"b", "c"},
			wantValue:  220,
			wantStatus: Optimal,
		},
		{
			name:       "NoItems",
			problem:    Problem{Capacity: 10},
			wantIDs:    []string{},
			wantValue:  0,
			wantStatus: Optimal,
		},
		{
			name:       "NoItemsNegativeCapacity",
			problem:    Problem{Capacity: -1},
			wantIDs:    []string{},
			wantValue:  0,
			wantStatus: Optimal,
		},
		{
			name: "NegativeCapacity",
			problem: Problem{
				Items:    []Item{{ID: "a", Value: 1, Weight: 0}},
				Capacity: -1,
			},
			wantIDs:    []string{},
			wantValue:  0,
			wantStatus: Infeasible,
		},
		{
			name: "ZeroCapacityTakesWeightlessItems",
			problem: Problem{
				Items: []Item{
					{ID: "a", Value: 3, Weight: 1},
					{ID: "z", Value: 2, Weight: 0},
				},
				Capacity: 0,
			},
			wantIDs:    []string{"z"},
			wantValue:  2,
			wantStatus: Optimal,
		},
		{
			name: "NonPositiveValuesNeverSelected",
			problem: Problem{
				Items: []Item{
					{ID: "neg", Value: -3, Weight: 0},
					{ID: "zero", Value: 0, Weight: 1},
					{ID: "a", Value: 10, Weight: 5},
				},
				Capacity: 10,
			},
			wantIDs:    []string{"a"},
			wantValue:  10,
			wantStatus: Optimal,
		},
		{
			name: "EqualRatioPrefersEarlierItems",
			problem: Problem{
				Items: []Item{
					{ID: "x", Value: 6, Weight: 3},
					{ID: "y", Value: 6, Weight: 3},
					{ID: "z", Value: 12, Weight: 6},
				},
				Capacity: 6,
			},
			wantIDs:    []string{"x", "y"},
			wantValue:  12,
			wantStatus: Optimal,
		},
		{
			name: "DuplicateIDsAreIndependentItems",
			problem: Problem{
				Items: []Item{
					{ID: "dup", Value: 4, Weight: 2},
					{ID: "dup", Value: 4, Weight: 2},
				},
				Capacity: 4,
			},
			wantIDs:    []string{"dup", "dup"},
			wantValue:  8,
			wantStatus: Optimal,
		},
		{
			name: "GreedyIsNotOptimal",
			problem: Problem{
				Items: []Item{
					{ID: "small", Value: 2, Weight: 1},
					{ID: "big", Value: 9, Weight: 10},
				},
				Capacity: 10,
			},
			wantIDs:    []string{"big"},
			wantValue:  9,
			wantStatus: Optimal,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := New().Solve(context.Background(), tc.problem, generousBudget)

			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, tc.wantIDs, ids(got.Items))
			assert.InDelta(t, tc.wantValue, got.Value, 1e-9)
			assert.NotNil(t, got.Items)
		})
	}
}

// problemGenerators covers integral weights, where sums are exact, and real
// weights, where summation order matters.
var problemGenerators = []struct {
	name string
	gen  func(rng *rand.Rand, n int) Problem
}{
	{name: "IntegralWeights", gen: randomProblem},
	{name: "RealWeights", gen: randomRealProblem},
}

func TestSolveMatchesBruteForce(t *testing.T) {
	t.Parallel()

	for _, g := range problemGenerators {
		rng := rand.New(rand.NewSource(7))
		for round := 0; round < 200; round++ {
			p := g.gen(rng, 1+rng.Intn(12))
			t.Run(fmt.Sprintf("%s/round_%d", g.name, round), func(t *testing.T) {
				got := New().Solve(context.Background(), p, generousBudget)

				require.Equal(t, Optimal, got.Status)
				assert.InDelta(t, bruteForce(p), got.Value, 1e-9)
				assertFeasible(t, p, got)
			})
		}
	}
}

func TestSolveReturnsFeasibleSolutionsForAnyBudget(t *testing.T) {
	t.Parallel()

	budgets := []time.Duration{-time.Second, 0, time.Nanosecond, time.Millisecond, generousBudget}
	for _, g := range problemGenerators {
		rng := rand.New(rand.NewSource(11))
		for round := 0; round < 20; round++ {
			p := g.gen(rng, 50+rng.Intn(150))
			for _, budget := range budgets {
				got := New().Solve(context.Background(), p, budget)
				assertFeasible(t, p, got)
				assert.GreaterOrEqual(t, got.Value, greedyValue(p)-1e-6, "%s budget=%v", g.name, budget)
			}
		}
	}
}

func TestSolveWeightSummedInInputOrderStaysWithinCapacity(t *testing.T) {
	t.Parallel()

	// Capacity equals the ratio-order sum of every weight, so the full set
	// fits during the search but may not fit once summed in input order.
	rng := rand.New(rand.NewSource(17))
	for round := 0; round < 500; round++ {
		n := 3 + rng.Intn(3)
		items := make([]Item, n)
		for i := range items {
			items[i] = Item{ID: fmt.Sprintf("item-%d", i), Value: 0.1 + rng.Float64(), Weight: rng.Float64()}
		}
		byRatio := append([]Item(nil), items...)
		sort.SliceStable(byRatio, func(i, j int) bool {
			return byRatio[i].Value/byRatio[i].Weight > byRatio[j].Value/byRatio[j].Weight
		})
		capacity := 0.0
		for _, it := range byRatio {
			capacity += it.Weight
		}
		p := Problem{Items: items, Capacity: capacity}

		for _, budget := range []time.Duration{0, generousBudget} {
			got := New().Solve(context.Background(), p, budget)
			require.LessOrEqual(t, got.Weight(), p.Capacity, "round %d budget=%v items=%+v", round, budget, items)
			assertFeasible(t, p, got)
			if budget > 0 {
				assert.InDelta(t, bruteForce(p), got.Value, 1e-9, "round %d", round)
			}
		}
	}
}

func TestSolveZeroBudgetReturnsGreedySelection(t *testing.T) {
	t.Parallel()

	p := Problem{
		Items: []Item{
			{ID: "a", Value: 60, Weight: 10},
			{ID: "b", Value: 100, Weight: 20},
			{ID: "c", Value: 120, Weight: 30},
		},
		Capacity: 50,
	}

	got := New().Solve(context.Background(), p, 0)

	assert.Equal(t, TimedOut, got.Status)
	assert.Equal(t, []string{"a", "b"}, ids(got.Items))
	assert.Equal(t, 160.0, got.Value)
	assert.Zero(t, got.Nodes)
}

func TestSolveZeroBudgetProvesTrivialOptimum(t *testing.T) {
	t.Parallel()

	p := Problem{Items: []Item{{ID: "a", Value: 10, Weight: 5}}, Capacity: 5}

	got := New().Solve(context.Background(), p, 0)

	assert.Equal(t, Optimal, got.Status)
	assert.Equal(t, []string{"a"}, ids(got.Items))
}

func TestSolveCancelledContextSkipsSearch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Problem{
		Items: []Item{
			{ID: "a", Value: 60, Weight: 10},
			{ID: "b", Value: 100, Weight: 20},
			{ID: "c", Value: 120, Weight: 30},
		},
		Capacity: 50,
	}

	got := New().Solve(ctx, p, generousBudget)

	assert.Equal(t, TimedOut, got.Status)
	assert.Equal(t, 160.0, got.Value)
}

func TestSolveStopsWhenClockPassesDeadline(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(time.Hour)
	}

	p := Problem{
		Items: []Item{
			{ID: "a", Value: 60, Weight: 10},
			{ID: "b", Value: 100, Weight: 20},
			{ID: "c", Value: 120, Weight: 30},
		},
		Capacity: 50,
	}

	got := New(WithClock(clock), WithCheckInterval(1)).Solve(context.Background(), p, time.Second)

	assert.Equal(t, TimedOut, got.Status)
	assert.Equal(t, []string{"a", "b"}, ids(got.Items))
	assert.Equal(t, int64(1), got.Nodes)
}

func TestSolveLargeInstanceTimesOut(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	p := stronglyCorrelatedProblem(rng, 1000)

	got := New().Solve(context.Background(), p, 5*time.Millisecond)

	require.Equal(t, TimedOut, got.Status)
	assertFeasible(t, p, got)
	assert.GreaterOrEqual(t, got.Value, greedyValue(p)-1e-6)
}

func TestSolveIsDeterministic(t *testing.T) {
	t.Parallel()

	for _, g := range problemGenerators {
		rng := rand.New(rand.NewSource(3))
		for round := 0; round < 20; round++ {
			p := g.gen(rng, 30)
			first := New().Solve(context.Background(), p, generousBudget)
			second := New().Solve(context.Background(), p, generousBudget)

			require.Equal(t, Optimal, first.Status, g.name)
			assert.Equal(t, first.Items, second.Items)
			assert.Equal(t, first.Value, second.Value)
		}
	}
}

func TestSolveWeightlessItemNeverLowersOptimum(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(5))
	for round := 0; round < 50; round++ {
		p := randomProblem(rng, 1+rng.Intn(20))
		before := New().Solve(context.Background(), p, generousBudget)

		extended := Problem{
			Items:    append(append([]Item{}, p.Items...), Item{ID: "free", Value: 1 + rng.Float64(), Weight: 0}),
			Capacity: p.Capacity,
		}
		after := New().Solve(context.Background(), extended, generousBudget)

		require.Equal(t, Optimal, after.Status)
		assert.GreaterOrEqual(t, after.Value, before.Value)
		assert.Contains(t, ids(after.Items), "free")
	}
}

func TestSolverIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	s := New()
	p := Problem{
		Items: []Item{
			{ID: "a", Value: 60, Weight: 10},
			{ID: "b", Value: 100, Weight: 20},
			{ID: "c", Value: 120, Weight: 30},
		},
		Capacity: 50,
	}

	results := make(chan Solution, 16)
	for i := 0; i < cap(results); i++ {
		go func() {
			results <- s.Solve(context.Background(), p, generousBudget)
		}()
	}
	for i := 0; i < cap(results); i++ {
		got := <-results
		assert.Equal(t, []string{"b", "c"}, ids(got.Items))
	}
}

func TestWithCheckIntervalRoundsToPowerOfTwo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		nodes    int
		wantMask int64
	}{
		{nodes: 1, wantMask: 0},
		{nodes: 3, wantMask: 3},
		{nodes: 1000, wantMask: 1023},
		{nodes: 4096, wantMask: 4095},
		{nodes: 0, wantMask: defaultCheckInterval - 1},
		{nodes: -8, wantMask: defaultCheckInterval - 1},
	}
	for _, tc := range tests {
		s := New(WithCheckInterval(tc.nodes)).(*bbSolver)
		assert.Equal(t, tc.wantMask, s.checkMask, "nodes=%d", tc.nodes)
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Optimal", Optimal.String())
	assert.Equal(t, "TimedOut", TimedOut.String())
	assert.Equal(t, "Infeasible", Infeasible.String())
	assert.Equal(t, "Unknown", Status(99).String())
}

func TestBoundIsAdmissibleAtRoot(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(13))
	for round := 0; round < 100; round++ {
		p := randomProblem(rng, 1+rng.Intn(10))
		e := newEngine(context.Background(), p, defaultCheckInterval-1, time.Now)
		assert.GreaterOrEqual(t, e.bound(0, 0, 0)+1e-9, bruteForce(p))
	}
}

func assertFeasible(t *testing.T, p Problem, sol Solution) {
	t.Helper()

	if sol.Status == Infeasible {
		assert.Empty(t, sol.Items)
		return
	}
	assert.LessOrEqual(t, sol.Weight(), p.Capacity)

	sum := 0.0
	for _, it := range sol.Items {
		sum += it.Value
	}
	assert.Equal(t, sum, sol.Value)

	// Selection must be a sub-sequence of the input without repeats.
	next := 0
	for _, it := range sol.Items {
		for next < len(p.Items) && p.Items[next] != it {
			next++
		}
		require.Less(t, next, len(p.Items), "item %q is not a sub-sequence element", it.ID)
		next++
	}
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func randomProblem(rng *rand.Rand, n int) Problem {
	items := make([]Item, n)
	total := 0.0
	for i := range items {
		w := float64(1 + rng.Intn(100))
		if rng.Intn(10) == 0 {
			w = 0
		}
		items[i] = Item{
			ID:     fmt.Sprintf("item-%d", i),
			Value:  float64(rng.Intn(200)),
			Weight: w,
		}
		total += w
	}
	return Problem{Items: items, Capacity: float64(int(total * rng.Float64()))}
}

func randomRealProblem(rng *rand.Rand, n int) Problem {
	items := make([]Item, n)
	total := 0.0
	for i := range items {
		w := rng.Float64() * 10
		items[i] = Item{
			ID:     fmt.Sprintf("item-%d", i),
			Value:  rng.Float64() * 100,
			Weight: w,
		}
		total += w
	}
	return Problem{Items: items, Capacity: total * rng.Float64()}
}

// stronglyCorrelatedProblem builds instances where value tracks weight, which
// keeps the fractional bound loose and the search tree wide.
func stronglyCorrelatedProblem(rng *rand.Rand, n int) Problem {
	items := make([]Item, n)
	total := 0.0
	for i := range items {
		w := 1 + rng.Float64()*999
		items[i] = Item{ID: fmt.Sprintf("item-%d", i), Value: w + 100, Weight: w}
		total += w
	}
	return Problem{Items: items, Capacity: total / 2}
}

func bruteForce(p Problem) float64 {
	best := 0.0
	n := len(p.Items)
	for mask := 0; mask < 1<<n; mask++ {
		weight, value := 0.0, 0.0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				weight += p.Items[i].Weight
				value += p.Items[i].Value
			}
		}
		if weight <= p.Capacity && value > best {
			best = value
		}
	}
	return best
}

func greedyValue(p Problem) float64 {
	type entry struct {
		index int
		ratio float64
	}
	entries := make([]entry, 0, len(p.Items))
	for i, it := range p.Items {
		if it.Value <= 0 || it.Weight > p.Capacity {
			continue
		}
		ratio := it.Value / it.Weight
		if it.Weight == 0 {
			ratio = 1e308
		}
		entries = append(entries, entry{index: i, ratio: ratio})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ratio > entries[j].ratio })

	weight, value := 0.0, 0.0
	for _, e := range entries {
		it := p.Items[e.index]
		if weight+it.Weight <= p.Capacity {
			weight += it.Weight
			value += it.Value
		}
	}
	return value
}

func BenchmarkSolveRandom100(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	p := randomProblem(rng, 100)
	s := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Solve(context.Background(), p, generousBudget)
	}
}

func BenchmarkSolveRandom1000(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	p := randomProblem(rng, 1000)
	s := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Solve(context.Background(), p, time.Second)
	}
}
