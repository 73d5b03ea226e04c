package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/eugenenazirov/knapsack/internal/codec"
)

const defaultCapacity = 100

var (
	// ErrNotFound indicates that no run with the requested ID is retained.
	ErrNotFound = errors.New("run not found")
	// ErrInvalidRun indicates the run is missing its identifier.
	ErrInvalidRun = errors.New("run must have an id")
)

// Run is a completed solve kept for later retrieval.
type Run struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdAt"`
	Result    codec.Output `json:"result"`
}

// Summary is the listing view of a Run.
type Summary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      string    `json:"status"`
	Value       float64   `json:"value"`
	NumItems    int       `json:"numItems"`
	NumSelected int       `json:"numSelected"`
}

// Storage provides access to completed runs.
type Storage interface {
	PutRun(run Run) error
	GetRun(id string) (Run, error)
	ListRuns() ([]Summary, error)
}

// MemoryStorage keeps the most recent runs in memory and guards access with a
// RWMutex. Once full, the oldest run is evicted.
type MemoryStorage struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	runs     map[string]Run
}

// NewMemoryStorage initialises storage that retains at most capacity runs.
// A non-positive capacity falls back to the default of 100.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStorage{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		runs:     make(map[string]Run, capacity),
	}
}

// PutRun stores run, replacing any run with the same ID.
func (s *MemoryStorage) PutRun(run Run) error {
	if run.ID == "" {
		return ErrInvalidRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		s.runs[run.ID] = run
		return nil
	}
	if len(s.order) == s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
	s.order = append(s.order, run.ID)
	s.runs[run.ID] = run
	return nil
}

// GetRun returns the run with the given ID.
func (s *MemoryStorage) GetRun(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// ListRuns returns summaries of retained runs, newest first.
func (s *MemoryStorage) ListRuns() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, summarize(s.runs[s.order[i]]))
	}
	return out, nil
}

func summarize(run Run) Summary {
	custom := run.Result.Statistics.Result.Custom
	return Summary{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt,
		Status:      custom.Status,
		Value:       run.Result.Statistics.Result.Value,
		NumItems:    custom.NumItems,
		NumSelected: custom.NumSelected,
	}
}
