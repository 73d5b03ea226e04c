package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eugenenazirov/knapsack/internal/codec"
	"github.com/eugenenazirov/knapsack/internal/solver"
	"github.com/eugenenazirov/knapsack/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// MaxBodyBytes caps the size of a problem document accepted by the API.
const MaxBodyBytes = 8 << 20

const (
	defaultBudget    = 30 * time.Second
	defaultMaxBudget = 60 * time.Second
)

// Handler wires solver and storage dependencies into HTTP handlers.
type Handler struct {
	solver  solver.Solver
	storage storage.Storage

	clock func() time.Time
	newID func() string

	budget    time.Duration
	maxBudget time.Duration
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithIDGenerator overrides how run IDs are generated, primarily for tests.
func WithIDGenerator(newID func() string) HandlerOption {
	return func(h *Handler) {
		h.newID = newID
	}
}

// WithBudget sets the budget used when a request does not specify one and
// the upper bound applied to requested budgets.
func WithBudget(budget, maxBudget time.Duration) HandlerOption {
	return func(h *Handler) {
		h.budget = budget
		if maxBudget > 0 {
			h.maxBudget = maxBudget
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(s solver.Solver, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		solver:  s,
		storage: store,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: func() string {
			return uuid.New().String()
		},
		budget:    defaultBudget,
		maxBudget: defaultMaxBudget,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	budget, err := h.requestBudget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}

	problem, err := codec.Parse(data, requestFormat(r))
	if err != nil {
		writeInputError(w, err)
		return
	}

	start := time.Now()
	sol := h.solver.Solve(r.Context(), problem, budget)
	elapsed := time.Since(start)

	// A client that went away cannot read the run, so nothing is stored.
	if err := r.Context().Err(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Request cancelled", err.Error())
		return
	}

	run := storage.Run{
		ID:        h.newID(),
		CreatedAt: h.clock(),
		Result: codec.NewOutput(sol, codec.RunMeta{
			Input:   "api",
			Budget:  budget,
			Elapsed: elapsed,
		}, len(problem.Items)),
	}
	if err := h.storage.PutRun(run); err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	_ = r
	runs, err := h.storage.ListRuns()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.storage.GetRun(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", "the run does not exist or has been evicted")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// requestBudget reads the optional duration query parameter (whole seconds)
// and clamps it to the configured maximum.
func (h *Handler) requestBudget(r *http.Request) (time.Duration, error) {
	budget := h.budget
	if raw := r.URL.Query().Get("duration"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errors.New("duration must be a whole number of seconds")
		}
		switch {
		case seconds <= 0:
			budget = 0
		case seconds > int64(h.maxBudget/time.Second):
			budget = h.maxBudget
		default:
			budget = time.Duration(seconds) * time.Second
		}
	}
	if budget > h.maxBudget {
		budget = h.maxBudget
	}
	return budget, nil
}

func requestFormat(r *http.Request) codec.Format {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return codec.FormatJSON
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return codec.FormatYAML
	default:
		return codec.FormatJSON
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type runsResponse struct {
	Runs []storage.Summary `json:"runs"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}

func writeInputError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Error:   "Invalid input",
		Details: err.Error(),
	}
	var verr *codec.ValidationError
	if errors.As(err, &verr) {
		resp.Details = codec.ErrInvalidInput.Error()
		for _, p := range verr.Problems {
			resp.Problems = append(resp.Problems, p.Error())
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
