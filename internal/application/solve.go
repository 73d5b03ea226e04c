package application

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/knapsack/internal/codec"
	"github.com/eugenenazirov/knapsack/internal/solver"
)

// SolveJob describes one invocation of the solve command. Empty paths mean
// the standard streams.
type SolveJob struct {
	InputPath  string
	OutputPath string
	Budget     time.Duration

	Stdin  io.Reader
	Stdout io.Writer
}

// RunSolve reads a problem, solves it and writes the result document.
// Errors are returned for malformed input and I/O failures; every solver
// status is a success. No output is written unless the whole document could
// be produced.
func RunSolve(ctx context.Context, job SolveJob, s solver.Solver, logger *zap.Logger) error {
	start := time.Now()

	problem, err := readProblem(job, logger)
	if err != nil {
		return err
	}
	logger.Debug("problem decoded",
		zap.Int("items", len(problem.Items)),
		zap.Float64("capacity", problem.Capacity),
		zap.Duration("budget", job.Budget),
	)

	sol := s.Solve(ctx, problem, job.Budget)
	elapsed := time.Since(start)

	logger.Info("solve finished",
		zap.Stringer("status", sol.Status),
		zap.Float64("value", sol.Value),
		zap.Int("selected", len(sol.Items)),
		zap.Int("items", len(problem.Items)),
		zap.Int64("nodes", sol.Nodes),
		zap.Duration("elapsed", elapsed),
	)

	out := codec.NewOutput(sol, codec.RunMeta{
		Input:   job.InputPath,
		Output:  job.OutputPath,
		Budget:  job.Budget,
		Elapsed: elapsed,
	}, len(problem.Items))

	return writeOutput(job, out, logger)
}

func readProblem(job SolveJob, logger *zap.Logger) (solver.Problem, error) {
	if job.InputPath == "" {
		logger.Info("reading input from stdin")
		problem, err := codec.Decode(job.Stdin, codec.FormatJSON)
		if err != nil {
			return solver.Problem{}, fmt.Errorf("decode stdin: %w", err)
		}
		return problem, nil
	}

	logger.Info("reading input", zap.String("path", job.InputPath))
	f, err := os.Open(job.InputPath)
	if err != nil {
		return solver.Problem{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	problem, err := codec.Decode(f, codec.FormatFromPath(job.InputPath))
	if err != nil {
		return solver.Problem{}, fmt.Errorf("decode %s: %w", job.InputPath, err)
	}
	return problem, nil
}

func writeOutput(job SolveJob, out codec.Output, logger *zap.Logger) error {
	data, err := codec.Marshal(out)
	if err != nil {
		return err
	}

	if job.OutputPath == "" {
		if _, err := job.Stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	logger.Info("writing output", zap.String("path", job.OutputPath))
	return writeFileAtomic(job.OutputPath, data)
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
