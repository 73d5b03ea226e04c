package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/knapsack/internal/solver"
)

// Format selects the document syntax of a problem.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// ErrInvalidInput is matched by every error Decode returns for a malformed document.
var ErrInvalidInput = errors.New("invalid knapsack input")

// ValidationError lists every problem found in a syntactically valid document.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// FormatFromPath picks YAML for .yaml and .yml files and JSON for anything
// else, including standard input.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// inputDocument mirrors the problem document. Pointer fields tell a missing
// field apart from a zero value.
type inputDocument struct {
	Items          *[]inputItem `json:"items" yaml:"items"`
	WeightCapacity *float64     `json:"weight_capacity" yaml:"weight_capacity"`
}

type inputItem struct {
	ID     *string  `json:"id" yaml:"id"`
	Value  *float64 `json:"value" yaml:"value"`
	Weight *float64 `json:"weight" yaml:"weight"`
}

// Decode reads and validates a problem document.
func Decode(r io.Reader, format Format) (solver.Problem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return solver.Problem{}, fmt.Errorf("read input: %w", err)
	}
	return Parse(data, format)
}

// Parse validates a problem document that is already in memory.
func Parse(data []byte, format Format) (solver.Problem, error) {
	var doc inputDocument
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return solver.Problem{}, fmt.Errorf("%w: parse YAML: %v", ErrInvalidInput, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return solver.Problem{}, fmt.Errorf("%w: parse JSON: %v", ErrInvalidInput, err)
		}
	}
	return doc.validate()
}

func (d inputDocument) validate() (solver.Problem, error) {
	var errs error
	if d.Items == nil {
		errs = multierr.Append(errs, errors.New(`missing field "items"`))
	}
	if d.WeightCapacity == nil {
		errs = multierr.Append(errs, errors.New(`missing field "weight_capacity"`))
	} else if !finite(*d.WeightCapacity) {
		errs = multierr.Append(errs, errors.New("weight_capacity must be a finite number"))
	}

	var problem solver.Problem
	if d.Items != nil {
		problem.Items = make([]solver.Item, 0, len(*d.Items))
		for i, it := range *d.Items {
			item, err := it.validate(i)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			problem.Items = append(problem.Items, item)
		}
	}

	if errs != nil {
		return solver.Problem{}, &ValidationError{Problems: multierr.Errors(errs)}
	}
	problem.Capacity = *d.WeightCapacity
	return problem, nil
}

func (it inputItem) validate(index int) (solver.Item, error) {
	var errs error
	if it.ID == nil {
		errs = multierr.Append(errs, fmt.Errorf(`items[%d]: missing field "id"`, index))
	}
	if it.Value == nil {
		errs = multierr.Append(errs, fmt.Errorf(`items[%d]: missing field "value"`, index))
	} else if !finite(*it.Value) {
		errs = multierr.Append(errs, fmt.Errorf("items[%d]: value must be a finite number", index))
	}
	switch {
	case it.Weight == nil:
		errs = multierr.Append(errs, fmt.Errorf(`items[%d]: missing field "weight"`, index))
	case !finite(*it.Weight):
		errs = multierr.Append(errs, fmt.Errorf("items[%d]: weight must be a finite number", index))
	case *it.Weight < 0:
		errs = multierr.Append(errs, fmt.Errorf("items[%d]: weight must be non-negative, got %g", index, *it.Weight))
	}
	if errs != nil {
		return solver.Item{}, errs
	}
	return solver.Item{ID: *it.ID, Value: *it.Value, Weight: *it.Weight}, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
