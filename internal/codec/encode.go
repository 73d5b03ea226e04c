package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/eugenenazirov/knapsack/internal/solver"
)

// SchemaVersion is reported in every result document.
const SchemaVersion = "v1"

// RunMeta describes how a solve was invoked.
type RunMeta struct {
	Input   string
	Output  string
	Budget  time.Duration
	Elapsed time.Duration
}

// Output is the result document.
type Output struct {
	Options    Options    `json:"options"`
	Solution   Selection  `json:"solution"`
	Statistics Statistics `json:"statistics"`
	Assets     []any      `json:"assets"`
}

// Options echoes the invocation. Duration is the budget in whole seconds.
type Options struct {
	Input    string `json:"input"`
	Output   string `json:"output"`
	Duration int64  `json:"duration"`
}

type Selection struct {
	Items []Item `json:"items"`
}

type Item struct {
	ID     string  `json:"id"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

type Statistics struct {
	Run    RunStatistics    `json:"run"`
	Result ResultStatistics `json:"result"`
	Schema string           `json:"schema"`
}

type RunStatistics struct {
	Duration float64 `json:"duration"`
}

type ResultStatistics struct {
	Value  float64      `json:"value"`
	Custom CustomResult `json:"custom"`
}

type CustomResult struct {
	Status      string `json:"status"`
	NumItems    int    `json:"num_items"`
	NumSelected int    `json:"num_selected"`
	Nodes       int64  `json:"nodes"`
}

// NewOutput builds the result document for sol. numItems is the size of the
// solved problem.
func NewOutput(sol solver.Solution, meta RunMeta, numItems int) Output {
	items := make([]Item, 0, len(sol.Items))
	for _, it := range sol.Items {
		items = append(items, Item{ID: it.ID, Value: it.Value, Weight: it.Weight})
	}

	return Output{
		Options: Options{
			Input:    meta.Input,
			Output:   meta.Output,
			Duration: int64(meta.Budget / time.Second),
		},
		Solution: Selection{Items: items},
		Statistics: Statistics{
			Run: RunStatistics{Duration: meta.Elapsed.Seconds()},
			Result: ResultStatistics{
				Value: sol.Value,
				Custom: CustomResult{
					Status:      sol.Status.String(),
					NumItems:    numItems,
					NumSelected: len(items),
					Nodes:       sol.Nodes,
				},
			},
			Schema: SchemaVersion,
		},
		Assets: []any{},
	}
}

// Marshal renders out as indented JSON terminated by a newline.
func Marshal(out Output) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode writes out to w. Nothing is written if encoding fails.
func Encode(w io.Writer, out Output) error {
	data, err := Marshal(out)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
