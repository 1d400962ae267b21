package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ketgo"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/qubit"
)

// RunFile describes one simulation.
type RunFile struct {
	Qubits        int    `yaml:"qubits"`
	Ranks         int    `yaml:"ranks"`
	PageQubits    int    `yaml:"page_qubits"`
	OnCacheQubits int    `yaml:"on_cache_qubits"`
	Workers       int    `yaml:"workers"`
	Storage       string `yaml:"storage"`     // heap, anonymous or file
	StorageDir    string `yaml:"storage_dir"` // for file storage
	Selector      string `yaml:"selector"`    // top or low
	ExchangeUnit  int    `yaml:"exchange_unit"`
	InitialState  uint64 `yaml:"initial_state"`
	Seed          int64  `yaml:"seed"`
	Steps         []Step `yaml:"steps"`
	MemoryLimit   int64  `yaml:"memory_limit"`
	ExchangeRate  int64  `yaml:"exchange_rate"`
}

// Step is one line of the circuit. Exactly one of Gate, Measure, Swap and
// Sample is set. Sample draws that many basis states without collapsing.
type Step struct {
	Gate    string    `yaml:"gate,omitempty"`
	Qubits  []uint32  `yaml:"qubits,omitempty"`
	Params  []float64 `yaml:"params,omitempty"`
	Measure *uint32   `yaml:"measure,omitempty"`
	Swap    []uint32  `yaml:"swap,omitempty"`
	Sample  *int      `yaml:"sample,omitempty"`

	g gate.Gate
}

var errRunFile = errors.New("invalid run file")

// LoadRunFile reads and validates a run file.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRunFile(data)
}

// ParseRunFile decodes and validates a run file.
func ParseRunFile(data []byte) (*RunFile, error) {
	rf := &RunFile{Ranks: 1, Workers: 1}
	if err := yaml.Unmarshal(data, rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	if err := rf.validate(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RunFile) validate() error {
	if rf.Qubits <= 0 {
		return fmt.Errorf("%w: qubits must be positive", errRunFile)
	}
	for i := range rf.Steps {
		st := &rf.Steps[i]
		set := 0
		if st.Gate != "" {
			set++
		}
		if st.Measure != nil {
			set++
		}
		if st.Swap != nil {
			set++
		}
		if st.Sample != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("%w: step %d must set exactly one of gate, measure, swap, sample", errRunFile, i)
		}

		switch {
		case st.Gate != "":
			g, err := gate.Lookup(st.Gate, st.Params...)
			if err != nil {
				return fmt.Errorf("%w: step %d: %w", errRunFile, i, err)
			}
			if err := g.Check(len(st.Qubits)); err != nil {
				return fmt.Errorf("%w: step %d: %w", errRunFile, i, err)
			}
			st.g = g
		case st.Swap != nil && len(st.Swap) != 2:
			return fmt.Errorf("%w: step %d: swap takes two qubits", errRunFile, i)
		case st.Sample != nil && *st.Sample <= 0:
			return fmt.Errorf("%w: step %d: sample needs a positive shot count", errRunFile, i)
		}
	}
	switch rf.Storage {
	case "", "heap", "anonymous":
	case "file":
		if rf.StorageDir == "" {
			return fmt.Errorf("%w: file storage needs storage_dir", errRunFile)
		}
	default:
		return fmt.Errorf("%w: unknown storage %q", errRunFile, rf.Storage)
	}
	switch rf.Selector {
	case "", "top", "low":
	default:
		return fmt.Errorf("%w: unknown selector %q", errRunFile, rf.Selector)
	}
	return nil
}

// options translates the run file into simulator options.
func (rf *RunFile) options() []ketgo.Option {
	opts := []ketgo.Option{
		ketgo.WithPageQubits(rf.PageQubits),
		ketgo.WithOnCacheQubits(rf.OnCacheQubits),
		ketgo.WithWorkers(rf.Workers),
		ketgo.WithInitialState(rf.InitialState),
		ketgo.WithExchangeBufferSize(rf.ExchangeUnit),
		ketgo.WithMemoryLimit(rf.MemoryLimit),
		ketgo.WithExchangeRateLimit(rf.ExchangeRate),
	}
	switch rf.Storage {
	case "anonymous":
		opts = append(opts, ketgo.WithPageStorage(ketgo.AnonymousStorage()))
	case "file":
		opts = append(opts, ketgo.WithPageStorage(ketgo.FileStorage(rf.StorageDir)))
	}
	if rf.Selector == "low" {
		opts = append(opts, ketgo.WithSelector(ketgo.SelectLowFree))
	}
	return opts
}

func toQubits(qs []uint32) []qubit.Qubit {
	out := make([]qubit.Qubit, len(qs))
	for i, q := range qs {
		out[i] = qubit.Qubit(q)
	}
	return out
}
