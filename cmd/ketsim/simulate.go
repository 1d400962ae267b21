package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"math/rand"
	"slices"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ketgo"
	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/comm/inproc"
	"github.com/hupe1980/ketgo/prommetrics"
	"github.com/hupe1980/ketgo/qubit"
)

const (
	// maxAmplitudeQubits bounds the amplitude listing.
	maxAmplitudeQubits = 10
	// maxSupportStates bounds the listing of basis states with weight.
	maxSupportStates = 64
	// supportThreshold is the probability above which a basis state counts as populated.
	supportThreshold = 1e-12
)

// Measurement is the outcome of one measure step.
type Measurement struct {
	Step    int    `yaml:"step"`
	Qubit   uint32 `yaml:"qubit"`
	Outcome int    `yaml:"outcome"`
}

// Events is the histogram of one sample step.
type Events struct {
	Step   int            `yaml:"step"`
	Shots  int            `yaml:"shots"`
	Counts map[uint64]int `yaml:"counts"` // by logical basis state
}

// Result is what rank 0 reports after the circuit.
type Result struct {
	Qubits        int           `yaml:"qubits"`
	Ranks         int           `yaml:"ranks"`
	Layout        string        `yaml:"layout"`
	Measurements  []Measurement `yaml:"measurements"`
	Events        []Events      `yaml:"events,omitempty"`
	Probabilities []float64     `yaml:"probabilities"` // P(qubit = 1), by logical qubit
	Norm          float64       `yaml:"norm"`
	SupportSize   uint64        `yaml:"support_size"`
	Support       []uint64      `yaml:"support,omitempty"` // omitted above maxSupportStates
	Amplitudes    []string      `yaml:"amplitudes,omitempty"`
}

type runConfig struct {
	amplitudes bool
	logger     *ketgo.Logger
	registry   prometheus.Registerer
}

// simulate runs rf on the rank behind c. Every rank returns the same result.
func simulate(ctx context.Context, rf *RunFile, c comm.Communicator, cfg runConfig) (*Result, error) {
	opts := rf.options()
	if cfg.logger != nil {
		opts = append(opts, ketgo.WithLogger(cfg.logger))
	}
	if cfg.registry != nil {
		mc, err := prommetrics.New(cfg.registry, prommetrics.WithConstLabels(prometheus.Labels{"rank": strconv.Itoa(c.Rank())}))
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, ketgo.WithMetricsCollector(mc))
	}

	sim, err := ketgo.New(ctx, c, rf.Qubits, opts...)
	if err != nil {
		return nil, err
	}
	defer sim.Close()

	var rng *rand.Rand
	if c.Rank() == 0 {
		rng = rand.New(rand.NewSource(rf.Seed))
	}

	res := &Result{Qubits: rf.Qubits, Ranks: c.Size(), Layout: sim.Layout().String()}
	for i, st := range rf.Steps {
		switch {
		case st.Gate != "":
			err = sim.Apply(ctx, st.g, toQubits(st.Qubits)...)
		case st.Measure != nil:
			var o ketgo.Outcome
			o, err = sim.Measure(ctx, qubit.Qubit(*st.Measure), rng)
			res.Measurements = append(res.Measurements, Measurement{Step: i, Qubit: *st.Measure, Outcome: int(o)})
		case st.Sample != nil:
			var samples []uint64
			samples, err = sim.Sample(ctx, *st.Sample, rng)
			ev := Events{Step: i, Shots: *st.Sample, Counts: make(map[uint64]int)}
			for _, x := range samples {
				ev.Counts[x]++
			}
			res.Events = append(res.Events, ev)
		default:
			err = sim.SwapQubits(qubit.Qubit(st.Swap[0]), qubit.Qubit(st.Swap[1]))
		}
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	res.Probabilities = make([]float64, rf.Qubits)
	for q := range res.Probabilities {
		_, p1, err := sim.Probabilities(ctx, qubit.Qubit(q))
		if err != nil {
			return nil, err
		}
		res.Probabilities[q] = p1
	}
	if res.Norm, err = sim.Norm(ctx); err != nil {
		return nil, err
	}

	support, err := sim.Support(ctx, supportThreshold)
	if err != nil {
		return nil, err
	}
	res.SupportSize = support.GetCardinality()
	if res.SupportSize <= maxSupportStates {
		res.Support = support.ToArray()
	}

	if cfg.amplitudes && rf.Qubits <= maxAmplitudeQubits {
		amps, err := sim.Amplitudes(ctx)
		if err != nil {
			return nil, err
		}
		res.Amplitudes = make([]string, len(amps))
		for i, a := range amps {
			res.Amplitudes[i] = fmt.Sprintf("%.6f%+.6fi", real(a), imag(a))
		}
	}
	return res, nil
}

// runInproc runs every rank of rf as a goroutine of this process.
func runInproc(ctx context.Context, rf *RunFile, cfg runConfig) (*Result, error) {
	comms := inproc.NewCommunicators(rf.Ranks)
	defer func() {
		for _, c := range comms {
			_ = c.Close()
		}
	}()

	results := make([]*Result, len(comms))
	g, ctx := errgroup.WithContext(ctx)
	for r, c := range comms {
		g.Go(func() error {
			res, err := simulate(ctx, rf, c, cfg)
			results[r] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results[0], nil
}

func writeResult(w io.Writer, res *Result, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(w, "layout: %s\n", res.Layout)
	for _, m := range res.Measurements {
		fmt.Fprintf(w, "step %d: measure q%d -> %d\n", m.Step, m.Qubit, m.Outcome)
	}
	for _, ev := range res.Events {
		fmt.Fprintf(w, "step %d: sample %d shots\n", ev.Step, ev.Shots)
		for _, x := range slices.Sorted(maps.Keys(ev.Counts)) {
			fmt.Fprintf(w, "  |%0*b> %d\n", res.Qubits, x, ev.Counts[x])
		}
	}
	for q, p := range res.Probabilities {
		fmt.Fprintf(w, "P(q%d=1) = %.6f\n", q, p)
	}
	fmt.Fprintf(w, "norm = %.12f\n", res.Norm)
	fmt.Fprintf(w, "support: %d basis states\n", res.SupportSize)
	for _, x := range res.Support {
		fmt.Fprintf(w, "  |%0*b>\n", res.Qubits, x)
	}
	for i, a := range res.Amplitudes {
		fmt.Fprintf(w, "|%0*b> %s\n", res.Qubits, i, a)
	}
	return nil
}
