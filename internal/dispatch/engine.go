// Package dispatch routes a gate kernel to the executor matching the page
// layout of its operands.
//
// All executors enumerate the same sibling groups: for operands at permutated
// positions p_0..p_{k-1}, a group is the 2^k local indices that differ only in
// those bits, and entry j of the group has bit p_i equal to bit i of j. The
// executors differ only in how they reach the amplitudes (directly inside a
// page, across pages, or through the on-cache buffer), so every path gives the
// same result.
package dispatch

import (
	"context"
	"fmt"

	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/mem"
	"github.com/hupe1980/ketgo/internal/parallel"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/internal/state"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

// Body is invoked once per sibling group. worker identifies the calling worker
// (0 <= worker < Engine.Workers()) so reductions can keep per-worker sums.
type Body func(worker int, amps []*complex128)

// Engine executes operations on one rank's local state.
// It is not safe for concurrent use.
type Engine struct {
	state  *state.Local
	layout partition.Layout
	policy parallel.Policy

	cache []complex128 // on-cache buffer, nil unless staging is enabled
	ctrl  *resource.Controller
}

// New creates an engine over st. The on-cache buffer is reserved on ctrl.
func New(st *state.Local, policy parallel.Policy, ctrl *resource.Controller) (*Engine, error) {
	if policy == nil {
		policy = parallel.Sequential{}
	}
	e := &Engine{
		state:  st,
		layout: st.Layout(),
		policy: policy,
		ctrl:   ctrl,
	}
	if size := e.layout.OnCacheSize(); size > 0 {
		if err := ctrl.AcquireMemory(int64(mem.Complex128Bytes(int(size)))); err != nil {
			return nil, fmt.Errorf("reserve on-cache buffer: %w", err)
		}
		e.cache = mem.AllocAlignedComplex128(int(size))
	}
	return e, nil
}

// Workers returns the number of distinct worker ids a Body may observe.
func (e *Engine) Workers() int { return e.policy.Workers() }

// State returns the local state the engine operates on.
func (e *Engine) State() *state.Local { return e.state }

// Layout returns the partition of the local state.
func (e *Engine) Layout() partition.Layout { return e.layout }

// Apply runs the kernel of g on the operands at positions.
func (e *Engine) Apply(ctx context.Context, g gate.Gate, positions []qubit.Permutated) (Path, error) {
	if err := g.Check(len(positions)); err != nil {
		return 0, err
	}
	kernel := g.Kernel
	return e.Run(ctx, g.Name, positions, func(_ int, amps []*complex128) {
		kernel(amps)
	})
}

// Run selects a path for positions and invokes body for every sibling group.
func (e *Engine) Run(ctx context.Context, name string, positions []qubit.Permutated, body Body) (Path, error) {
	path, err := SelectPath(e.layout, positions)
	if err != nil {
		if upe, ok := err.(*UnsupportedPageOperationError); ok {
			upe.Name = name
		}
		return 0, err
	}

	pos := make([]uint, len(positions))
	for i, p := range positions {
		pos[i] = uint(p)
	}

	switch path {
	case Local:
		err = e.runLocal(ctx, pos, body)
	case Page:
		err = e.runPage(ctx, pos, body)
	case Mixed:
		err = e.runMixed(ctx, pos, body)
	case Staged:
		err = e.runStaged(ctx, pos, body)
	}
	return path, err
}

// ReduceBody adds the contribution of one sibling group to acc.
type ReduceBody func(acc []float64, amps []*complex128)

// Reduce runs body over every sibling group of positions and returns width
// sums. Each worker accumulates privately; the partial sums are combined in
// worker order.
func (e *Engine) Reduce(ctx context.Context, name string, positions []qubit.Permutated, width int, body ReduceBody) ([]float64, Path, error) {
	partial := make([][]float64, e.Workers())
	for w := range partial {
		partial[w] = make([]float64, width)
	}
	path, err := e.Run(ctx, name, positions, func(w int, amps []*complex128) {
		body(partial[w], amps)
	})
	if err != nil {
		return nil, path, err
	}

	sums := make([]float64, width)
	for _, acc := range partial {
		for i, v := range acc {
			sums[i] += v
		}
	}
	return sums, path, nil
}

// Close releases the on-cache buffer reservation.
func (e *Engine) Close() {
	if e.cache != nil {
		e.ctrl.ReleaseMemory(int64(mem.Complex128Bytes(len(e.cache))))
		e.cache = nil
	}
}
