package ketgo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/dispatch"
	"github.com/hupe1980/ketgo/internal/interchange"
	"github.com/hupe1980/ketgo/internal/measure"
	"github.com/hupe1980/ketgo/internal/parallel"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/internal/state"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

// Outcome is the result of a projective measurement.
type Outcome = measure.Outcome

const (
	// Zero is the |0> outcome.
	Zero = measure.Zero
	// One is the |1> outcome.
	One = measure.One
)

// Simulator is one rank of a distributed state vector.
//
// A Simulator is not safe for concurrent use. Every rank of the communicator
// owns exactly one Simulator and drives it with the same circuit.
type Simulator struct {
	comm    comm.Communicator
	opts    options
	logger  *Logger
	metrics MetricsCollector
	ctrl    *resource.Controller

	layout   partition.Layout
	perm     *qubit.Permutation
	state    *state.Local
	engine   *dispatch.Engine
	protocol *interchange.Protocol
	measurer *measure.Measurer

	closed bool
}

// New creates the local rank of an n-qubit register initialized to |0...0>
// (or the basis state set by WithInitialState). New is collective: every rank
// must call it with the same n and options.
//
// The communicator stays owned by the caller and is not closed by Close.
func New(ctx context.Context, c comm.Communicator, n int, optFns ...Option) (*Simulator, error) {
	o := applyOptions(optFns)
	s := &Simulator{
		comm:    c,
		opts:    o,
		logger:  o.logger.WithRank(c.Rank()),
		metrics: o.metricsCollector,
		ctrl: resource.NewController(resource.Config{
			MemoryLimitBytes:    o.memoryLimit,
			ExchangeBytesPerSec: o.exchangeRate,
		}),
	}
	if err := s.build(ctx, n); err != nil {
		return nil, err
	}
	return s, nil
}

// build allocates everything that depends on the qubit count.
func (s *Simulator) build(ctx context.Context, n int) (err error) {
	defer func() {
		s.logger.LogResize(ctx, n, s.layout, err)
	}()

	layout, err := partition.Compute(partition.Config{
		NumQubits:     n,
		PageQubits:    s.opts.pageQubits,
		NumRanks:      s.comm.Size(),
		OnCacheQubits: s.opts.onCacheQubits,
	})
	if err != nil {
		return translateError(err)
	}
	if err := interchange.CheckSize(layout, s.comm); err != nil {
		return translateError(err)
	}
	if n < 64 && s.opts.initialState >= uint64(1)<<n {
		return fmt.Errorf("%w: initial state %d out of range for %d qubits", ErrInvalidConfig, s.opts.initialState, n)
	}
	if err := s.agree(ctx, n); err != nil {
		return err
	}

	perm, err := qubit.NewPermutation(n)
	if err != nil {
		return translateError(err)
	}

	st, err := state.New(layout, s.comm.Rank(), s.opts.storage.storage, s.ctrl)
	if err != nil {
		return translateError(err)
	}
	st.Reset(s.comm.Rank(), perm.PermutateBits(s.opts.initialState))

	e, err := dispatch.New(st, parallel.New(s.opts.workers), s.ctrl)
	if err != nil {
		return errors.Join(translateError(err), st.Close())
	}

	p, err := interchange.New(s.comm, e,
		interchange.WithSelector(s.opts.selector.selector()),
		interchange.WithUnit(s.opts.exchangeUnit),
		interchange.WithController(s.ctrl),
		interchange.WithLogger(s.logger.Logger),
	)
	if err != nil {
		e.Close()
		return errors.Join(translateError(err), st.Close())
	}

	s.layout = layout
	s.perm = perm
	s.state = st
	s.engine = e
	s.protocol = p
	s.measurer = measure.New(s.comm, e, p, s.logger.Logger)
	return nil
}

// agree checks that all ranks were configured identically.
func (s *Simulator) agree(ctx context.Context, n int) error {
	local := []float64{
		float64(n),
		float64(s.opts.pageQubits),
		float64(s.opts.onCacheQubits),
		float64(s.opts.initialState),
	}
	values := make([]float64, 0, 2*len(local))
	for _, v := range local {
		values = append(values, v, -v)
	}
	if err := s.comm.AllReduce(ctx, values, comm.Max); err != nil {
		return translateError(fmt.Errorf("agree on configuration: %w", err))
	}
	for i, v := range local {
		if values[2*i] != v || -values[2*i+1] != v {
			return fmt.Errorf("%w: ranks disagree on configuration", ErrInvalidConfig)
		}
	}
	return nil
}

// release frees everything build allocated.
func (s *Simulator) release() error {
	if s.state == nil {
		return nil
	}
	s.protocol.Close()
	s.engine.Close()
	err := s.state.Close()
	s.state, s.engine, s.protocol, s.measurer = nil, nil, nil, nil
	return err
}

// Rank returns the rank of this simulator.
func (s *Simulator) Rank() int { return s.comm.Rank() }

// NumQubits returns the register size.
func (s *Simulator) NumQubits() int { return s.layout.NumQubits }

// Layout returns the partition of the register.
func (s *Simulator) Layout() partition.Layout { return s.layout }

// Permutation returns the current logical to permutated mapping. The caller
// must not modify it; use SwapQubits.
func (s *Simulator) Permutation() *qubit.Permutation { return s.perm }

// SwapQubits exchanges logical qubits a and b. Only the mapping changes, which
// is equivalent to applying a SWAP gate but moves no amplitudes. Every rank
// must perform the same swaps.
func (s *Simulator) SwapQubits(a, b qubit.Qubit) error {
	if s.closed {
		return ErrClosed
	}
	if err := validateQubits(s.layout.NumQubits, a); err != nil {
		return err
	}
	if err := validateQubits(s.layout.NumQubits, b); err != nil {
		return err
	}
	s.perm.Swap(a, b)
	return nil
}

// Resize discards the state and re-initializes an n-qubit register with an
// identity permutation. Resize is collective. If it fails the simulator is
// closed.
func (s *Simulator) Resize(ctx context.Context, n int) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.release(); err != nil {
		s.closed = true
		return err
	}
	if err := s.build(ctx, n); err != nil {
		s.closed = true
		return err
	}
	return nil
}

// Apply runs g on the given logical qubits. The operand order is the kernel
// order: for controlled gates targets come first, then controls.
func (s *Simulator) Apply(ctx context.Context, g gate.Gate, qubits ...qubit.Qubit) (err error) {
	if s.closed {
		return ErrClosed
	}
	start := time.Now()
	var path dispatch.Path
	var dispatched bool
	defer func() {
		name := ""
		if dispatched {
			name = path.String()
		}
		s.metrics.RecordApply(name, time.Since(start), err)
		s.logger.LogApply(ctx, g.Name, qubits, name, err)
	}()

	if err := g.Check(len(qubits)); err != nil {
		return translateError(err)
	}
	if err := validateQubits(s.layout.NumQubits, qubits...); err != nil {
		return translateError(err)
	}
	if err := s.localize(ctx, qubits); err != nil {
		return err
	}

	path, err = s.engine.Apply(ctx, g, s.perm.PermutatedAll(qubits))
	dispatched = err == nil
	return translateError(err)
}

func (s *Simulator) localize(ctx context.Context, qubits []qubit.Qubit) error {
	start := time.Now()
	stats, err := s.protocol.Localize(ctx, s.perm, qubits)
	if stats.Swaps > 0 || err != nil {
		s.metrics.RecordInterchange(stats.Swaps, stats.Bytes, time.Since(start), err)
		s.logger.LogInterchange(ctx, qubits, stats.Swaps, stats.Bytes, err)
	}
	return translateError(err)
}

// Measure performs a projective measurement of q and collapses the state.
// rng is only consulted on rank 0; other ranks may pass nil. A nil rng on
// rank 0 fails the call on every rank with ErrInvalidConfig.
func (s *Simulator) Measure(ctx context.Context, q qubit.Qubit, rng *rand.Rand) (outcome Outcome, err error) {
	if s.closed {
		return Zero, ErrClosed
	}
	start := time.Now()
	defer func() {
		o := int(outcome)
		if err != nil {
			o = -1
		}
		s.metrics.RecordMeasure(o, time.Since(start), err)
		s.logger.LogMeasure(ctx, q, outcome, err)
	}()

	if err := validateQubits(s.layout.NumQubits, q); err != nil {
		return Zero, translateError(err)
	}
	if err := s.localize(ctx, []qubit.Qubit{q}); err != nil {
		return Zero, err
	}
	outcome, err = s.measurer.Measure(ctx, s.perm, q, rng)
	return outcome, translateError(err)
}

// Probabilities returns the weights of the |0> and |1> branches of q.
func (s *Simulator) Probabilities(ctx context.Context, q qubit.Qubit) (p0, p1 float64, err error) {
	if err := s.check(q); err != nil {
		return 0, 0, err
	}
	if err := s.localize(ctx, []qubit.Qubit{q}); err != nil {
		return 0, 0, err
	}
	p0, p1, err = s.measurer.Probabilities(ctx, s.perm, q)
	return p0, p1, translateError(err)
}

// Clear projects q onto |0> and renormalizes.
func (s *Simulator) Clear(ctx context.Context, q qubit.Qubit) error {
	if err := s.check(q); err != nil {
		return err
	}
	if err := s.localize(ctx, []qubit.Qubit{q}); err != nil {
		return err
	}
	return translateError(s.measurer.Clear(ctx, s.perm, q))
}

// Set projects q onto |1> and renormalizes.
func (s *Simulator) Set(ctx context.Context, q qubit.Qubit) error {
	if err := s.check(q); err != nil {
		return err
	}
	if err := s.localize(ctx, []qubit.Qubit{q}); err != nil {
		return err
	}
	return translateError(s.measurer.Set(ctx, s.perm, q))
}

// SpinExpectation returns <X>, <Y> and <Z> of q.
func (s *Simulator) SpinExpectation(ctx context.Context, q qubit.Qubit) (x, y, z float64, err error) {
	if err := s.check(q); err != nil {
		return 0, 0, 0, err
	}
	if err := s.localize(ctx, []qubit.Qubit{q}); err != nil {
		return 0, 0, 0, err
	}
	x, y, z, err = s.measurer.SpinExpectation(ctx, s.perm, q)
	return x, y, z, translateError(err)
}

// Norm returns the squared norm of the state.
func (s *Simulator) Norm(ctx context.Context) (float64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.measurer.Norm(ctx)
	return n, translateError(err)
}

// Amplitudes returns the full state indexed by logical basis state on every
// rank. It is meant for small registers and tests.
func (s *Simulator) Amplitudes(ctx context.Context) ([]complex128, error) {
	if s.closed {
		return nil, ErrClosed
	}
	amps, err := s.measurer.Amplitudes(ctx, s.perm)
	return amps, translateError(err)
}

// Support returns the logical basis states whose probability exceeds
// threshold. Every rank receives the same bitmap.
func (s *Simulator) Support(ctx context.Context, threshold float64) (*roaring64.Bitmap, error) {
	if s.closed {
		return nil, ErrClosed
	}
	b, err := s.measurer.Support(ctx, s.perm, threshold)
	return b, translateError(err)
}

// Sample draws shots logical basis states from the current distribution
// without collapsing the state. rng is only consulted on rank 0. Every rank
// receives the same samples in draw order.
func (s *Simulator) Sample(ctx context.Context, shots int, rng *rand.Rand) ([]uint64, error) {
	if s.closed {
		return nil, ErrClosed
	}
	samples, err := s.measurer.Sample(ctx, s.perm, shots, rng)
	return samples, translateError(err)
}

func (s *Simulator) check(q qubit.Qubit) error {
	if s.closed {
		return ErrClosed
	}
	return translateError(validateQubits(s.layout.NumQubits, q))
}
