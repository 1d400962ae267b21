// Package measure implements the collective operations that read the
// distributed state: projective measurement, probabilities, expectation
// values and full-vector gathers.
//
// Every function is collective. All ranks must call it with the same
// arguments in the same order.
package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/dispatch"
	"github.com/hupe1980/ketgo/internal/interchange"
	"github.com/hupe1980/ketgo/qubit"
)

// Root is the rank that draws measurement outcomes.
const Root = 0

// MaxGatherQubits bounds Amplitudes to vectors that fit comfortably in memory.
const MaxGatherQubits = 26

var (
	// ErrZeroProbability is returned when projecting onto a branch with no weight.
	ErrZeroProbability = errors.New("projection onto zero-probability branch")
	// ErrGatherTooLarge is returned by Amplitudes for more than MaxGatherQubits qubits.
	ErrGatherTooLarge = errors.New("state too large to gather")
	// ErrNoRandomSource is returned on every rank when the root rank passes a nil rng.
	ErrNoRandomSource = errors.New("no random source on root rank")
)

// aborted replaces the first broadcast byte of a draw when the root cannot draw.
const aborted = 0xff

// Outcome is the result of a projective measurement.
type Outcome uint8

const (
	Zero Outcome = 0
	One  Outcome = 1
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	if o == One {
		return "1"
	}
	return "0"
}

// Measurer runs collective reads on one rank.
type Measurer struct {
	comm     comm.Communicator
	engine   *dispatch.Engine
	protocol *interchange.Protocol
	logger   *slog.Logger
}

// New creates a measurer. logger may be nil.
func New(c comm.Communicator, e *dispatch.Engine, p *interchange.Protocol, logger *slog.Logger) *Measurer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Measurer{comm: c, engine: e, protocol: p, logger: logger}
}

func (m *Measurer) localize(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit) ([]qubit.Permutated, error) {
	if err := qubit.Validate(perm.Len(), q); err != nil {
		return nil, err
	}
	if _, err := m.protocol.Localize(ctx, perm, []qubit.Qubit{q}); err != nil {
		return nil, err
	}
	return []qubit.Permutated{perm.Permutated(q)}, nil
}

func (m *Measurer) probabilities(ctx context.Context, pos []qubit.Permutated) (float64, float64, error) {
	sums, _, err := m.engine.Reduce(ctx, "probability", pos, 2, func(acc []float64, amps []*complex128) {
		acc[0] += norm(*amps[0])
		acc[1] += norm(*amps[1])
	})
	if err != nil {
		return 0, 0, err
	}
	if err := m.comm.AllReduce(ctx, sums, comm.Sum); err != nil {
		return 0, 0, fmt.Errorf("measure: reduce probabilities: %w", err)
	}
	return sums[0], sums[1], nil
}

// Probabilities returns the total weight of the |0> and |1> branches of q.
func (m *Measurer) Probabilities(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit) (p0, p1 float64, err error) {
	pos, err := m.localize(ctx, perm, q)
	if err != nil {
		return 0, 0, err
	}
	return m.probabilities(ctx, pos)
}

// Measure performs a projective measurement of q. The root rank draws from rng;
// other ranks may pass nil. A nil rng on the root fails every rank with
// ErrNoRandomSource and leaves the amplitudes untouched.
func (m *Measurer) Measure(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit, rng *rand.Rand) (Outcome, error) {
	pos, err := m.localize(ctx, perm, q)
	if err != nil {
		return Zero, err
	}
	p0, p1, err := m.probabilities(ctx, pos)
	if err != nil {
		return Zero, err
	}

	buf := []byte{byte(Zero)}
	if m.comm.Rank() == Root {
		switch {
		case rng == nil:
			buf[0] = aborted
		case rng.Float64()*(p0+p1) >= p0:
			buf[0] = byte(One)
		}
	}
	if err := m.comm.Broadcast(ctx, Root, buf); err != nil {
		return Zero, fmt.Errorf("measure: broadcast outcome: %w", err)
	}
	if buf[0] == aborted {
		return Zero, ErrNoRandomSource
	}
	outcome := Outcome(buf[0])

	p := p0
	if outcome == One {
		p = p1
	}
	if err := m.collapse(ctx, pos, outcome, p); err != nil {
		return Zero, err
	}

	m.logger.Debug("measure", "qubit", q, "p0", p0, "p1", p1, "outcome", outcome)
	return outcome, nil
}

// Clear projects q onto |0> and renormalizes.
func (m *Measurer) Clear(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit) error {
	return m.project(ctx, perm, q, Zero)
}

// Set projects q onto |1> and renormalizes.
func (m *Measurer) Set(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit) error {
	return m.project(ctx, perm, q, One)
}

func (m *Measurer) project(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit, outcome Outcome) error {
	pos, err := m.localize(ctx, perm, q)
	if err != nil {
		return err
	}
	p0, p1, err := m.probabilities(ctx, pos)
	if err != nil {
		return err
	}
	p := p0
	if outcome == One {
		p = p1
	}
	return m.collapse(ctx, pos, outcome, p)
}

func (m *Measurer) collapse(ctx context.Context, pos []qubit.Permutated, outcome Outcome, p float64) error {
	if p <= 0 {
		return fmt.Errorf("%w: outcome %s", ErrZeroProbability, outcome)
	}
	_, err := m.engine.Apply(ctx, gate.Collapse(int(outcome), 1/math.Sqrt(p)), pos)
	return err
}

// SpinExpectation returns the expectation values of sigma_x, sigma_y and sigma_z on q.
func (m *Measurer) SpinExpectation(ctx context.Context, perm *qubit.Permutation, q qubit.Qubit) (x, y, z float64, err error) {
	pos, err := m.localize(ctx, perm, q)
	if err != nil {
		return 0, 0, 0, err
	}
	sums, _, err := m.engine.Reduce(ctx, "spin", pos, 3, func(acc []float64, amps []*complex128) {
		a0, a1 := *amps[0], *amps[1]
		c := complex(real(a0), -imag(a0)) * a1
		acc[0] += 2 * real(c)
		acc[1] += 2 * imag(c)
		acc[2] += norm(a0) - norm(a1)
	})
	if err != nil {
		return 0, 0, 0, err
	}
	if err := m.comm.AllReduce(ctx, sums, comm.Sum); err != nil {
		return 0, 0, 0, fmt.Errorf("measure: reduce spin: %w", err)
	}
	return sums[0], sums[1], sums[2], nil
}

// Norm returns the squared norm of the distributed state.
func (m *Measurer) Norm(ctx context.Context) (float64, error) {
	sums, _, err := m.engine.Reduce(ctx, "norm", []qubit.Permutated{0}, 1, func(acc []float64, amps []*complex128) {
		acc[0] += norm(*amps[0]) + norm(*amps[1])
	})
	if err != nil {
		return 0, err
	}
	if err := m.comm.AllReduce(ctx, sums, comm.Sum); err != nil {
		return 0, fmt.Errorf("measure: reduce norm: %w", err)
	}
	return sums[0], nil
}

// Amplitudes gathers the whole state on every rank, indexed by logical basis state.
func (m *Measurer) Amplitudes(ctx context.Context, perm *qubit.Permutation) ([]complex128, error) {
	l := m.engine.Layout()
	if l.NumQubits > MaxGatherQubits {
		return nil, fmt.Errorf("%w: %d qubits (max %d)", ErrGatherTooLarge, l.NumQubits, MaxGatherQubits)
	}

	out := make([]complex128, uint64(1)<<l.NumQubits)
	block := make([]complex128, l.DataBlockSize)
	for r := 0; r < m.comm.Size(); r++ {
		var buf []byte
		if r == m.comm.Rank() {
			m.engine.State().CopyOut(block, 0)
			buf = comm.EncodeAmplitudes(block)
		} else {
			buf = make([]byte, 16*len(block))
		}
		if err := m.comm.Broadcast(ctx, r, buf); err != nil {
			return nil, fmt.Errorf("measure: gather block of rank %d: %w", r, err)
		}
		comm.DecodeAmplitudes(block, buf)
		for i, a := range block {
			out[perm.InversePermutateBits(l.GlobalIndex(r, uint64(i)))] = a
		}
	}
	return out, nil
}

func norm(a complex128) float64 { return real(a)*real(a) + imag(a)*imag(a) }
