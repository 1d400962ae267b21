package testutil

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/comm/inproc"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/qubit"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Source returns an independent *rand.Rand seeded from r, for APIs that take one.
func (r *RNG) Source() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.New(rand.NewSource(r.rand.Int63()))
}

// State returns a normalized random state over n qubits.
func (r *RNG) State(n int) []complex128 {
	r.mu.Lock()
	v := make([]complex128, 1<<n)
	for i := range v {
		v[i] = complex(r.rand.NormFloat64(), r.rand.NormFloat64())
	}
	r.mu.Unlock()

	s := complex(1/math.Sqrt(Norm(v)), 0)
	for i := range v {
		v[i] *= s
	}
	return v
}

// Qubits returns k distinct random qubits out of n.
func (r *RNG) Qubits(n, k int) []qubit.Qubit {
	r.mu.Lock()
	defer r.mu.Unlock()
	perm := r.rand.Perm(n)
	out := make([]qubit.Qubit, k)
	for i := range out {
		out[i] = qubit.Qubit(perm[i])
	}
	return out
}

// Basis returns the computational basis state |index> over n qubits.
func Basis(n int, index uint64) []complex128 {
	v := make([]complex128, 1<<n)
	v[index] = 1
	return v
}

// Norm returns the squared norm of v.
func Norm(v []complex128) float64 {
	var sum float64
	for _, a := range v {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return sum
}

// ApplyFlat applies g to the logical qubits of the flat state v. Entry j of a
// sibling group has bit i of j at qubit qs[i].
func ApplyFlat(v []complex128, g gate.Gate, qs ...qubit.Qubit) {
	var combined uint64
	for _, q := range qs {
		combined |= 1 << q
	}
	amps := make([]*complex128, 1<<len(qs))
	for base := range uint64(len(v)) {
		if base&combined != 0 {
			continue
		}
		for j := range amps {
			idx := base
			for i, q := range qs {
				if j>>i&1 == 1 {
					idx |= 1 << q
				}
			}
			amps[j] = &v[idx]
		}
		g.Kernel(amps)
	}
}

// AssertAmplitudesInDelta checks every amplitude of got against want.
func AssertAmplitudesInDelta(t testing.TB, want, got []complex128, delta float64) bool {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return false
	}
	ok := true
	for i := range want {
		ok = assert.InDelta(t, real(want[i]), real(got[i]), delta, "re[%d]", i) && ok
		ok = assert.InDelta(t, imag(want[i]), imag(got[i]), delta, "im[%d]", i) && ok
		if !ok {
			return false
		}
	}
	return true
}

// RunRanks runs fn once per rank of an in-process world of the given size,
// each on its own goroutine, and fails the test if any rank fails.
func RunRanks(t testing.TB, size int, fn func(ctx context.Context, c comm.Communicator) error) {
	t.Helper()
	comms := inproc.NewCommunicators(size)
	defer func() {
		for _, c := range comms {
			_ = c.Close()
		}
	}()

	g, ctx := errgroup.WithContext(context.Background())
	for _, c := range comms {
		g.Go(func() error { return fn(ctx, c) })
	}
	require.NoError(t, g.Wait())
}
