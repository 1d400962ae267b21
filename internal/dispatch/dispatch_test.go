package dispatch

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/parallel"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/internal/state"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

func mustLayout(t *testing.T, cfg partition.Config) partition.Layout {
	t.Helper()
	l, err := partition.Compute(cfg)
	require.NoError(t, err)
	return l
}

func TestSelectPath(t *testing.T) {
	plain := mustLayout(t, partition.Config{NumQubits: 6, PageQubits: 2, NumRanks: 1})
	staged := mustLayout(t, partition.Config{NumQubits: 6, PageQubits: 2, NumRanks: 1, OnCacheQubits: 2})

	tests := []struct {
		name   string
		layout partition.Layout
		pos    []qubit.Permutated
		want   Path
	}{
		{"NoPage", plain, []qubit.Permutated{0, 3}, Local},
		{"AllPage", plain, []qubit.Permutated{5, 4}, Page},
		{"Mixed", plain, []qubit.Permutated{1, 4}, Mixed},
		{"StagedNoPageIsLocal", staged, []qubit.Permutated{0, 3}, Local},
		{"StagedPage", staged, []qubit.Permutated{5}, Staged},
		{"StagedMixed", staged, []qubit.Permutated{0, 4}, Staged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectPath(tt.layout, tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("TooManyForCache", func(t *testing.T) {
		_, err := SelectPath(staged, []qubit.Permutated{0, 1, 5})
		assert.ErrorIs(t, err, ErrUnsupportedPageOperation)
	})

	t.Run("NotLocal", func(t *testing.T) {
		l := mustLayout(t, partition.Config{NumQubits: 4, NumRanks: 2})
		_, err := SelectPath(l, []qubit.Permutated{3})
		assert.ErrorIs(t, err, ErrUnsupportedPageOperation)
	})
}

func TestOracle(t *testing.T) {
	l := mustLayout(t, partition.Config{NumQubits: 7, PageQubits: 2, NumRanks: 2, OnCacheQubits: 3})
	// local = 6, nonpage = 4
	assert.False(t, IsOnPage(l, 3))
	assert.True(t, IsOnPage(l, 4))
	assert.True(t, IsOnPage(l, 5))
	assert.False(t, IsOnPage(l, 6))
	assert.True(t, AnyOnPage(l, 0, 1, 5))
	assert.False(t, AnyOnPage(l, 0, 1, 2))
	assert.False(t, IsOffCache(l, 2))
	assert.True(t, IsOffCache(l, 3))
	assert.Equal(t, "staged", Staged.String())
}

// reference applies g on a flat vector without any paging.
func reference(v []complex128, g gate.Gate, pos []qubit.Permutated) {
	var combined uint64
	for _, p := range pos {
		combined |= 1 << p
	}
	amps := make([]*complex128, 1<<len(pos))
	for x := uint64(0); x < uint64(len(v)); x++ {
		if x&combined != 0 {
			continue
		}
		for j := range amps {
			idx := x
			for i, p := range pos {
				if j&(1<<i) != 0 {
					idx |= 1 << p
				}
			}
			amps[j] = &v[idx]
		}
		g.Kernel(amps)
	}
}

func randomVector(rng *rand.Rand, n int) []complex128 {
	v := make([]complex128, 1<<n)
	for i := range v {
		v[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return v
}

func load(t *testing.T, l partition.Layout, v []complex128) *state.Local {
	t.Helper()
	st, err := state.New(l, 0, state.Heap{}, nil)
	require.NoError(t, err)
	for i, a := range v {
		st.Set(uint64(i), a)
	}
	return st
}

func gateFor(k int) gate.Gate {
	switch k {
	case 1:
		return gate.U3(0.3, 1.1, -0.4)
	case 2:
		return gate.Matrix2("M", [4][4]complex128{
			{0.5, 0.5i, 0.5, 0.5i},
			{0.5i, 0.5, -0.5i, -0.5},
			{0.5, -0.5i, 0.5, -0.5i},
			{0.5i, -0.5, -0.5i, 0.5},
		})
	default:
		return gate.Controlled(gate.U3(0.7, -0.2, 0.9), k-1)
	}
}

func TestEngine_PathEquivalence(t *testing.T) {
	const n = 7
	configs := []partition.Config{
		{NumQubits: n, NumRanks: 1},
		{NumQubits: n, PageQubits: 1, NumRanks: 1},
		{NumQubits: n, PageQubits: 3, NumRanks: 1},
		{NumQubits: n, PageQubits: 2, NumRanks: 1, OnCacheQubits: 3},
		{NumQubits: n, PageQubits: 3, NumRanks: 1, OnCacheQubits: 2},
		{NumQubits: n, PageQubits: 4, NumRanks: 1, OnCacheQubits: 3},
	}
	policies := map[string]parallel.Policy{
		"Sequential": parallel.Sequential{},
		"Parallel":   parallel.New(3),
	}

	rng := rand.New(rand.NewSource(11))
	for name, policy := range policies {
		for _, cfg := range configs {
			l := mustLayout(t, cfg)
			t.Run(name+"/"+l.String(), func(t *testing.T) {
				seen := map[Path]bool{}
				for trial := 0; trial < 40; trial++ {
					k := 1 + rng.Intn(3)
					if l.StagingEnabled() && k > l.OnCacheQubits {
						k = l.OnCacheQubits
					}
					perm := rng.Perm(n)[:k]
					pos := make([]qubit.Permutated, k)
					for i, p := range perm {
						pos[i] = qubit.Permutated(p)
					}
					g := gateFor(k)

					want := randomVector(rng, n)
					st := load(t, l, want)
					reference(want, g, pos)

					e, err := New(st, policy, nil)
					require.NoError(t, err)
					path, err := e.Apply(context.Background(), g, pos)
					require.NoError(t, err, "positions %v", pos)
					seen[path] = true

					for i := range want {
						got := st.At(uint64(i))
						assert.InDelta(t, real(want[i]), real(got), 1e-12, "%s %v index %d", path, pos, i)
						assert.InDelta(t, imag(want[i]), imag(got), 1e-12, "%s %v index %d", path, pos, i)
					}
					e.Close()
				}
				if l.PageQubits > 0 && !l.StagingEnabled() {
					assert.True(t, seen[Page] || seen[Mixed])
				}
				if l.StagingEnabled() {
					assert.True(t, seen[Staged])
				}
			})
		}
	}
}

func TestEngine_Reduce(t *testing.T) {
	l := mustLayout(t, partition.Config{NumQubits: 6, PageQubits: 2, NumRanks: 1, OnCacheQubits: 2})
	rng := rand.New(rand.NewSource(5))
	v := randomVector(rng, 6)
	st := load(t, l, v)

	var p0, p1 float64
	for i, a := range v {
		w := real(a)*real(a) + imag(a)*imag(a)
		if i&(1<<5) == 0 {
			p0 += w
		} else {
			p1 += w
		}
	}

	e, err := New(st, parallel.New(2), nil)
	require.NoError(t, err)
	defer e.Close()

	sums, path, err := e.Reduce(context.Background(), "probability", []qubit.Permutated{5}, 2, func(acc []float64, amps []*complex128) {
		for j, a := range amps {
			acc[j] += real(*a)*real(*a) + imag(*a)*imag(*a)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, Staged, path)
	got0, got1 := sums[0], sums[1]

	assert.InDelta(t, p0, got0, 1e-9)
	assert.InDelta(t, p1, got1, 1e-9)

	// A reduction leaves the amplitudes untouched.
	for i, a := range v {
		assert.Equal(t, a, st.At(uint64(i)))
	}
}

func TestEngine_Errors(t *testing.T) {
	l := mustLayout(t, partition.Config{NumQubits: 4, PageQubits: 1, NumRanks: 1, OnCacheQubits: 1})
	st := load(t, l, make([]complex128, 16))

	ctrl := resource.NewController(resource.Config{})
	e, err := New(st, nil, ctrl)
	require.NoError(t, err)
	assert.Equal(t, int64(2*16), ctrl.MemoryUsage())

	_, err = e.Apply(context.Background(), gate.CNOT, []qubit.Permutated{3, 0})
	var upe *UnsupportedPageOperationError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "CNOT", upe.Name)

	_, err = e.Apply(context.Background(), gate.H, []qubit.Permutated{0, 1})
	assert.ErrorIs(t, err, gate.ErrArity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Apply(ctx, gate.H, []qubit.Permutated{0})
	assert.ErrorIs(t, err, context.Canceled)

	e.Close()
	assert.Zero(t, ctrl.MemoryUsage())
}
