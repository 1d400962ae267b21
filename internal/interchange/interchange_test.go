package interchange

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/comm/inproc"
	"github.com/hupe1980/ketgo/internal/dispatch"
	"github.com/hupe1980/ketgo/internal/parallel"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/internal/state"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

type rankSim struct {
	engine   *dispatch.Engine
	protocol *Protocol
	perm     *qubit.Permutation
}

// cluster loads the flat vector v into size ranks.
func cluster(t *testing.T, cfg partition.Config, v []complex128, opts ...Option) []*rankSim {
	t.Helper()
	l, err := partition.Compute(cfg)
	require.NoError(t, err)

	comms := inproc.NewCommunicators(cfg.NumRanks)
	sims := make([]*rankSim, cfg.NumRanks)
	for r := range sims {
		st, err := state.New(l, r, state.Heap{}, nil)
		require.NoError(t, err)
		for i := uint64(0); i < l.DataBlockSize; i++ {
			st.Set(i, v[l.GlobalIndex(r, i)])
		}
		e, err := dispatch.New(st, parallel.Sequential{}, nil)
		require.NoError(t, err)
		p, err := New(comms[r], e, opts...)
		require.NoError(t, err)
		perm, err := qubit.NewPermutation(cfg.NumQubits)
		require.NoError(t, err)

		sims[r] = &rankSim{engine: e, protocol: p, perm: perm}
		t.Cleanup(func() {
			p.Close()
			e.Close()
			_ = st.Close()
			_ = comms[r].Close()
		})
	}
	return sims
}

func localizeAll(t *testing.T, sims []*rankSim, qubits ...qubit.Qubit) []Stats {
	t.Helper()
	stats := make([]Stats, len(sims))
	g, ctx := errgroup.WithContext(context.Background())
	for r, s := range sims {
		g.Go(func() error {
			st, err := s.protocol.Localize(ctx, s.perm, qubits)
			stats[r] = st
			return err
		})
	}
	require.NoError(t, g.Wait())
	return stats
}

// assertLogical checks that every rank holds v under its permutation.
func assertLogical(t *testing.T, sims []*rankSim, v []complex128) {
	t.Helper()
	for r, s := range sims {
		require.True(t, s.perm.Equal(sims[0].perm), "rank %d diverged: %s", r, s.perm)
		l := s.engine.Layout()
		st := s.engine.State()
		for i := uint64(0); i < l.DataBlockSize; i++ {
			logical := s.perm.InversePermutateBits(l.GlobalIndex(r, i))
			require.Equal(t, v[logical], st.At(i), "rank %d local %d", r, i)
		}
	}
}

func randomVector(n int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]complex128, 1<<n)
	for i := range v {
		v[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return v
}

func TestLocalize(t *testing.T) {
	tests := []struct {
		name   string
		cfg    partition.Config
		qubits []qubit.Qubit
		opts   []Option
	}{
		{"OneGlobal", partition.Config{NumQubits: 6, NumRanks: 2, PageQubits: 2}, []qubit.Qubit{5}, nil},
		{"TwoGlobal", partition.Config{NumQubits: 7, NumRanks: 4, PageQubits: 1}, []qubit.Qubit{6, 5}, nil},
		{"MixedOperands", partition.Config{NumQubits: 7, NumRanks: 4, PageQubits: 2}, []qubit.Qubit{0, 6}, nil},
		{"OperandOnSwapPosition", partition.Config{NumQubits: 6, NumRanks: 4, PageQubits: 1}, []qubit.Qubit{3, 4}, nil},
		{"NoPages", partition.Config{NumQubits: 5, NumRanks: 2}, []qubit.Qubit{4, 1}, nil},
		{"SmallUnit", partition.Config{NumQubits: 7, NumRanks: 2, PageQubits: 2}, []qubit.Qubit{6}, []Option{WithUnit(3)}},
		{"LowFree", partition.Config{NumQubits: 7, NumRanks: 4, PageQubits: 2}, []qubit.Qubit{1, 6, 5}, []Option{WithSelector(LowFree{})}},
		{"LowFreeSmallUnit", partition.Config{NumQubits: 6, NumRanks: 2, PageQubits: 1}, []qubit.Qubit{5, 0}, []Option{WithSelector(LowFree{}), WithUnit(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := randomVector(tt.cfg.NumQubits, 11)
			sims := cluster(t, tt.cfg, v, tt.opts...)

			stats := localizeAll(t, sims, tt.qubits...)
			assertLogical(t, sims, v)

			l := sims[0].engine.Layout()
			for _, q := range tt.qubits {
				assert.True(t, l.IsLocal(sims[0].perm.Permutated(q)), "qubit %s not local", q)
			}
			assert.Positive(t, stats[0].Swaps)
			assert.Positive(t, stats[0].Bytes)
		})
	}
}

func TestLocalize_AlreadyLocal(t *testing.T) {
	v := randomVector(5, 3)
	sims := cluster(t, partition.Config{NumQubits: 5, NumRanks: 2, PageQubits: 1}, v)

	stats := localizeAll(t, sims, 0, 3)
	assert.Equal(t, Stats{}, stats[0])
	assert.True(t, sims[0].perm.IsIdentity())
	assertLogical(t, sims, v)
}

func TestLocalize_Repeated(t *testing.T) {
	v := randomVector(7, 5)
	sims := cluster(t, partition.Config{NumQubits: 7, NumRanks: 4, PageQubits: 2}, v)

	for _, qs := range [][]qubit.Qubit{{6}, {5, 4}, {6, 0}, {2, 3}, {1}} {
		localizeAll(t, sims, qs...)
		assertLogical(t, sims, v)
	}
}

func TestLocalize_SingleRank(t *testing.T) {
	v := randomVector(4, 1)
	sims := cluster(t, partition.Config{NumQubits: 4, NumRanks: 1, PageQubits: 1}, v)
	stats := localizeAll(t, sims, 3, 0)
	assert.Zero(t, stats[0].Exchanges)
	assertLogical(t, sims, v)
}

func TestLocalize_FitOnCache(t *testing.T) {
	staged := partition.Config{NumQubits: 8, NumRanks: 4, PageQubits: 2, OnCacheQubits: 2}

	tests := []struct {
		name      string
		cfg       partition.Config
		qubits    []qubit.Qubit
		opts      []Option
		wantSwaps int
		wantMoves int
	}{
		{"RemoteOperand", staged, []qubit.Qubit{7, 0, 1}, nil, 1, 0},
		{"RemoteOperandLowFree", staged, []qubit.Qubit{7, 0, 1}, []Option{WithSelector(LowFree{})}, 1, 0},
		{"PageOperand", staged, []qubit.Qubit{5, 0, 1}, nil, 0, 1},
		{"TwoPageOperands", staged, []qubit.Qubit{5, 4, 0}, nil, 0, 2},
		{"FitsOnCache", staged, []qubit.Qubit{5, 0}, nil, 0, 0},
		{"SingleRank", partition.Config{NumQubits: 6, NumRanks: 1, PageQubits: 2, OnCacheQubits: 2}, []qubit.Qubit{0, 5, 2}, nil, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := randomVector(tt.cfg.NumQubits, 13)
			sims := cluster(t, tt.cfg, v, tt.opts...)

			stats := localizeAll(t, sims, tt.qubits...)
			assertLogical(t, sims, v)
			assert.Equal(t, tt.wantSwaps, stats[0].Swaps)
			assert.Equal(t, tt.wantMoves, stats[0].Moves)

			l := sims[0].engine.Layout()
			positions := sims[0].perm.PermutatedAll(tt.qubits)
			path, err := dispatch.SelectPath(l, positions)
			require.NoError(t, err)
			if len(tt.qubits) > l.OnCacheQubits {
				assert.Equal(t, dispatch.Local, path)
			}
		})
	}
}

func TestLocalize_FitOnCacheTooSmall(t *testing.T) {
	v := randomVector(5, 2)
	sims := cluster(t, partition.Config{NumQubits: 5, NumRanks: 1, PageQubits: 2, OnCacheQubits: 1}, v)

	stats := localizeAll(t, sims, 4, 0)
	assert.Equal(t, Stats{}, stats[0])
	assert.True(t, sims[0].perm.IsIdentity())
}

func TestLocalize_TooManyOperands(t *testing.T) {
	v := randomVector(3, 1)
	sims := cluster(t, partition.Config{NumQubits: 3, NumRanks: 4}, v)

	_, err := sims[0].protocol.Localize(context.Background(), sims[0].perm, []qubit.Qubit{0, 1, 2})
	assert.ErrorIs(t, err, ErrTooManyOperands)
}

func TestNew_WrongCommunicatorSize(t *testing.T) {
	l, err := partition.Compute(partition.Config{NumQubits: 4, NumRanks: 2})
	require.NoError(t, err)
	st, err := state.New(l, 0, state.Heap{}, nil)
	require.NoError(t, err)
	defer st.Close()
	e, err := dispatch.New(st, parallel.Sequential{}, nil)
	require.NoError(t, err)

	comms := inproc.NewCommunicators(4)
	_, err = New(comms[0], e)
	assert.ErrorIs(t, err, ErrWrongCommunicatorSize)
}

func TestNew_ReservesBuffers(t *testing.T) {
	l, err := partition.Compute(partition.Config{NumQubits: 6, NumRanks: 2, PageQubits: 1})
	require.NoError(t, err)
	ctrl := resource.NewController(resource.Config{})
	st, err := state.New(l, 0, state.Heap{}, ctrl)
	require.NoError(t, err)
	defer st.Close()
	e, err := dispatch.New(st, parallel.Sequential{}, ctrl)
	require.NoError(t, err)

	before := ctrl.MemoryUsage()
	p, err := New(inproc.NewCommunicators(2)[0], e, WithController(ctrl))
	require.NoError(t, err)
	assert.Equal(t, int(l.PageSize), p.Unit())
	assert.Equal(t, before+2*int64(l.PageSize)*16, ctrl.MemoryUsage())
	p.Close()
	assert.Equal(t, before, ctrl.MemoryUsage())
}

func TestSelectors(t *testing.T) {
	l, err := partition.Compute(partition.Config{NumQubits: 8, NumRanks: 4})
	require.NoError(t, err)

	assert.Equal(t, []qubit.Permutated{5, 4}, TopLocal{}.Select(l, []qubit.Permutated{7, 6}, 2))
	assert.Equal(t, []qubit.Permutated{1, 3}, LowFree{}.Select(l, []qubit.Permutated{0, 7, 2, 6}, 2))

	staged, err := partition.Compute(partition.Config{NumQubits: 8, NumRanks: 4, PageQubits: 2, OnCacheQubits: 2})
	require.NoError(t, err)
	assert.Equal(t, []qubit.Permutated{5}, TopLocal{}.Select(staged, []qubit.Permutated{7, 0}, 1))
	assert.Equal(t, []qubit.Permutated{2}, TopLocal{}.Select(staged, []qubit.Permutated{7, 0, 1}, 1))

	assert.True(t, contiguous(l, []qubit.Permutated{5, 4}))
	assert.True(t, contiguous(l, []qubit.Permutated{4, 5}))
	assert.False(t, contiguous(l, []qubit.Permutated{5, 3}))
}

func TestCheckSize(t *testing.T) {
	l, err := partition.Compute(partition.Config{NumQubits: 4, NumRanks: 2})
	require.NoError(t, err)
	var c comm.Communicator = inproc.NewCommunicators(2)[1]
	assert.NoError(t, CheckSize(l, c))
}
