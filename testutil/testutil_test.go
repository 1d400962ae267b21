package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/gate"
)

func TestState(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.State(5)
	assert.Len(t, v, 32)
	assert.InDelta(t, 1, Norm(v), 1e-12)

	rng.Reset()
	assert.Equal(t, v, rng.State(5))
}

func TestQubits(t *testing.T) {
	rng := NewRNG(1)
	qs := rng.Qubits(6, 3)
	assert.Len(t, qs, 3)
	seen := map[uint]bool{}
	for _, q := range qs {
		assert.Less(t, int(q), 6)
		assert.False(t, seen[uint(q)])
		seen[uint(q)] = true
	}
}

func TestApplyFlat(t *testing.T) {
	v := Basis(2, 0)
	ApplyFlat(v, gate.H, 0)
	ApplyFlat(v, gate.CNOT, 1, 0)

	s := complex(1/1.4142135623730951, 0)
	AssertAmplitudesInDelta(t, []complex128{s, 0, 0, s}, v, 1e-12)
}

func TestRunRanks(t *testing.T) {
	ranks := make([]bool, 4)
	RunRanks(t, 4, func(ctx context.Context, c comm.Communicator) error {
		ranks[c.Rank()] = true
		values := []float64{1}
		if err := c.AllReduce(ctx, values, comm.Sum); err != nil {
			return err
		}
		assert.Equal(t, 4.0, values[0])
		return nil
	})
	assert.Equal(t, []bool{true, true, true, true}, ranks)
}
