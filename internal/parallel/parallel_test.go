package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicies_CoverEveryIndexOnce(t *testing.T) {
	policies := map[string]Policy{
		"Sequential": Sequential{},
		"Parallel4":  New(4),
		"Parallel7":  New(7),
	}

	for name, p := range policies {
		t.Run(name, func(t *testing.T) {
			for _, n := range []uint64{0, 1, 17, minGrain, 5*minGrain + 3, 64 * minGrain} {
				hits := make([]atomic.Int32, n)
				require.NoError(t, p.For(context.Background(), n, func(w int, lo, hi uint64) {
					assert.GreaterOrEqual(t, w, 0)
					assert.Less(t, w, p.Workers())
					for i := lo; i < hi; i++ {
						hits[i].Add(1)
					}
				}))
				for i := range hits {
					assert.Equal(t, int32(1), hits[i].Load(), "n=%d i=%d", n, i)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	assert.Equal(t, Sequential{}, New(1))
	assert.Equal(t, 3, New(3).Workers())
	assert.GreaterOrEqual(t, New(0).Workers(), 1)
}

func TestFor_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	body := func(int, uint64, uint64) { called = true }
	assert.ErrorIs(t, Sequential{}.For(ctx, 10, body), context.Canceled)
	assert.ErrorIs(t, New(4).For(ctx, 10, body), context.Canceled)
	assert.False(t, called)
}
