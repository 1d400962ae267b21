package measure

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/qubit"
)

// MaxShots bounds a single Sample call.
const MaxShots = 1 << 24

// ErrInvalidShots is returned by Sample for a negative or too large shot count.
var ErrInvalidShots = errors.New("invalid shot count")

type draw struct {
	shot   int
	target float64 // offset into the owning rank's weight
}

// Sample draws shots logical basis states from the distribution of the
// state without collapsing it. The root rank draws every uniform from rng;
// other ranks may pass nil. All ranks return the same samples in draw order.
//
// One AllReduce gathers the rank weights in rank order and one Broadcast
// ships the uniforms. Each rank then resolves the draws that land in its own
// weight and broadcasts the resulting basis states.
func (m *Measurer) Sample(ctx context.Context, perm *qubit.Permutation, shots int, rng *rand.Rand) ([]uint64, error) {
	if shots < 0 || shots > MaxShots {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidShots, shots, MaxShots)
	}
	l := m.engine.Layout()
	st := m.engine.State()
	rank, size := m.comm.Rank(), m.comm.Size()

	weights := make([]float64, size)
	for i := uint64(0); i < l.DataBlockSize; i++ {
		weights[rank] += norm(st.At(i))
	}
	if err := m.comm.AllReduce(ctx, weights, comm.Sum); err != nil {
		return nil, fmt.Errorf("measure: reduce rank weights: %w", err)
	}

	buf := make([]byte, 1+8*shots)
	if rank == Root {
		if rng == nil {
			buf[0] = aborted
		} else {
			for k := 0; k < shots; k++ {
				binary.LittleEndian.PutUint64(buf[1+8*k:], math.Float64bits(rng.Float64()))
			}
		}
	}
	if err := m.comm.Broadcast(ctx, Root, buf); err != nil {
		return nil, fmt.Errorf("measure: broadcast uniforms: %w", err)
	}
	if buf[0] == aborted {
		return nil, ErrNoRandomSource
	}

	lower := make([]float64, size+1)
	last := -1
	for r, w := range weights {
		lower[r+1] = lower[r] + w
		if w > 0 {
			last = r
		}
	}
	if shots > 0 && last < 0 {
		return nil, fmt.Errorf("%w: state has no weight to sample", ErrZeroProbability)
	}

	owner := make([]int, shots)
	counts := make([]int, size)
	var mine []draw
	for k := range owner {
		u := math.Float64frombits(binary.LittleEndian.Uint64(buf[1+8*k:])) * lower[size]
		r := last
		for c := 0; c < last; c++ {
			if weights[c] > 0 && u < lower[c+1] {
				r = c
				break
			}
		}
		owner[k] = r
		counts[r]++
		if r == rank {
			mine = append(mine, draw{shot: k, target: u - lower[r]})
		}
	}

	out := make([]uint64, shots)
	if len(mine) > 0 {
		slices.SortFunc(mine, func(a, b draw) int { return cmp.Compare(a.target, b.target) })

		var acc float64
		var lastIndex uint64
		j := 0
		for i := uint64(0); i < l.DataBlockSize && j < len(mine); i++ {
			w := norm(st.At(i))
			if w == 0 {
				continue
			}
			acc += w
			lastIndex = i
			for j < len(mine) && mine[j].target < acc {
				out[mine[j].shot] = perm.InversePermutateBits(l.GlobalIndex(rank, i))
				j++
			}
		}
		// Rounding can leave the largest targets just above the local sum.
		for ; j < len(mine); j++ {
			out[mine[j].shot] = perm.InversePermutateBits(l.GlobalIndex(rank, lastIndex))
		}
	}

	for r := 0; r < size && size > 1; r++ {
		if counts[r] == 0 {
			continue
		}
		payload := make([]byte, 8*counts[r])
		if r == rank {
			n := 0
			for k, o := range owner {
				if o == r {
					binary.LittleEndian.PutUint64(payload[8*n:], out[k])
					n++
				}
			}
		}
		if err := m.comm.Broadcast(ctx, r, payload); err != nil {
			return nil, fmt.Errorf("measure: gather samples of rank %d: %w", r, err)
		}
		if r == rank {
			continue
		}
		n := 0
		for k, o := range owner {
			if o == r {
				out[k] = binary.LittleEndian.Uint64(payload[8*n:])
				n++
			}
		}
	}

	m.logger.Debug("sample", "shots", shots, "local_draws", len(mine), "weight", lower[size])
	return out, nil
}
