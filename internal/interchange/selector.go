package interchange

import (
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

// Selector picks the local positions that non-local operands are traded with.
type Selector interface {
	// Select returns count distinct local positions. operands holds the
	// permutated positions of every operand of the pending operation.
	Select(l partition.Layout, operands []qubit.Permutated, count int) []qubit.Permutated
}

// TopLocal trades with the most significant local positions. Each exchanged
// segment is then a contiguous range of whole pages (or one page slice), so
// received data lands in the spare page without copies. Local operands found at
// those positions are moved out of the way first.
//
// With staging enabled the top positions are page bits, and an operation with
// more operands than on-cache qubits cannot touch a page bit. TopLocal then
// selects like LowFree.
type TopLocal struct{}

// Select implements Selector.
func (TopLocal) Select(l partition.Layout, operands []qubit.Permutated, count int) []qubit.Permutated {
	if l.StagingEnabled() && len(operands) > l.OnCacheQubits {
		return LowFree{}.Select(l, operands, count)
	}
	out := make([]qubit.Permutated, count)
	for i := range out {
		out[i] = qubit.Permutated(l.LocalQubits - 1 - i)
	}
	return out
}

// LowFree trades with the least significant local positions not used by an
// operand. No operand ever moves, but segments are strided and go through the
// exchange buffer.
type LowFree struct{}

// Select implements Selector.
func (LowFree) Select(l partition.Layout, operands []qubit.Permutated, count int) []qubit.Permutated {
	used := make(map[qubit.Permutated]bool, len(operands))
	for _, p := range operands {
		used[p] = true
	}
	out := make([]qubit.Permutated, 0, count)
	for p := qubit.Permutated(0); int(p) < l.LocalQubits && len(out) < count; p++ {
		if !used[p] {
			out = append(out, p)
		}
	}
	return out
}

// contiguous reports whether positions are exactly the top len(positions) local bits.
func contiguous(l partition.Layout, positions []qubit.Permutated) bool {
	var mask, top uint64
	for i, p := range positions {
		mask |= 1 << p
		top |= 1 << uint(l.LocalQubits-1-i)
	}
	return mask == top
}
