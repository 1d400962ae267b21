// Package bitmask implements the index arithmetic shared by every gate loop:
// removing k operated bit positions from an index space and reinserting them
// to enumerate the 2^k sibling indices of one loop iteration.
//
// For positions {1, 4} an outer index w = ...dcba expands as
//
//	base  = ..dc0b0a  (zeros inserted at 1 and 4)
//	sib j = base | (j&1)<<1 | (j>>1&1)<<4
//
// Bit i of the sibling number j always corresponds to the i-th position in the
// order the positions were given, not in sorted order.
package bitmask

import "sort"

// Masks holds the precomputed masks for one operand set.
type Masks struct {
	qubit []uint64 // unsorted: 1 << position
	index []uint64 // len k+1: segments of the outer index between sorted positions
}

// New builds masks for the given bit positions (operand order).
// Positions must be distinct and below 63.
func New(positions ...uint) Masks {
	k := len(positions)
	m := Masks{
		qubit: make([]uint64, k),
		index: make([]uint64, k+1),
	}
	sorted := make([]uint, k)
	for i, p := range positions {
		m.qubit[i] = uint64(1) << p
		sorted[i] = p
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	// Segment i of the outer index occupies bits [sorted[i-1]-(i-1), sorted[i]-i).
	lower := uint64(0)
	for i, p := range sorted {
		upper := lowMask(p - uint(i))
		m.index[i] = upper &^ lower
		lower = upper
	}
	m.index[k] = ^lower
	return m
}

func lowMask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// K returns the number of operated positions.
func (m Masks) K() int { return len(m.qubit) }

// Siblings returns 2^K.
func (m Masks) Siblings() uint64 { return uint64(1) << len(m.qubit) }

// Base inserts a zero bit at every operated position of the outer index w.
func (m Masks) Base(w uint64) uint64 {
	var out uint64
	for i, mask := range m.index {
		out |= (w & mask) << uint(i)
	}
	return out
}

// Index returns the sibling index for outer index w and sibling number j.
func (m Masks) Index(w, j uint64) uint64 {
	return m.With(m.Base(w), j)
}

// With ORs the operand bits of sibling number j into base.
func (m Masks) With(base, j uint64) uint64 {
	for i, mask := range m.qubit {
		if j&(uint64(1)<<uint(i)) != 0 {
			base |= mask
		}
	}
	return base
}

// Fill writes all 2^K sibling indices of outer index w into dst.
func (m Masks) Fill(dst []uint64, w uint64) {
	base := m.Base(w)
	for j := range dst {
		dst[j] = m.With(base, uint64(j))
	}
}
