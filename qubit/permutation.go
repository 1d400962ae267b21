package qubit

import (
	"fmt"
	"strings"
)

// Permutation is a bijection between logical and permutated qubits.
//
// Permutation is owned by exactly one process and is not safe for concurrent
// mutation. Only the interchange protocol and explicit relabeling mutate it.
type Permutation struct {
	data    []Permutated // logical -> permutated
	inverse []Qubit      // permutated -> logical
}

// NewPermutation returns the identity permutation over n qubits.
func NewPermutation(n int) (*Permutation, error) {
	if n <= 0 || n > MaxQubits {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQubitCount, n)
	}
	p := &Permutation{
		data:    make([]Permutated, n),
		inverse: make([]Qubit, n),
	}
	for i := 0; i < n; i++ {
		p.data[i] = Permutated(i)
		p.inverse[i] = Qubit(i)
	}
	return p, nil
}

// Len returns the number of qubits.
func (p *Permutation) Len() int { return len(p.data) }

// Permutated returns the permutated position of logical qubit q.
func (p *Permutation) Permutated(q Qubit) Permutated { return p.data[q] }

// Logical returns the logical qubit currently at permutated position pq.
func (p *Permutation) Logical(pq Permutated) Qubit { return p.inverse[pq] }

// PermutatedAll resolves every qubit in qs.
func (p *Permutation) PermutatedAll(qs []Qubit) []Permutated {
	out := make([]Permutated, len(qs))
	for i, q := range qs {
		out[i] = p.data[q]
	}
	return out
}

// Swap exchanges the permutated positions of logical qubits a and b.
func (p *Permutation) Swap(a, b Qubit) {
	pa, pb := p.data[a], p.data[b]
	p.data[a], p.data[b] = pb, pa
	p.inverse[pa], p.inverse[pb] = b, a
}

// PermutateBits maps a logical basis index to the permutated basis index.
func (p *Permutation) PermutateBits(x uint64) uint64 {
	var out uint64
	for q, pq := range p.data {
		out |= ((x >> uint(q)) & 1) << uint(pq)
	}
	return out
}

// InversePermutateBits maps a permutated basis index back to the logical basis index.
func (p *Permutation) InversePermutateBits(x uint64) uint64 {
	var out uint64
	for pq, q := range p.inverse {
		out |= ((x >> uint(pq)) & 1) << uint(q)
	}
	return out
}

// Clone returns a deep copy.
func (p *Permutation) Clone() *Permutation {
	c := &Permutation{
		data:    make([]Permutated, len(p.data)),
		inverse: make([]Qubit, len(p.inverse)),
	}
	copy(c.data, p.data)
	copy(c.inverse, p.inverse)
	return c
}

// Equal reports whether both permutations map every qubit identically.
func (p *Permutation) Equal(other *Permutation) bool {
	if other == nil || len(p.data) != len(other.data) {
		return false
	}
	for i := range p.data {
		if p.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// IsIdentity reports whether every logical qubit sits at its own position.
func (p *Permutation) IsIdentity() bool {
	for q, pq := range p.data {
		if int(pq) != q {
			return false
		}
	}
	return true
}

// String renders the permutation as "[q0->p0 q1->p1 ...]".
func (p *Permutation) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for q, pq := range p.data {
		if q > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d->%d", q, pq)
	}
	sb.WriteByte(']')
	return sb.String()
}
