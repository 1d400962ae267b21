// Package qubit defines logical and permutated qubit indices and the permutation
// that maps one onto the other.
//
// # Logical vs. permutated
//
// A logical [Qubit] is the stable index callers use for the whole run. A [Permutated]
// qubit is the bit position actually used to address the distributed amplitude array.
// The two drift apart whenever data is relocated between processes: the relocation
// moves amplitudes and then relabels the qubits instead of moving them back.
//
//	perm, _ := qubit.NewPermutation(4)
//	perm.Swap(0, 3)           // pure relabeling, no amplitude is touched
//	p := perm.Permutated(0)   // 3
//	q := perm.Logical(p)      // 0
//
// All lookups are O(1); the permutation keeps both directions materialized.
package qubit
