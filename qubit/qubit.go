package qubit

import (
	"errors"
	"fmt"
)

// MaxQubits is the largest qubit count whose basis indices fit a uint64 with
// room for the sentinel bit used by the mask arithmetic.
const MaxQubits = 63

var (
	// ErrInvalidQubitCount is returned when the qubit count is zero or exceeds MaxQubits.
	ErrInvalidQubitCount = errors.New("invalid qubit count")
	// ErrQubitOutOfRange is returned when a qubit index is not below the qubit count.
	ErrQubitOutOfRange = errors.New("qubit out of range")
	// ErrDuplicateQubit is returned when the same qubit is used twice in one operation.
	ErrDuplicateQubit = errors.New("duplicate qubit")
)

// Qubit is a logical qubit index.
type Qubit uint32

// String implements fmt.Stringer.
func (q Qubit) String() string { return fmt.Sprintf("q%d", uint32(q)) }

// Permutated is the physical bit position of a qubit in the amplitude index.
type Permutated uint32

// String implements fmt.Stringer.
func (p Permutated) String() string { return fmt.Sprintf("p%d", uint32(p)) }

// Mask returns the single-bit mask of the position.
func (p Permutated) Mask() uint64 { return uint64(1) << p }

// Control marks a logical qubit used as a control operand.
type Control struct {
	q Qubit
}

// Ctrl wraps q as a control operand.
func Ctrl(q Qubit) Control { return Control{q: q} }

// Qubit returns the underlying logical qubit.
func (c Control) Qubit() Qubit { return c.q }

// String implements fmt.Stringer.
func (c Control) String() string { return "c" + c.q.String() }

// Operands returns the operand list for a gate acting on targets under controls.
// Targets come first, controls follow in the given order.
func Operands(targets []Qubit, controls ...Control) []Qubit {
	out := make([]Qubit, 0, len(targets)+len(controls))
	out = append(out, targets...)
	for _, c := range controls {
		out = append(out, c.q)
	}
	return out
}

// Validate checks that every qubit is below n and that no qubit repeats.
func Validate(n int, qubits ...Qubit) error {
	for i, q := range qubits {
		if int(q) >= n {
			return fmt.Errorf("%w: %s (qubits: %d)", ErrQubitOutOfRange, q, n)
		}
		for _, other := range qubits[:i] {
			if other == q {
				return fmt.Errorf("%w: %s", ErrDuplicateQubit, q)
			}
		}
	}
	return nil
}
