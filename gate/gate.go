// Package gate provides gate kernels for the simulator.
//
// A kernel receives pointers to the 2^k amplitudes of one sibling group, where k
// is the gate arity. Bit i of an entry's position in amps is the value of the
// i-th operand as passed to Apply. For controlled gates the target operands come
// first and the controls follow, so CNOT is applied as (target, control).
package gate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingKernel is returned when a gate has no kernel.
	ErrMissingKernel = errors.New("gate: missing kernel")
	// ErrArity is returned when a gate is applied to the wrong number of operands.
	ErrArity = errors.New("gate: wrong number of operands")
	// ErrUnknownGate is returned by Lookup for unknown names.
	ErrUnknownGate = errors.New("gate: unknown gate")
	// ErrParams is returned by Lookup for a wrong number of parameters.
	ErrParams = errors.New("gate: wrong number of parameters")
)

// Kernel updates one sibling group in place.
type Kernel func(amps []*complex128)

// Gate is a named unitary acting on Arity qubits.
type Gate struct {
	Name   string
	Arity  int
	Kernel Kernel

	adjoint func() Gate
}

// Adjoint returns the inverse gate. Self-adjoint gates return themselves.
func (g Gate) Adjoint() Gate {
	if g.adjoint == nil {
		return g
	}
	return g.adjoint()
}

// Check validates g for k operands.
func (g Gate) Check(k int) error {
	if g.Kernel == nil {
		return fmt.Errorf("%w: %q", ErrMissingKernel, g.Name)
	}
	if g.Arity != k {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArity, g.Name, g.Arity, k)
	}
	return nil
}

// String implements fmt.Stringer.
func (g Gate) String() string { return g.Name }

// adjointName toggles the trailing "+" of a gate name.
func adjointName(name string) string {
	if s, ok := strings.CutSuffix(name, "+"); ok {
		return s
	}
	return name + "+"
}

// Matrix1 builds a single-qubit gate from a unitary m, indexed m[row][col].
func Matrix1(name string, m [2][2]complex128) Gate {
	return Gate{
		Name:  name,
		Arity: 1,
		Kernel: func(amps []*complex128) {
			a0, a1 := *amps[0], *amps[1]
			*amps[0] = m[0][0]*a0 + m[0][1]*a1
			*amps[1] = m[1][0]*a0 + m[1][1]*a1
		},
		adjoint: func() Gate {
			return Matrix1(adjointName(name), dagger2(m))
		},
	}
}

// Diagonal1 builds a single-qubit gate diag(d0, d1).
func Diagonal1(name string, d0, d1 complex128) Gate {
	return Gate{
		Name:  name,
		Arity: 1,
		Kernel: func(amps []*complex128) {
			*amps[0] *= d0
			*amps[1] *= d1
		},
		adjoint: func() Gate {
			return Diagonal1(adjointName(name), conj(d0), conj(d1))
		},
	}
}

// Matrix2 builds a two-qubit gate from a unitary m. Row and column indices use
// bit 0 for the first operand and bit 1 for the second.
func Matrix2(name string, m [4][4]complex128) Gate {
	return Gate{
		Name:  name,
		Arity: 2,
		Kernel: func(amps []*complex128) {
			var in [4]complex128
			for i := range in {
				in[i] = *amps[i]
			}
			for r := 0; r < 4; r++ {
				*amps[r] = m[r][0]*in[0] + m[r][1]*in[1] + m[r][2]*in[2] + m[r][3]*in[3]
			}
		},
		adjoint: func() Gate {
			return Matrix2(adjointName(name), dagger4(m))
		},
	}
}

// Controlled adds c control operands after the operands of g. The kernel of g
// runs only on the sibling entries where every control is 1.
func Controlled(g Gate, c int) Gate {
	if c <= 0 {
		return g
	}
	inner := g.Kernel
	a := g.Arity
	first := ((1 << c) - 1) << a
	return Gate{
		Name:  strings.Repeat("C", c) + g.Name,
		Arity: a + c,
		Kernel: func(amps []*complex128) {
			inner(amps[first : first+(1<<a)])
		},
		adjoint: func() Gate {
			return Controlled(g.Adjoint(), c)
		},
	}
}

func named(g Gate, name string) Gate {
	g.Name = name
	return g
}

func conj(c complex128) complex128 { return complex(real(c), -imag(c)) }

func dagger2(m [2][2]complex128) [2][2]complex128 {
	var out [2][2]complex128
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			out[r][c] = conj(m[c][r])
		}
	}
	return out
}

func dagger4(m [4][4]complex128) [4][4]complex128 {
	var out [4][4]complex128
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = conj(m[c][r])
		}
	}
	return out
}
