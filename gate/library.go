package gate

import (
	"math"
	"math/cmplx"
)

var invSqrt2 = complex(1/math.Sqrt2, 0)

// selfAdjoint renames g and marks it as its own inverse.
func selfAdjoint(g Gate, name string) Gate {
	g = named(g, name)
	g.adjoint = nil
	return g
}

// I is the identity.
var I = Gate{Name: "I", Arity: 1, Kernel: func([]*complex128) {}}

// H is the Hadamard gate.
var H = selfAdjoint(Matrix1("H", [2][2]complex128{
	{invSqrt2, invSqrt2},
	{invSqrt2, -invSqrt2},
}), "H")

// X is the Pauli X (NOT) gate.
var X = Gate{
	Name:  "X",
	Arity: 1,
	Kernel: func(amps []*complex128) {
		*amps[0], *amps[1] = *amps[1], *amps[0]
	},
}

// Y is the Pauli Y gate.
var Y = selfAdjoint(Matrix1("Y", [2][2]complex128{
	{0, -1i},
	{1i, 0},
}), "Y")

// Z is the Pauli Z gate.
var Z = selfAdjoint(Diagonal1("Z", 1, -1), "Z")

// S is the phase gate diag(1, i).
var S = Diagonal1("S", 1, 1i)

// T is the pi/8 gate diag(1, e^{i pi/4}).
var T = Diagonal1("T", 1, cmplx.Rect(1, math.Pi/4))

// SX is the square root of X.
var SX = Matrix1("SX", [2][2]complex128{
	{0.5 + 0.5i, 0.5 - 0.5i},
	{0.5 - 0.5i, 0.5 + 0.5i},
})

// SY is the square root of Y.
var SY = Matrix1("SY", [2][2]complex128{
	{0.5 + 0.5i, -0.5 - 0.5i},
	{0.5 + 0.5i, 0.5 + 0.5i},
})

// R is the phase shift diag(1, e^{i theta}).
func R(theta float64) Gate {
	return Diagonal1("R", 1, cmplx.Rect(1, theta))
}

// U1 is the IBM U1 gate, equal to R(lambda).
func U1(lambda float64) Gate {
	return Diagonal1("U1", 1, cmplx.Rect(1, lambda))
}

// U2 is the IBM U2 gate.
func U2(phi, lambda float64) Gate {
	return Matrix1("U2", [2][2]complex128{
		{invSqrt2, -invSqrt2 * cmplx.Rect(1, lambda)},
		{invSqrt2 * cmplx.Rect(1, phi), invSqrt2 * cmplx.Rect(1, phi+lambda)},
	})
}

// U3 is the IBM U3 gate.
func U3(theta, phi, lambda float64) Gate {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return Matrix1("U3", [2][2]complex128{
		{c, -s * cmplx.Rect(1, lambda)},
		{s * cmplx.Rect(1, phi), c * cmplx.Rect(1, phi+lambda)},
	})
}

// EX is exp(i theta X).
func EX(theta float64) Gate {
	c, s := complex(math.Cos(theta), 0), complex(0, math.Sin(theta))
	return Matrix1("EX", [2][2]complex128{{c, s}, {s, c}})
}

// EY is exp(i theta Y).
func EY(theta float64) Gate {
	c, s := complex(math.Cos(theta), 0), complex(math.Sin(theta), 0)
	return Matrix1("EY", [2][2]complex128{{c, s}, {-s, c}})
}

// EZ is exp(i theta Z).
func EZ(theta float64) Gate {
	return Diagonal1("EZ", cmplx.Rect(1, theta), cmplx.Rect(1, -theta))
}

// SWAP exchanges two qubits.
var SWAP = Gate{
	Name:  "SWAP",
	Arity: 2,
	Kernel: func(amps []*complex128) {
		*amps[1], *amps[2] = *amps[2], *amps[1]
	},
}

// CNOT flips the target (first operand) when the control (second operand) is 1.
var CNOT = selfAdjoint(Controlled(X, 1), "CNOT")

// CZ applies Z to the first operand when the second is 1.
var CZ = selfAdjoint(Controlled(Z, 1), "CZ")

// Toffoli flips the first operand when both following operands are 1.
var Toffoli = selfAdjoint(Controlled(X, 2), "TOFFOLI")

// CR is the controlled phase shift; operands are (target, control).
func CR(theta float64) Gate {
	return Controlled(R(theta), 1)
}

// Collapse projects one qubit onto outcome (0 or 1) and multiplies the surviving
// amplitude by scale. The other branch is zeroed.
func Collapse(outcome int, scale float64) Gate {
	keep, drop := outcome&1, 1-outcome&1
	f := complex(scale, 0)
	return Gate{
		Name:  "COLLAPSE",
		Arity: 1,
		Kernel: func(amps []*complex128) {
			*amps[keep] *= f
			*amps[drop] = 0
		},
	}
}
