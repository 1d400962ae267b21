package gate

import (
	"math"
	"math/cmplx"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-12

// apply runs g on a full 2^Arity vector where operand i is bit i of the index.
func apply(g Gate, v []complex128) []complex128 {
	out := append([]complex128(nil), v...)
	ptrs := make([]*complex128, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	g.Kernel(ptrs)
	return out
}

func assertVec(t *testing.T, want, got []complex128) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, real(want[i]), real(got[i]), eps, "real[%d]", i)
		assert.InDelta(t, imag(want[i]), imag(got[i]), eps, "imag[%d]", i)
	}
}

func basis(k, i int) []complex128 {
	v := make([]complex128, 1<<k)
	v[i] = 1
	return v
}

func TestSingleQubitGates(t *testing.T) {
	s := 1 / math.Sqrt2
	tests := []struct {
		name string
		g    Gate
		in   int
		want []complex128
	}{
		{"H|0>", H, 0, []complex128{complex(s, 0), complex(s, 0)}},
		{"H|1>", H, 1, []complex128{complex(s, 0), complex(-s, 0)}},
		{"X|0>", X, 0, []complex128{0, 1}},
		{"Y|0>", Y, 0, []complex128{0, 1i}},
		{"Z|1>", Z, 1, []complex128{0, -1}},
		{"S|1>", S, 1, []complex128{0, 1i}},
		{"T|1>", T, 1, []complex128{0, cmplx.Rect(1, math.Pi/4)}},
		{"R(pi)|1>", R(math.Pi), 1, []complex128{0, -1}},
		{"EZ|0>", EZ(0.3), 0, []complex128{cmplx.Rect(1, 0.3), 0}},
		{"I|1>", I, 1, []complex128{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertVec(t, tt.want, apply(tt.g, basis(1, tt.in)))
		})
	}
}

func TestSquareRoots(t *testing.T) {
	for _, tt := range []struct {
		root, full Gate
	}{{SX, X}, {SY, Y}} {
		for in := 0; in < 2; in++ {
			got := apply(tt.root, apply(tt.root, basis(1, in)))
			assertVec(t, apply(tt.full, basis(1, in)), got)
		}
	}
}

func TestUGates(t *testing.T) {
	// U3(pi/2, phi, lambda) == U2(phi, lambda); U3(0, 0, lambda) == U1(lambda).
	for in := 0; in < 2; in++ {
		assertVec(t, apply(U2(0.4, 1.1), basis(1, in)), apply(U3(math.Pi/2, 0.4, 1.1), basis(1, in)))
		assertVec(t, apply(U1(0.7), basis(1, in)), apply(U3(0, 0, 0.7), basis(1, in)))
	}
	// U2(0, pi) == H
	assertVec(t, apply(H, basis(1, 1)), apply(U2(0, math.Pi), basis(1, 1)))
}

func TestAdjointCancels(t *testing.T) {
	gates := []Gate{
		I, H, X, Y, Z, S, T, SX, SY, R(0.3), U1(0.2), U2(0.1, 0.9), U3(0.5, 0.6, 0.7),
		EX(0.25), EY(0.5), EZ(0.75), SWAP, CNOT, CZ, CR(1.2), Toffoli,
		Controlled(U3(0.1, 0.2, 0.3), 2),
		Matrix2("M", [4][4]complex128{{0, 1, 0, 0}, {0, 0, 1i, 0}, {1, 0, 0, 0}, {0, 0, 0, -1}}),
	}
	for _, g := range gates {
		t.Run(g.Name, func(t *testing.T) {
			n := 1 << g.Arity
			for in := 0; in < n; in++ {
				v := make([]complex128, n)
				for i := range v {
					v[i] = complex(float64(i+1), float64(in-i))
				}
				assertVec(t, v, apply(g.Adjoint(), apply(g, v)))
			}
		})
	}
}

func TestAdjointNames(t *testing.T) {
	assert.Equal(t, "S+", S.Adjoint().Name)
	assert.Equal(t, "S", S.Adjoint().Adjoint().Name)
	assert.Equal(t, "H", H.Adjoint().Name)
	assert.Equal(t, "CNOT", CNOT.Adjoint().Name)
	assert.Equal(t, "CCU3+", Controlled(U3(1, 2, 3), 2).Adjoint().Name)
}

func TestTwoQubitGates(t *testing.T) {
	t.Run("CNOT", func(t *testing.T) {
		// Operand 0 is the target, operand 1 the control.
		assertVec(t, basis(2, 0b00), apply(CNOT, basis(2, 0b00)))
		assertVec(t, basis(2, 0b01), apply(CNOT, basis(2, 0b01)))
		assertVec(t, basis(2, 0b11), apply(CNOT, basis(2, 0b10)))
		assertVec(t, basis(2, 0b10), apply(CNOT, basis(2, 0b11)))
	})

	t.Run("SWAP", func(t *testing.T) {
		assertVec(t, basis(2, 0b10), apply(SWAP, basis(2, 0b01)))
		assertVec(t, basis(2, 0b11), apply(SWAP, basis(2, 0b11)))
	})

	t.Run("CZ", func(t *testing.T) {
		want := basis(2, 0b11)
		want[3] = -1
		assertVec(t, want, apply(CZ, basis(2, 0b11)))
		assertVec(t, basis(2, 0b01), apply(CZ, basis(2, 0b01)))
	})

	t.Run("Toffoli", func(t *testing.T) {
		assertVec(t, basis(3, 0b111), apply(Toffoli, basis(3, 0b110)))
		assertVec(t, basis(3, 0b100), apply(Toffoli, basis(3, 0b100)))
	})
}

func TestCollapse(t *testing.T) {
	v := []complex128{0.6, 0.8i}
	assertVec(t, []complex128{1, 0}, apply(Collapse(0, 1/0.6), v))
	assertVec(t, []complex128{0, 1i}, apply(Collapse(1, 1/0.8), v))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, CNOT.Check(2))
	assert.ErrorIs(t, CNOT.Check(1), ErrArity)
	assert.ErrorIs(t, Gate{Name: "broken", Arity: 1}.Check(1), ErrMissingKernel)
}

func TestLookup(t *testing.T) {
	g, err := Lookup("h")
	require.NoError(t, err)
	assert.Equal(t, "H", g.Name)

	g, err = Lookup("u3", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Arity)

	g, err = Lookup("CCH")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Arity)
	assert.Equal(t, "CCH", g.Name)

	g, err = Lookup("T+")
	require.NoError(t, err)
	assertVec(t, []complex128{0, cmplx.Rect(1, -math.Pi/4)}, apply(g, basis(1, 1)))

	_, err = Lookup("QQ")
	assert.ErrorIs(t, err, ErrUnknownGate)

	_, err = Lookup("R")
	assert.ErrorIs(t, err, ErrParams)
}

func TestNames(t *testing.T) {
	names, params := Names()
	require.Len(t, params, len(names))
	assert.Contains(t, names, "CNOT")
	assert.True(t, sort.StringsAreSorted(names))
	for i, name := range names {
		if name == "U3" {
			assert.Equal(t, 3, params[i])
		}
	}
}
