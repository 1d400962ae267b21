package gate

import (
	"fmt"
	"sort"
	"strings"
)

type entry struct {
	params int
	build  func(p []float64) Gate
}

func fixed(g Gate) entry {
	return entry{build: func([]float64) Gate { return g }}
}

var registry = map[string]entry{
	"I":       fixed(I),
	"H":       fixed(H),
	"X":       fixed(X),
	"NOT":     fixed(X),
	"Y":       fixed(Y),
	"Z":       fixed(Z),
	"S":       fixed(S),
	"S+":      fixed(S.Adjoint()),
	"T":       fixed(T),
	"T+":      fixed(T.Adjoint()),
	"SX":      fixed(SX),
	"SX+":     fixed(SX.Adjoint()),
	"SY":      fixed(SY),
	"SY+":     fixed(SY.Adjoint()),
	"SWAP":    fixed(SWAP),
	"CNOT":    fixed(CNOT),
	"CX":      fixed(CNOT),
	"CZ":      fixed(CZ),
	"TOFFOLI": fixed(Toffoli),
	"CCX":     fixed(Toffoli),
	"R":       {1, func(p []float64) Gate { return R(p[0]) }},
	"R+":      {1, func(p []float64) Gate { return R(p[0]).Adjoint() }},
	"CR":      {1, func(p []float64) Gate { return CR(p[0]) }},
	"CR+":     {1, func(p []float64) Gate { return CR(p[0]).Adjoint() }},
	"U1":      {1, func(p []float64) Gate { return U1(p[0]) }},
	"U1+":     {1, func(p []float64) Gate { return U1(p[0]).Adjoint() }},
	"U2":      {2, func(p []float64) Gate { return U2(p[0], p[1]) }},
	"U2+":     {2, func(p []float64) Gate { return U2(p[0], p[1]).Adjoint() }},
	"U3":      {3, func(p []float64) Gate { return U3(p[0], p[1], p[2]) }},
	"U3+":     {3, func(p []float64) Gate { return U3(p[0], p[1], p[2]).Adjoint() }},
	"EX":      {1, func(p []float64) Gate { return EX(p[0]) }},
	"EX+":     {1, func(p []float64) Gate { return EX(p[0]).Adjoint() }},
	"EY":      {1, func(p []float64) Gate { return EY(p[0]) }},
	"EY+":     {1, func(p []float64) Gate { return EY(p[0]).Adjoint() }},
	"EZ":      {1, func(p []float64) Gate { return EZ(p[0]) }},
	"EZ+":     {1, func(p []float64) Gate { return EZ(p[0]).Adjoint() }},
}

// Lookup resolves a gate by its case-insensitive name. A leading "C" prefix on an
// unknown name adds one control per "C" (e.g. "CCH" is H with two controls).
func Lookup(name string, params ...float64) (Gate, error) {
	upper := strings.ToUpper(name)

	controls := 0
	e, ok := registry[upper]
	for !ok && strings.HasPrefix(upper, "C") {
		upper = upper[1:]
		controls++
		e, ok = registry[upper]
	}
	if !ok {
		return Gate{}, fmt.Errorf("%w: %q", ErrUnknownGate, name)
	}
	if len(params) != e.params {
		return Gate{}, fmt.Errorf("%w: %s takes %d, got %d", ErrParams, name, e.params, len(params))
	}
	return Controlled(e.build(params), controls), nil
}

// Names returns the registered gate names in sorted order. The number of
// parameters each takes is in the second slice.
func Names() ([]string, []int) {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	params := make([]int, len(names))
	for i, name := range names {
		params[i] = registry[name].params
	}
	return names, params
}
