// Package testutil provides testing utilities for ketgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded random states, a flat reference simulator for checking
// results, and a helper that runs one goroutine per rank over an in-process
// communicator world.
//
// # Random States
//
//	rng := testutil.NewRNG(seed)
//	v := rng.State(10) // normalized random 10-qubit state
//
// # Reference Simulation
//
//	testutil.ApplyFlat(v, gate.CNOT, 1, 0)
//	testutil.AssertAmplitudesInDelta(t, v, got, 1e-12)
//
// # Multi-rank Tests
//
//	testutil.RunRanks(t, 4, func(ctx context.Context, c comm.Communicator) error {
//	    sim, err := ketgo.New(ctx, c, 8)
//	    ...
//	})
package testutil
