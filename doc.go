// Package ketgo is a distributed quantum state-vector simulator.
//
// The amplitude vector of an n-qubit register is sharded across 2^r ranks that
// talk through a comm.Communicator. Every rank runs the same circuit against
// its own Simulator; gates whose operands are owned by another rank trigger a
// qubit interchange first, so the caller never has to care about placement.
//
// # Quick Start
//
// Single process:
//
//	ctx := context.Background()
//	comms := inproc.NewCommunicators(1)
//	sim, _ := ketgo.New(ctx, comms[0], 2)
//	defer sim.Close()
//
//	_ = sim.Apply(ctx, gate.H, 0)
//	_ = sim.Apply(ctx, gate.CNOT, 1, 0) // target, control
//	outcome, _ := sim.Measure(ctx, 0, rand.New(rand.NewSource(1)))
//
// Several ranks in one process (one goroutine per rank):
//
//	comms := inproc.NewCommunicators(4)
//	for _, c := range comms {
//	    go func() {
//	        sim, _ := ketgo.New(ctx, c, 20, ketgo.WithPageQubits(4))
//	        // ... same circuit on every rank ...
//	    }()
//	}
//
// Several processes over TCP:
//
//	ln, _ := tcp.Listen(addrs[rank])
//	t, _ := tcp.Connect(ctx, ln, rank, addrs, tcp.WithCodec(tcp.CodecLZ4))
//	sim, _ := ketgo.New(ctx, comm.New(t), 30)
//
// # Layout
//
// Permutated bit positions are split, from most to least significant, into
// rank qubits, page qubits and nonpage qubits. Page qubits select one of the
// rank's pages; WithOnCacheQubits additionally stages page operations through
// a small buffer. The logical-to-permutated mapping changes as interchanges
// happen; Permutation exposes it.
//
// # Collectives
//
// Apply, Measure, Sample, Probabilities, Clear, Set, SpinExpectation, Norm,
// Amplitudes, Support and Resize may communicate. Every rank must call them
// with the same arguments in the same order, or the ranks deadlock. Errors
// returned by any of them leave the distributed state undefined. The random
// source of Measure and Sample is the exception: only rank 0 reads it.
package ketgo
