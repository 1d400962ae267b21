// Package parallel runs the outer loops of the gate executors.
//
// A loop over [0, n) is split into contiguous ranges, one per worker. Workers own
// disjoint index ranges, so a parallel run produces bit-identical results to a
// sequential one.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Body processes the indices [lo, hi) on behalf of worker w.
type Body func(w int, lo, hi uint64)

// Policy executes loops.
type Policy interface {
	// Workers returns the number of distinct worker ids Body may observe.
	Workers() int
	// For runs body over [0, n).
	For(ctx context.Context, n uint64, body Body) error
}

// Sequential runs every loop on the calling goroutine as worker 0.
type Sequential struct{}

// Workers implements Policy.
func (Sequential) Workers() int { return 1 }

// For implements Policy.
func (Sequential) For(ctx context.Context, n uint64, body Body) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n > 0 {
		body(0, 0, n)
	}
	return nil
}

// minGrain is the smallest range worth a goroutine.
const minGrain = 1 << 10

// Parallel spreads loops over a bounded errgroup.
type Parallel struct {
	workers int
}

// New returns a Parallel policy with the given number of workers.
// workers <= 0 selects runtime.GOMAXPROCS(0). One worker yields Sequential.
func New(workers int) Policy {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 {
		return Sequential{}
	}
	return &Parallel{workers: workers}
}

// Workers implements Policy.
func (p *Parallel) Workers() int { return p.workers }

// For implements Policy.
func (p *Parallel) For(ctx context.Context, n uint64, body Body) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	chunks := uint64(p.workers)
	if n/chunks < minGrain {
		chunks = max(n/minGrain, 1)
	}
	if chunks == 1 {
		body(0, 0, n)
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	step := (n + chunks - 1) / chunks
	for w := uint64(0); w < chunks; w++ {
		lo := w * step
		if lo >= n {
			break
		}
		hi := min(lo+step, n)
		g.Go(func() error {
			body(int(w), lo, hi)
			return nil
		})
	}
	return g.Wait()
}
