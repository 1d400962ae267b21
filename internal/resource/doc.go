// Package resource accounts the memory of one rank and paces its exchange traffic.
//
//   - Memory: pages, the spare page, the on-cache buffer and the exchange buffer are
//     reserved up front (non-blocking, fail-fast).
//   - Exchange IO: a token bucket limits the bytes per second a rank pushes to its
//     peers during qubit interchange.
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if err := rc.AcquireMemory(pageBytes); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(pageBytes)
//
// Exchange pacing:
//
//	if err := rc.AcquireIO(ctx, len(unit)*16); err != nil {
//	    return err
//	}
//
// All Controller methods are safe for concurrent use, and every method on a nil
// Controller is a no-op.
package resource
