// Package inproc connects n ranks inside one process with buffered channels.
//
// It is the transport of the test suite and of the ketsim runner: each rank runs
// in its own goroutine and owns one Transport of the world.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/ketgo/comm"
)

// DefaultDepth is the channel capacity between two ranks.
const DefaultDepth = 16

type world struct {
	size  int
	links [][]chan comm.Frame // links[from][to]
	done  []chan struct{}
	once  []sync.Once
}

// Transport is one rank's endpoint of an in-process world.
type Transport struct {
	w    *world
	rank int
}

var _ comm.Transport = (*Transport)(nil)

// NewWorld creates size connected transports, one per rank.
func NewWorld(size int) []*Transport {
	w := &world{
		size:  size,
		links: make([][]chan comm.Frame, size),
		done:  make([]chan struct{}, size),
		once:  make([]sync.Once, size),
	}
	for from := range w.links {
		w.links[from] = make([]chan comm.Frame, size)
		for to := range w.links[from] {
			if from != to {
				w.links[from][to] = make(chan comm.Frame, DefaultDepth)
			}
		}
		w.done[from] = make(chan struct{})
	}

	ts := make([]*Transport, size)
	for r := range ts {
		ts[r] = &Transport{w: w, rank: r}
	}
	return ts
}

// NewCommunicators creates a world of size ranks wrapped in comm.Comm.
func NewCommunicators(size int, opts ...comm.Option) []comm.Communicator {
	ts := NewWorld(size)
	cs := make([]comm.Communicator, size)
	for i, t := range ts {
		cs[i] = comm.New(t, opts...)
	}
	return cs
}

// Rank implements comm.Transport.
func (t *Transport) Rank() int { return t.rank }

// Size implements comm.Transport.
func (t *Transport) Size() int { return t.w.size }

func (t *Transport) check(peer int) error {
	if peer < 0 || peer >= t.w.size || peer == t.rank {
		return fmt.Errorf("%w: %d", comm.ErrInvalidRank, peer)
	}
	return nil
}

// Send implements comm.Transport. The payload is copied.
func (t *Transport) Send(ctx context.Context, peer int, f comm.Frame) error {
	if err := t.check(peer); err != nil {
		return err
	}
	select {
	case <-t.w.done[t.rank]:
		return comm.ErrClosed
	default:
	}

	f.Payload = append([]byte(nil), f.Payload...)
	select {
	case t.w.links[t.rank][peer] <- f:
		return nil
	case <-t.w.done[t.rank]:
		return comm.ErrClosed
	case <-t.w.done[peer]:
		return fmt.Errorf("peer %d: %w", peer, comm.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements comm.Transport.
func (t *Transport) Recv(ctx context.Context, peer int) (comm.Frame, error) {
	if err := t.check(peer); err != nil {
		return comm.Frame{}, err
	}
	link := t.w.links[peer][t.rank]
	select {
	case f := <-link:
		return f, nil
	case <-t.w.done[t.rank]:
		return comm.Frame{}, comm.ErrClosed
	case <-t.w.done[peer]:
		// Drain frames the peer sent before closing.
		select {
		case f := <-link:
			return f, nil
		default:
			return comm.Frame{}, fmt.Errorf("peer %d: %w", peer, comm.ErrClosed)
		}
	case <-ctx.Done():
		return comm.Frame{}, ctx.Err()
	}
}

// Close implements comm.Transport. It is idempotent.
func (t *Transport) Close() error {
	t.w.once[t.rank].Do(func() { close(t.w.done[t.rank]) })
	return nil
}
