// Package comm defines the message-passing collaborator of the simulator and a
// Communicator built over any byte-frame Transport.
//
// Every rank must issue Exchange, AllReduce and Broadcast in the same order.
// Frames carry a per-communicator sequence number so a divergent order is
// reported as ErrMismatch instead of silently mixing data.
package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
)

// Communicator is the set of collective and point-to-point operations the
// simulator core consumes.
type Communicator interface {
	// Rank returns the id of the calling process in [0, Size()).
	Rank() int
	// Size returns the number of processes.
	Size() int
	// Exchange sends send to peer and receives len(recv) amplitudes from it.
	// Both sides must call Exchange with equal lengths.
	Exchange(ctx context.Context, peer int, send, recv []complex128) error
	// AllReduce combines values element-wise across all ranks, in place.
	// Every rank observes the identical result.
	AllReduce(ctx context.Context, values []float64, op Op) error
	// Broadcast copies buf of root into buf of every other rank.
	Broadcast(ctx context.Context, root int, buf []byte) error
	// Close releases the transport.
	Close() error
}

// Op is a reduction operator.
type Op int

const (
	// Sum adds the values.
	Sum Op = iota
	// Max keeps the largest value.
	Max
	// Min keeps the smallest value.
	Min
)

func (op Op) apply(acc, v float64) float64 {
	switch op {
	case Max:
		return math.Max(acc, v)
	case Min:
		return math.Min(acc, v)
	default:
		return acc + v
	}
}

// Kind tags the operation a frame belongs to.
type Kind uint8

const (
	// KindExchange carries amplitudes of a pairwise exchange.
	KindExchange Kind = iota + 1
	// KindReduce carries partial values to the root.
	KindReduce
	// KindResult carries the reduced values back from the root.
	KindResult
	// KindBroadcast carries broadcast bytes.
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindExchange:
		return "exchange"
	case KindReduce:
		return "reduce"
	case KindResult:
		return "result"
	case KindBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is the unit a Transport moves between two ranks.
type Frame struct {
	Kind    Kind
	Seq     uint64
	Payload []byte
}

// Transport moves frames between ranks. Frames from one sender to one receiver
// arrive in order. Send must not retain Payload after it returns.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, peer int, f Frame) error
	Recv(ctx context.Context, peer int) (Frame, error)
	Close() error
}

// Option configures a Comm.
type Option func(*Comm)

// WithLogger sets the logger for frame-level debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Comm) {
		if l != nil {
			c.logger = l
		}
	}
}

// Comm implements Communicator over a Transport.
type Comm struct {
	t      Transport
	seq    uint64
	logger *slog.Logger
}

var _ Communicator = (*Comm)(nil)

// New builds a Communicator over t.
func New(t Transport, opts ...Option) *Comm {
	c := &Comm{
		t:      t,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rank implements Communicator.
func (c *Comm) Rank() int { return c.t.Rank() }

// Size implements Communicator.
func (c *Comm) Size() int { return c.t.Size() }

// Close implements Communicator.
func (c *Comm) Close() error { return c.t.Close() }

func (c *Comm) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Comm) checkRank(op string, r int) error {
	if r < 0 || r >= c.t.Size() {
		return &Error{Op: op, Peer: r, Code: CodeIO, Err: fmt.Errorf("%w: %d (size %d)", ErrInvalidRank, r, c.t.Size())}
	}
	return nil
}

func (c *Comm) recv(ctx context.Context, peer int, kind Kind, seq uint64, size int) (Frame, error) {
	f, err := c.t.Recv(ctx, peer)
	if err != nil {
		return Frame{}, err
	}
	if f.Kind != kind || f.Seq != seq {
		return Frame{}, fmt.Errorf("%w: want %s #%d, got %s #%d", ErrMismatch, kind, seq, f.Kind, f.Seq)
	}
	if size >= 0 && len(f.Payload) != size {
		return Frame{}, fmt.Errorf("%w: %s #%d carries %d bytes, want %d", ErrMismatch, kind, seq, len(f.Payload), size)
	}
	return f, nil
}

// Exchange implements Communicator.
func (c *Comm) Exchange(ctx context.Context, peer int, send, recv []complex128) error {
	if err := c.checkRank("exchange", peer); err != nil {
		return err
	}
	seq := c.next()
	if peer == c.Rank() {
		copy(recv, send)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.t.Send(gctx, peer, Frame{Kind: KindExchange, Seq: seq, Payload: EncodeAmplitudes(send)})
	})

	var f Frame
	g.Go(func() error {
		var err error
		f, err = c.recv(gctx, peer, KindExchange, seq, len(recv)*16)
		return err
	})

	if err := g.Wait(); err != nil {
		return wrap("exchange", peer, err)
	}
	DecodeAmplitudes(recv, f.Payload)

	c.logger.Debug("exchange", "peer", peer, "seq", seq, "amplitudes", len(send))
	return nil
}

// AllReduce implements Communicator. Values are gathered at rank 0, reduced in
// rank order and sent back, so every rank sees bit-identical results.
func (c *Comm) AllReduce(ctx context.Context, values []float64, op Op) error {
	seq := c.next()
	size := len(values) * 8

	if c.Rank() != 0 {
		if err := c.t.Send(ctx, 0, Frame{Kind: KindReduce, Seq: seq, Payload: EncodeFloats(values)}); err != nil {
			return wrap("allreduce", 0, err)
		}
		f, err := c.recv(ctx, 0, KindResult, seq, size)
		if err != nil {
			return wrap("allreduce", 0, err)
		}
		DecodeFloats(values, f.Payload)
		return nil
	}

	part := make([]float64, len(values))
	for r := 1; r < c.Size(); r++ {
		f, err := c.recv(ctx, r, KindReduce, seq, size)
		if err != nil {
			return wrap("allreduce", r, err)
		}
		DecodeFloats(part, f.Payload)
		for i, v := range part {
			values[i] = op.apply(values[i], v)
		}
	}

	payload := EncodeFloats(values)
	for r := 1; r < c.Size(); r++ {
		if err := c.t.Send(ctx, r, Frame{Kind: KindResult, Seq: seq, Payload: payload}); err != nil {
			return wrap("allreduce", r, err)
		}
	}
	return nil
}

// Broadcast implements Communicator.
func (c *Comm) Broadcast(ctx context.Context, root int, buf []byte) error {
	if err := c.checkRank("broadcast", root); err != nil {
		return err
	}
	seq := c.next()

	if c.Rank() != root {
		f, err := c.recv(ctx, root, KindBroadcast, seq, len(buf))
		if err != nil {
			return wrap("broadcast", root, err)
		}
		copy(buf, f.Payload)
		return nil
	}

	for r := 0; r < c.Size(); r++ {
		if r == root {
			continue
		}
		if err := c.t.Send(ctx, r, Frame{Kind: KindBroadcast, Seq: seq, Payload: buf}); err != nil {
			return wrap("broadcast", r, err)
		}
	}
	return nil
}

// EncodeAmplitudes serializes amplitudes as little-endian (real, imag) float64 pairs.
func EncodeAmplitudes(amps []complex128) []byte {
	out := make([]byte, len(amps)*16)
	for i, a := range amps {
		binary.LittleEndian.PutUint64(out[i*16:], math.Float64bits(real(a)))
		binary.LittleEndian.PutUint64(out[i*16+8:], math.Float64bits(imag(a)))
	}
	return out
}

// DecodeAmplitudes fills dst from the encoding of EncodeAmplitudes.
func DecodeAmplitudes(dst []complex128, b []byte) {
	for i := range dst {
		re := math.Float64frombits(binary.LittleEndian.Uint64(b[i*16:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(b[i*16+8:]))
		dst[i] = complex(re, im)
	}
}

// EncodeFloats serializes values as little-endian float64.
func EncodeFloats(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// DecodeFloats fills dst from the encoding of EncodeFloats.
func DecodeFloats(dst []float64, b []byte) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
}
