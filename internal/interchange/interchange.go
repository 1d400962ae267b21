// Package interchange makes the operands of an operation locally owned.
//
// A permutated position at or above LocalQubits is a rank bit: its two halves
// live on different processes. For g such operands the protocol pairs each with
// a local swap position s_i and, for every non-zero g-bit mask, exchanges with
// the rank that differs in the masked rank bits the segment of local indices
// whose swap bits equal that peer's rank bits. Afterwards each operand and its
// swap position trade places in the permutation.
//
// All ranks must call Localize with the same qubits in the same order.
package interchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/internal/bitmask"
	"github.com/hupe1980/ketgo/internal/dispatch"
	"github.com/hupe1980/ketgo/internal/mem"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

var (
	// ErrWrongCommunicatorSize is returned when the communicator size differs from
	// the rank count of the layout.
	ErrWrongCommunicatorSize = errors.New("wrong communicator size")
	// ErrTooManyOperands is returned when an operation has more operands than local qubits.
	ErrTooManyOperands = errors.New("more operands than local qubits")
)

// CheckSize verifies that c spans exactly the ranks of l.
func CheckSize(l partition.Layout, c comm.Communicator) error {
	if c.Size() != l.NumRanks {
		return fmt.Errorf("%w: communicator has %d ranks, layout needs %d", ErrWrongCommunicatorSize, c.Size(), l.NumRanks)
	}
	return nil
}

// Stats describes one Localize call.
type Stats struct {
	Swaps     int   // operands moved across ranks
	Moves     int   // local operands moved out of swap positions
	Exchanges int   // point-to-point exchanges issued
	Bytes     int64 // amplitude bytes sent
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithSelector sets the swap position policy.
func WithSelector(s Selector) Option {
	return func(p *Protocol) {
		if s != nil {
			p.selector = s
		}
	}
}

// WithUnit sets the number of amplitudes moved per point-to-point exchange.
func WithUnit(amplitudes int) Option {
	return func(p *Protocol) {
		if amplitudes > 0 {
			p.unit = uint64(amplitudes)
		}
	}
}

// WithController paces exchanges and accounts the exchange buffers.
func WithController(c *resource.Controller) Option {
	return func(p *Protocol) { p.ctrl = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// Protocol runs qubit interchange for one rank.
type Protocol struct {
	comm     comm.Communicator
	engine   *dispatch.Engine
	layout   partition.Layout
	selector Selector
	unit     uint64
	ctrl     *resource.Controller
	logger   *slog.Logger

	send, recv []complex128 // exchange buffers for strided segments
}

// New creates a protocol over c and the engine of this rank.
func New(c comm.Communicator, e *dispatch.Engine, opts ...Option) (*Protocol, error) {
	l := e.Layout()
	if err := CheckSize(l, c); err != nil {
		return nil, err
	}
	p := &Protocol{
		comm:     c,
		engine:   e,
		layout:   l,
		selector: TopLocal{},
		unit:     l.PageSize,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if l.NumRanks > 1 {
		p.unit = min(p.unit, l.DataBlockSize)
		if err := p.ctrl.AcquireMemory(2 * int64(mem.Complex128Bytes(int(p.unit)))); err != nil {
			return nil, fmt.Errorf("reserve exchange buffers: %w", err)
		}
		p.send = mem.AllocAlignedComplex128(int(p.unit))
		p.recv = mem.AllocAlignedComplex128(int(p.unit))
	}
	return p, nil
}

// Unit returns the number of amplitudes per exchange.
func (p *Protocol) Unit() int { return int(p.unit) }

// Close releases the exchange buffer reservation.
func (p *Protocol) Close() {
	if p.send != nil {
		p.ctrl.ReleaseMemory(2 * int64(mem.Complex128Bytes(int(p.unit))))
		p.send, p.recv = nil, nil
	}
}

// Localize makes every qubit in qubits locally owned, updating perm. With
// staging enabled and more operands than on-cache qubits, operands on page
// bits are then moved onto free nonpage bits so the operation runs on the
// Local path.
func (p *Protocol) Localize(ctx context.Context, perm *qubit.Permutation, qubits []qubit.Qubit) (Stats, error) {
	stats, err := p.swapIn(ctx, perm, qubits)
	if err != nil {
		return stats, err
	}
	moves, err := p.fitOnCache(ctx, perm, qubits)
	stats.Moves += moves
	return stats, err
}

func (p *Protocol) swapIn(ctx context.Context, perm *qubit.Permutation, qubits []qubit.Qubit) (Stats, error) {
	var stats Stats
	l := p.layout

	positions := perm.PermutatedAll(qubits)
	var global []qubit.Permutated
	for _, pos := range positions {
		if !l.IsLocal(pos) {
			global = append(global, pos)
		}
	}
	if len(global) == 0 {
		return stats, nil
	}
	if len(qubits) > l.LocalQubits {
		return stats, fmt.Errorf("%w: %d operands, %d local qubits", ErrTooManyOperands, len(qubits), l.LocalQubits)
	}

	swapPos := p.selector.Select(l, positions, len(global))
	if len(swapPos) != len(global) {
		return stats, fmt.Errorf("interchange: selector returned %d positions for %d operands", len(swapPos), len(global))
	}

	moves, err := p.clearSwapPositions(ctx, perm, positions, swapPos)
	if err != nil {
		return stats, err
	}
	stats.Moves = moves

	rank := uint64(p.comm.Rank())
	g := len(global)
	for mask := uint64(1); mask < 1<<g; mask++ {
		var peerBits uint64
		for i, pos := range global {
			if mask&(1<<i) != 0 {
				peerBits |= 1 << (uint(pos) - uint(l.LocalQubits))
			}
		}
		peer := rank ^ peerBits

		// Segment: local indices whose swap bits equal the peer's rank bits.
		var pattern uint64
		for i, pos := range global {
			if peer&(1<<(uint(pos)-uint(l.LocalQubits))) != 0 {
				pattern |= 1 << i
			}
		}

		var n, sent int64
		if contiguous(l, swapPos) {
			n, sent, err = p.exchangeContiguous(ctx, int(peer), swapPos, pattern)
		} else {
			n, sent, err = p.exchangeStrided(ctx, int(peer), swapPos, pattern)
		}
		stats.Exchanges += int(n)
		stats.Bytes += sent
		if err != nil {
			return stats, fmt.Errorf("interchange: exchange with rank %d: %w", peer, err)
		}
	}

	for i, pos := range global {
		perm.Swap(perm.Logical(pos), perm.Logical(swapPos[i]))
	}
	stats.Swaps = g

	p.logger.Debug("interchange",
		"rank", rank,
		"operands", g,
		"swap_positions", swapPos,
		"exchanges", stats.Exchanges,
		"bytes", stats.Bytes,
	)
	return stats, nil
}

// fitOnCache moves page operands to the highest free nonpage positions. It
// does nothing when the staged path can take the operation as is, or when a
// local SWAP with a page bit would itself not fit the on-cache buffer.
func (p *Protocol) fitOnCache(ctx context.Context, perm *qubit.Permutation, qubits []qubit.Qubit) (int, error) {
	l := p.layout
	if !l.StagingEnabled() || len(qubits) <= l.OnCacheQubits || l.OnCacheQubits < 2 {
		return 0, nil
	}

	positions := perm.PermutatedAll(qubits)
	taken := make(map[qubit.Permutated]bool, len(positions))
	for _, pos := range positions {
		taken[pos] = true
	}

	moves := 0
	free := l.NonpageQubits - 1
	for _, pos := range positions {
		if !l.IsPage(pos) {
			continue
		}
		for free >= 0 && taken[qubit.Permutated(free)] {
			free--
		}
		if free < 0 {
			break
		}
		to := qubit.Permutated(free)
		free--

		if _, err := p.engine.Apply(ctx, gate.SWAP, []qubit.Permutated{pos, to}); err != nil {
			return moves, fmt.Errorf("interchange: move %s to %s: %w", pos, to, err)
		}
		perm.Swap(perm.Logical(pos), perm.Logical(to))
		moves++
	}
	if moves > 0 {
		p.logger.Debug("fit on-cache", "rank", p.comm.Rank(), "moves", moves)
	}
	return moves, nil
}

// clearSwapPositions moves local operands that sit on a swap position to the
// highest free local position with a local SWAP.
func (p *Protocol) clearSwapPositions(ctx context.Context, perm *qubit.Permutation, operands, swapPos []qubit.Permutated) (int, error) {
	l := p.layout
	taken := make(map[qubit.Permutated]bool, len(operands)+len(swapPos))
	isOperand := make(map[qubit.Permutated]bool, len(operands))
	for _, pos := range operands {
		taken[pos] = true
		isOperand[pos] = true
	}
	for _, pos := range swapPos {
		taken[pos] = true
	}

	moves := 0
	free := qubit.Permutated(l.LocalQubits)
	for _, pos := range swapPos {
		if !isOperand[pos] {
			continue
		}
		for {
			free--
			if !taken[free] {
				break
			}
		}
		taken[free] = true

		if _, err := p.engine.Apply(ctx, gate.SWAP, []qubit.Permutated{pos, free}); err != nil {
			return moves, fmt.Errorf("interchange: move %s to %s: %w", pos, free, err)
		}
		perm.Swap(perm.Logical(pos), perm.Logical(free))
		moves++
	}
	return moves, nil
}

// exchangeContiguous swaps the segment [first, first+len) page by page. Sent
// amplitudes leave straight from the page; received ones land in the spare
// page, which then replaces the page.
func (p *Protocol) exchangeContiguous(ctx context.Context, peer int, swapPos []qubit.Permutated, pattern uint64) (int64, int64, error) {
	l := p.layout
	st := p.engine.State()

	var first uint64
	for i, pos := range swapPos {
		if pattern&(1<<i) != 0 {
			first |= 1 << pos
		}
	}
	length := l.DataBlockSize >> uint(len(swapPos))

	var exchanges, bytes int64
	for length > 0 {
		id := first >> uint(l.NonpageQubits)
		off := first & (l.PageSize - 1)
		take := min(l.PageSize-off, length)

		page, spare := st.Page(id), st.Spare()
		copy(spare[:off], page[:off])
		copy(spare[off+take:], page[off+take:])

		for u := off; u < off+take; u += p.unit {
			end := min(u+p.unit, off+take)
			if err := p.exchange(ctx, peer, page[u:end], spare[u:end]); err != nil {
				return exchanges, bytes, err
			}
			exchanges++
			bytes += int64(mem.Complex128Bytes(int(end - u)))
		}
		st.SwapSpare(id)

		first += take
		length -= take
	}
	return exchanges, bytes, nil
}

// exchangeStrided swaps a segment whose swap bits are not the top local bits,
// gathering it through the exchange buffers.
func (p *Protocol) exchangeStrided(ctx context.Context, peer int, swapPos []qubit.Permutated, pattern uint64) (int64, int64, error) {
	l := p.layout
	st := p.engine.State()

	bits := make([]uint, len(swapPos))
	for i, pos := range swapPos {
		bits[i] = uint(pos)
	}
	m := bitmask.New(bits...)
	total := l.DataBlockSize >> uint(len(swapPos))

	var exchanges, bytes int64
	for lo := uint64(0); lo < total; lo += p.unit {
		hi := min(lo+p.unit, total)
		send, recv := p.send[:hi-lo], p.recv[:hi-lo]
		for w := lo; w < hi; w++ {
			send[w-lo] = st.At(m.Index(w, pattern))
		}
		if err := p.exchange(ctx, peer, send, recv); err != nil {
			return exchanges, bytes, err
		}
		for w := lo; w < hi; w++ {
			st.Set(m.Index(w, pattern), recv[w-lo])
		}
		exchanges++
		bytes += int64(mem.Complex128Bytes(int(hi - lo)))
	}
	return exchanges, bytes, nil
}

func (p *Protocol) exchange(ctx context.Context, peer int, send, recv []complex128) error {
	if err := p.ctrl.AcquireIO(ctx, mem.Complex128Bytes(len(send))); err != nil {
		return err
	}
	return p.comm.Exchange(ctx, peer, send, recv)
}
