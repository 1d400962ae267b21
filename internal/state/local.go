// Package state holds the amplitudes owned by one rank.
//
// The data block of a rank (2^LocalQubits amplitudes) is split into PageCount
// pages addressed through a page table, plus one spare page. The spare page is
// the receive buffer of qubit interchange: received amplitudes land in the
// spare page, which is then swapped into the page table in O(1).
package state

import (
	"fmt"

	"github.com/hupe1980/ketgo/internal/mem"
	"github.com/hupe1980/ketgo/internal/resource"
	"github.com/hupe1980/ketgo/partition"
)

// Amplitude is the numeric type of every amplitude.
type Amplitude = complex128

// Local is one rank's shard of the state vector.
type Local struct {
	layout partition.Layout
	arena  *Arena
	table  []int // page id -> slot
	spare  int   // slot of the spare page

	ctrl     *resource.Controller
	reserved int64
	storage  string
}

// New allocates the pages of one rank and initializes them to zero.
// Memory is reserved on ctrl (may be nil) before allocation.
func New(layout partition.Layout, rank int, storage Storage, ctrl *resource.Controller) (*Local, error) {
	if storage == nil {
		storage = Heap{}
	}

	slots := int(layout.PageCount) + 1
	bytes := int64(mem.Complex128Bytes(int(layout.PageSize))) * int64(slots)
	if err := ctrl.AcquireMemory(bytes); err != nil {
		return nil, fmt.Errorf("reserve %s pages: %w", storage.Name(), err)
	}

	arena, err := storage.Allocate(rank, slots, layout.PageSize)
	if err != nil {
		ctrl.ReleaseMemory(bytes)
		return nil, fmt.Errorf("allocate %s pages: %w", storage.Name(), err)
	}

	s := &Local{
		layout:   layout,
		arena:    arena,
		table:    make([]int, layout.PageCount),
		spare:    int(layout.PageCount),
		ctrl:     ctrl,
		reserved: bytes,
		storage:  storage.Name(),
	}
	for i := range s.table {
		s.table[i] = i
	}
	return s, nil
}

// Layout returns the partition this state was built for.
func (s *Local) Layout() partition.Layout { return s.layout }

// StorageName returns the name of the backend holding the pages.
func (s *Local) StorageName() string { return s.storage }

// Page returns page id through the page table.
func (s *Local) Page(id uint64) []Amplitude { return s.arena.Slots[s.table[id]] }

// Spare returns the spare page.
func (s *Local) Spare() []Amplitude { return s.arena.Slots[s.spare] }

// SwapSpare exchanges page id and the spare page in the page table.
func (s *Local) SwapSpare(id uint64) {
	s.table[id], s.spare = s.spare, s.table[id]
}

func (s *Local) split(index uint64) (page, offset uint64) {
	nonpage := uint(s.layout.NonpageQubits)
	return index >> nonpage, index & (s.layout.PageSize - 1)
}

// At returns the amplitude at a local permutated index.
func (s *Local) At(index uint64) Amplitude {
	p, o := s.split(index)
	return s.Page(p)[o]
}

// Set stores the amplitude at a local permutated index.
func (s *Local) Set(index uint64, v Amplitude) {
	p, o := s.split(index)
	s.Page(p)[o] = v
}

// Zero clears every page.
func (s *Local) Zero() {
	for id := uint64(0); id < s.layout.PageCount; id++ {
		clear(s.Page(id))
	}
}

// Reset sets the state to the computational basis state with the given
// permutated global index. Ranks not owning the index end up all zero.
func (s *Local) Reset(rank int, global uint64) {
	s.Zero()
	if s.layout.RankOf(global) == rank {
		s.Set(global&(s.layout.DataBlockSize-1), 1)
	}
}

// CopyOut copies the local range [first, first+len(dst)) into dst.
func (s *Local) CopyOut(dst []Amplitude, first uint64) {
	s.walk(first, uint64(len(dst)), func(page []Amplitude, off uint64) {
		n := copy(dst, page[off:])
		dst = dst[n:]
	})
}

// CopyIn copies src into the local range [first, first+len(src)).
func (s *Local) CopyIn(src []Amplitude, first uint64) {
	s.walk(first, uint64(len(src)), func(page []Amplitude, off uint64) {
		n := copy(page[off:], src)
		src = src[n:]
	})
}

// walk visits the page pieces covering [first, first+n) in order.
func (s *Local) walk(first, n uint64, fn func(page []Amplitude, off uint64)) {
	for n > 0 {
		p, o := s.split(first)
		take := min(s.layout.PageSize-o, n)
		fn(s.Page(p)[:o+take], o)
		first += take
		n -= take
	}
}

// Close releases the pages and the reserved memory. It is idempotent.
func (s *Local) Close() error {
	if s.arena == nil {
		return nil
	}
	err := s.arena.Close()
	s.arena = nil
	s.ctrl.ReleaseMemory(s.reserved)
	s.reserved = 0
	return err
}
