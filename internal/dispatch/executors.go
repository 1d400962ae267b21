package dispatch

import (
	"context"

	"github.com/hupe1980/ketgo/internal/bitmask"
)

// runLocal handles operands that all lie in the nonpage range: the bit-mask loop
// runs inside each page.
func (e *Engine) runLocal(ctx context.Context, pos []uint, body Body) error {
	l := e.layout
	m := bitmask.New(pos...)
	innerBits := uint(l.NonpageQubits - m.K())
	innerMask := uint64(1)<<innerBits - 1

	return e.policy.For(ctx, l.PageCount<<innerBits, func(w int, lo, hi uint64) {
		amps := make([]*complex128, m.Siblings())
		idx := make([]uint64, m.Siblings())
		for i := lo; i < hi; i++ {
			page := e.state.Page(i >> innerBits)
			m.Fill(idx, i&innerMask)
			for j, x := range idx {
				amps[j] = &page[x]
			}
			body(w, amps)
		}
	})
}

// runPage handles operands that all select pages: each group of 2^k pages is
// walked in lockstep over the whole page.
func (e *Engine) runPage(ctx context.Context, pos []uint, body Body) error {
	l := e.layout
	nonpage := uint(l.NonpageQubits)

	pagePos := make([]uint, len(pos))
	for i, p := range pos {
		pagePos[i] = p - nonpage
	}
	m := bitmask.New(pagePos...)
	groups := uint64(1) << uint(l.PageQubits-m.K())

	return e.policy.For(ctx, groups<<nonpage, func(w int, lo, hi uint64) {
		amps := make([]*complex128, m.Siblings())
		ids := make([]uint64, m.Siblings())
		pages := make([][]complex128, m.Siblings())
		group := ^uint64(0)
		for i := lo; i < hi; i++ {
			if g := i >> nonpage; g != group {
				group = g
				m.Fill(ids, group)
				for j, id := range ids {
					pages[j] = e.state.Page(id)
				}
			}
			off := i & (l.PageSize - 1)
			for j := range amps {
				amps[j] = &pages[j][off]
			}
			body(w, amps)
		}
	})
}

// runMixed handles operands split between page and nonpage bits: a page-group
// loop outside, the nonpage bit-mask loop inside.
func (e *Engine) runMixed(ctx context.Context, pos []uint, body Body) error {
	l := e.layout
	nonpage := uint(l.NonpageQubits)

	var pagePos, offPos []uint
	k := len(pos)
	pageOr := make([]uint64, 1<<k)
	offOr := make([]uint64, 1<<k)
	for _, p := range pos {
		if p >= nonpage {
			pagePos = append(pagePos, p-nonpage)
		} else {
			offPos = append(offPos, p)
		}
	}
	for j := range pageOr {
		for i, p := range pos {
			if j&(1<<i) == 0 {
				continue
			}
			if p >= nonpage {
				pageOr[j] |= 1 << (p - nonpage)
			} else {
				offOr[j] |= 1 << p
			}
		}
	}

	pm := bitmask.New(pagePos...)
	om := bitmask.New(offPos...)
	innerBits := nonpage - uint(om.K())
	innerMask := uint64(1)<<innerBits - 1
	groups := uint64(1) << uint(l.PageQubits-pm.K())

	return e.policy.For(ctx, groups<<innerBits, func(w int, lo, hi uint64) {
		amps := make([]*complex128, 1<<k)
		for i := lo; i < hi; i++ {
			pageBase := pm.Base(i >> innerBits)
			offBase := om.Base(i & innerMask)
			for j := range amps {
				amps[j] = &e.state.Page(pageBase | pageOr[j])[offBase|offOr[j]]
			}
			body(w, amps)
		}
	})
}

// runStaged handles operands whose pages do not fit the on-cache buffer.
//
// The lowest nontag local bits are copied as contiguous chunks; the chunk slots
// above them hold exactly the operands at or above nontag, renumbered to the
// cache positions nontag, nontag+1, ... in operand order. Every remaining
// ("tag") bit combination loads 2^numChunk chunks, runs the bit-mask loop in
// the buffer and stores the chunks back.
func (e *Engine) runStaged(ctx context.Context, pos []uint, body Body) error {
	l := e.layout
	onCache := uint(l.OnCacheQubits)
	local := uint(l.LocalQubits)

	isOperand := make(map[uint]bool, len(pos))
	offCache := 0
	for _, p := range pos {
		isOperand[p] = true
		if p >= onCache {
			offCache++
		}
	}

	// Walk down from the top of the buffer until enough free slots are found
	// for the off-cache operands.
	nontag := onCache
	for free := 0; free < offCache; {
		nontag--
		if !isOperand[nontag] {
			free++
		}
	}

	cachePos := make([]uint, len(pos))
	var tagPos []uint
	for i, p := range pos {
		if p < nontag {
			cachePos[i] = p
			continue
		}
		cachePos[i] = nontag + uint(len(tagPos))
		tagPos = append(tagPos, p-nontag)
	}

	tm := bitmask.New(tagPos...)
	cm := bitmask.New(cachePos...)
	numTag := local - nontag
	tagLoop := uint64(1) << (numTag - uint(tm.K()))
	chunkSize := uint64(1) << nontag
	chunks := tm.Siblings()
	cacheLoop := uint64(1) << (onCache - uint(cm.K()))

	for tagWo := uint64(0); tagWo < tagLoop; tagWo++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		base := tm.Base(tagWo)
		for c := uint64(0); c < chunks; c++ {
			e.state.CopyOut(e.cache[c*chunkSize:(c+1)*chunkSize], tm.With(base, c)<<nontag)
		}

		err := e.policy.For(ctx, cacheLoop, func(w int, lo, hi uint64) {
			amps := make([]*complex128, cm.Siblings())
			idx := make([]uint64, cm.Siblings())
			for i := lo; i < hi; i++ {
				cm.Fill(idx, i)
				for j, x := range idx {
					amps[j] = &e.cache[x]
				}
				body(w, amps)
			}
		})
		if err != nil {
			return err
		}

		for c := uint64(0); c < chunks; c++ {
			e.state.CopyIn(e.cache[c*chunkSize:(c+1)*chunkSize], tm.With(base, c)<<nontag)
		}
	}
	return nil
}
