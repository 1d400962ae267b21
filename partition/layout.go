// Package partition computes how the permutated bit positions of an n-qubit
// amplitude index are split between processes, pages and the on-cache buffer.
//
// From most to least significant a permutated index reads
//
//	| rank qubits | page qubits | nonpage qubits |
//	              |<------- local qubits ------->|
//
// and, when staging is enabled, the lowest OnCacheQubits of the nonpage range are
// the ones that fit the on-cache working buffer.
package partition

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/hupe1980/ketgo/qubit"
)

var (
	// ErrInvalidQubitCount is returned when n is zero, too large, or leaves no local qubit.
	ErrInvalidQubitCount = errors.New("invalid qubit count")
	// ErrUnsupportedProcessCount is returned when the rank count is not a power of two.
	ErrUnsupportedProcessCount = errors.New("unsupported process count")
	// ErrInvalidPageQubits is returned for a negative page qubit count or one
	// that is not below the local qubit count. At least one nonpage qubit must
	// remain, so pages hold two or more amplitudes.
	ErrInvalidPageQubits = errors.New("invalid page qubit count")
	// ErrInvalidOnCacheQubits is returned when the on-cache buffer is larger than a page.
	ErrInvalidOnCacheQubits = errors.New("invalid on-cache qubit count")
)

// Config is the input of Compute.
type Config struct {
	NumQubits  int
	PageQubits int
	NumRanks   int

	// OnCacheQubits is the log2 size of the on-cache staging buffer.
	// 0 disables staging.
	OnCacheQubits int
}

// Layout is the partition of the permutated bit positions.
type Layout struct {
	NumQubits     int
	NumRanks      int
	RankQubits    int
	LocalQubits   int
	PageQubits    int
	NonpageQubits int
	OnCacheQubits int

	DataBlockSize uint64
	PageCount     uint64
	PageSize      uint64

	staging bool
}

// Compute validates cfg and derives the layout. It is a pure function.
func Compute(cfg Config) (Layout, error) {
	n := cfg.NumQubits
	if n <= 0 || n > qubit.MaxQubits {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidQubitCount, n)
	}
	if cfg.NumRanks <= 0 || cfg.NumRanks&(cfg.NumRanks-1) != 0 {
		return Layout{}, fmt.Errorf("%w: %d (must be a power of two)", ErrUnsupportedProcessCount, cfg.NumRanks)
	}

	rankQubits := bits.TrailingZeros(uint(cfg.NumRanks))
	local := n - rankQubits
	if local < 1 {
		return Layout{}, fmt.Errorf("%w: %d qubits cannot be spread over %d ranks", ErrInvalidQubitCount, n, cfg.NumRanks)
	}
	if cfg.PageQubits < 0 || cfg.PageQubits >= local {
		return Layout{}, fmt.Errorf("%w: %d (local qubits: %d)", ErrInvalidPageQubits, cfg.PageQubits, local)
	}

	nonpage := local - cfg.PageQubits
	l := Layout{
		NumQubits:     n,
		NumRanks:      cfg.NumRanks,
		RankQubits:    rankQubits,
		LocalQubits:   local,
		PageQubits:    cfg.PageQubits,
		NonpageQubits: nonpage,
		OnCacheQubits: local,
		DataBlockSize: uint64(1) << local,
		PageCount:     uint64(1) << cfg.PageQubits,
		PageSize:      uint64(1) << nonpage,
	}

	if cfg.OnCacheQubits != 0 {
		if cfg.OnCacheQubits < 1 || cfg.OnCacheQubits > nonpage {
			return Layout{}, fmt.Errorf("%w: %d (nonpage qubits: %d)", ErrInvalidOnCacheQubits, cfg.OnCacheQubits, nonpage)
		}
		l.OnCacheQubits = cfg.OnCacheQubits
		l.staging = true
	}

	return l, nil
}

// StagingEnabled reports whether page operations go through the on-cache buffer.
func (l Layout) StagingEnabled() bool { return l.staging }

// OnCacheSize is the number of amplitudes in the on-cache buffer (0 if staging is off).
func (l Layout) OnCacheSize() uint64 {
	if !l.staging {
		return 0
	}
	return uint64(1) << l.OnCacheQubits
}

// IsLocal reports whether p addresses memory owned by this rank.
func (l Layout) IsLocal(p qubit.Permutated) bool { return int(p) < l.LocalQubits }

// IsPage reports whether p selects among pages.
func (l Layout) IsPage(p qubit.Permutated) bool {
	return int(p) >= l.NonpageQubits && int(p) < l.LocalQubits
}

// IsOffCache reports whether p lies above the on-cache buffer.
func (l Layout) IsOffCache(p qubit.Permutated) bool { return int(p) >= l.OnCacheQubits }

// RankOf returns the rank owning the permutated global index.
func (l Layout) RankOf(globalIndex uint64) int { return int(globalIndex >> uint(l.LocalQubits)) }

// GlobalIndex joins a rank and a local index into a permutated global index.
func (l Layout) GlobalIndex(rank int, localIndex uint64) uint64 {
	return uint64(rank)<<uint(l.LocalQubits) | localIndex
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	return fmt.Sprintf("qubits=%d ranks=%d local=%d page=%d nonpage=%d on-cache=%d staging=%t",
		l.NumQubits, l.NumRanks, l.LocalQubits, l.PageQubits, l.NonpageQubits, l.OnCacheQubits, l.staging)
}
