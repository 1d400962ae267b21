package mmap

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mmap: pages are unmapped")
	// ErrInvalidSize is returned for a non-positive page size or count.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrUnsupported is returned on platforms without mmap(2).
	ErrUnsupported = errors.New("mmap: unsupported platform")
)

// Hint tells the kernel how the pages are about to be touched.
type Hint int

const (
	// HintNormal removes earlier hints.
	HintNormal Hint = iota
	// HintSequential suits page-staging, which walks a page front to back.
	HintSequential
	// HintRandom suits gates whose operands stride across the whole arena.
	HintRandom
	// HintDontNeed lets the kernel drop the contents. Only use it on pages
	// whose contents are no longer needed.
	HintDontNeed
)

// File is the part of an open file Shared needs. *os.File satisfies it.
type File interface {
	Fd() uintptr
}

// Pages is a mapping of count pages of pageBytes each.
type Pages struct {
	data      []byte
	pageBytes int
	count     int
	closed    atomic.Bool
}

func check(pageBytes, count int) (int, error) {
	if pageBytes <= 0 || count <= 0 {
		return 0, fmt.Errorf("%w: %d pages of %d bytes", ErrInvalidSize, count, pageBytes)
	}
	return pageBytes * count, nil
}

// Anonymous maps zeroed private pages.
func Anonymous(pageBytes, count int) (*Pages, error) {
	total, err := check(pageBytes, count)
	if err != nil {
		return nil, err
	}
	data, err := mapAnon(total)
	if err != nil {
		return nil, err
	}
	return &Pages{data: data, pageBytes: pageBytes, count: count}, nil
}

// Shared maps the first pageBytes*count bytes of f so stores reach the file.
// The file must already be that long. f may be closed once Shared returns.
func Shared(f File, pageBytes, count int) (*Pages, error) {
	total, err := check(pageBytes, count)
	if err != nil {
		return nil, err
	}
	data, err := mapShared(f, total)
	if err != nil {
		return nil, err
	}
	return &Pages{data: data, pageBytes: pageBytes, count: count}, nil
}

// Count returns the number of pages.
func (p *Pages) Count() int { return p.count }

// PageBytes returns the size of one page.
func (p *Pages) PageBytes() int { return p.pageBytes }

// Page returns page i, or nil once the mapping is closed. It panics if i is
// out of range.
func (p *Pages) Page(i int) []byte {
	if i < 0 || i >= p.count {
		panic(fmt.Sprintf("mmap: page %d out of range [0, %d)", i, p.count))
	}
	if p.closed.Load() {
		return nil
	}
	off := i * p.pageBytes
	return p.data[off : off+p.pageBytes : off+p.pageBytes]
}

// Advise applies h to the whole mapping.
func (p *Pages) Advise(h Hint) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return advise(p.data, h)
}

// Close unmaps the pages. It is idempotent.
func (p *Pages) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	data := p.data
	p.data = nil
	return munmap(data)
}
