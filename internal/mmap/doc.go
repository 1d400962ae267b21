// Package mmap maps page arenas for amplitude storage outside the Go heap.
//
// A Pages value is one contiguous mapping cut into equally sized pages. It is
// either private anonymous memory (Anonymous) or a shared mapping of a spill
// file (Shared), in which case the kernel may write amplitudes back to disk
// when the state exceeds physical memory.
//
//	p, err := mmap.Anonymous(pageBytes, count)
//	if err != nil { ... }
//	defer p.Close()
//
//	buf := p.Page(3)
//
// Unix platforms use mmap(2) and madvise(2). Elsewhere both
// constructors return ErrUnsupported.
//
// Close is idempotent. Callers must not touch a page slice after Close.
package mmap
