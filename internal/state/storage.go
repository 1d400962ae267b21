package state

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hupe1980/ketgo/internal/fs"
	"github.com/hupe1980/ketgo/internal/mem"
	"github.com/hupe1980/ketgo/internal/mmap"
)

// Arena is a set of equally sized page slots handed out by a Storage.
type Arena struct {
	Slots   [][]Amplitude
	release func() error
}

// Close releases the memory behind the slots. The slots must not be used afterwards.
func (a *Arena) Close() error {
	if a.release == nil {
		return nil
	}
	err := a.release()
	a.release = nil
	a.Slots = nil
	return err
}

// Storage allocates zeroed page slots for one rank.
type Storage interface {
	// Name identifies the backend in logs.
	Name() string
	// Allocate returns count zeroed slots of size amplitudes each.
	Allocate(rank, count int, size uint64) (*Arena, error)
}

// Heap keeps pages on the Go heap, 64-byte aligned.
type Heap struct{}

// Name implements Storage.
func (Heap) Name() string { return "heap" }

// Allocate implements Storage.
func (Heap) Allocate(_, count int, size uint64) (*Arena, error) {
	slots := make([][]Amplitude, count)
	for i := range slots {
		slots[i] = mem.AllocAlignedComplex128(int(size))
	}
	return &Arena{Slots: slots}, nil
}

// Anonymous keeps pages in one private anonymous mapping outside the Go heap.
type Anonymous struct{}

// Name implements Storage.
func (Anonymous) Name() string { return "anonymous" }

// Allocate implements Storage.
func (Anonymous) Allocate(_, count int, size uint64) (*Arena, error) {
	m, err := mmap.Anonymous(mem.Complex128Bytes(int(size)), count)
	if err != nil {
		return nil, fmt.Errorf("map anonymous pages: %w", err)
	}
	return &Arena{Slots: carve(m), release: m.Close}, nil
}

// File keeps pages in a shared mapping of a spill file under Dir, one file per
// rank. The file is removed when the arena is closed.
type File struct {
	Dir string
	FS  fs.FileSystem // nil selects fs.Default
}

// Name implements Storage.
func (f File) Name() string { return "file" }

// Allocate implements Storage.
func (f File) Allocate(rank, count int, size uint64) (*Arena, error) {
	fsys := f.FS
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}

	path := filepath.Join(f.Dir, fmt.Sprintf("rank-%d-%s.pages", rank, uuid.NewString()))
	file, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}

	pageBytes := mem.Complex128Bytes(int(size))
	total := pageBytes * count

	cleanup := func(err error) error {
		return errors.Join(err, file.Close(), fsys.Remove(path))
	}

	if err := file.Truncate(int64(total)); err != nil {
		return nil, cleanup(fmt.Errorf("size spill file: %w", err))
	}
	m, err := mmap.Shared(file, pageBytes, count)
	if err != nil {
		return nil, cleanup(fmt.Errorf("map spill file: %w", err))
	}
	if err := file.Close(); err != nil {
		return nil, errors.Join(fmt.Errorf("close spill file: %w", err), m.Close(), fsys.Remove(path))
	}
	_ = m.Advise(mmap.HintSequential)

	return &Arena{
		Slots: carve(m),
		release: func() error {
			return errors.Join(m.Close(), fsys.Remove(path))
		},
	}, nil
}

func carve(m *mmap.Pages) [][]Amplitude {
	slots := make([][]Amplitude, m.Count())
	for i := range slots {
		slots[i] = mem.Complex128s(m.Page(i))
	}
	return slots
}
