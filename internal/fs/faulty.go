package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by a failing call registered without its own error.
var ErrInjected = errors.New("injected fault")

// Op names a call Faulty can fail.
type Op string

const (
	OpCreate   Op = "create"
	OpTruncate Op = "truncate"
	OpClose    Op = "close"
	OpRemove   Op = "remove"
)

type fault struct {
	op      Op
	pattern string
	err     error
}

// Faulty wraps a FileSystem and fails chosen calls on files whose name
// contains a pattern.
type Faulty struct {
	fs FileSystem

	mu      sync.Mutex
	faults  []fault
	created []string
	removed []string
}

// NewFaulty wraps fsys, or Default if fsys is nil.
func NewFaulty(fsys FileSystem) *Faulty {
	if fsys == nil {
		fsys = Default
	}
	return &Faulty{fs: fsys}
}

// Fail makes op fail with err on every file whose name contains pattern.
// A nil err fails with ErrInjected.
func (f *Faulty) Fail(op Op, pattern string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{op: op, pattern: pattern, err: err})
}

// Created returns the names of the files created so far.
func (f *Faulty) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// Removed returns the names of the files removed so far.
func (f *Faulty) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *Faulty) check(op Op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ft := range f.faults {
		if ft.op == op && strings.Contains(name, ft.pattern) {
			return &os.PathError{Op: string(op), Path: name, Err: ft.err}
		}
	}
	return nil
}

// Create implements FileSystem.
func (f *Faulty) Create(name string) (File, error) {
	if err := f.check(OpCreate, name); err != nil {
		return nil, err
	}
	file, err := f.fs.Create(name)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.created = append(f.created, name)
	f.mu.Unlock()
	return &faultyFile{File: file, name: name, owner: f}, nil
}

// Remove implements FileSystem.
func (f *Faulty) Remove(name string) error {
	if err := f.check(OpRemove, name); err != nil {
		return err
	}
	if err := f.fs.Remove(name); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	return nil
}

// MkdirAll implements FileSystem.
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	name  string
	owner *Faulty
}

func (ff *faultyFile) Truncate(size int64) error {
	if err := ff.owner.check(OpTruncate, ff.name); err != nil {
		return err
	}
	return ff.File.Truncate(size)
}

// Close always closes the underlying file, even when the call is made to fail.
func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ferr := ff.owner.check(OpClose, ff.name); ferr != nil {
		return ferr
	}
	return err
}
