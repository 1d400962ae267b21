package fs

import "os"

// File is an open spill file.
type File interface {
	Truncate(size int64) error
	Fd() uintptr
	Close() error
}

// FileSystem creates and removes spill files.
type FileSystem interface {
	// Create opens a new file for reading and writing. It fails if name exists.
	Create(name string) (File, error)
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
}

// OS implements FileSystem with the os package.
type OS struct{}

// Create implements FileSystem. The file is readable only by its owner.
func (OS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
}

// Remove implements FileSystem.
func (OS) Remove(name string) error { return os.Remove(name) }

// MkdirAll implements FileSystem.
func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// Default is used when no FileSystem is configured.
var Default FileSystem = OS{}
