//go:build !unix

package mmap

func mapAnon(int) ([]byte, error) { return nil, ErrUnsupported }

func mapShared(File, int) ([]byte, error) { return nil, ErrUnsupported }

func munmap([]byte) error { return nil }

func advise([]byte, Hint) error { return nil }
