//go:build unix

package mmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

const prot = unix.PROT_READ | unix.PROT_WRITE

func mapAnon(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, prot, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func mapShared(f File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
}

func munmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

var advice = map[Hint]int{
	HintNormal:     unix.MADV_NORMAL,
	HintSequential: unix.MADV_SEQUENTIAL,
	HintRandom:     unix.MADV_RANDOM,
	HintDontNeed:   unix.MADV_DONTNEED,
}

func advise(data []byte, h Hint) error {
	a, ok := advice[h]
	if !ok {
		a = unix.MADV_NORMAL
	}
	// A hint the kernel rejects only costs performance.
	if err := unix.Madvise(data, a); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}
