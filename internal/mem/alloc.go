package mem

import (
	"unsafe"
)

// Alignment is the byte alignment of every buffer handed out by this package (64 bytes).
const Alignment = 64

// complexSize is the size of one complex128 in bytes.
const complexSize = 16

// AllocAligned allocates a byte slice of the given size with 64-byte alignment.
// The returned slice is guaranteed to start at a memory address divisible by 64.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	totalSize := size + Alignment
	buf := make([]byte, totalSize)

	ptr := unsafe.Pointer(&buf[0]) //nolint:gosec // unsafe is required for memory alignment
	addr := uintptr(ptr)
	offset := (Alignment - (addr & (Alignment - 1))) & (Alignment - 1)

	return buf[offset : offset+uintptr(size)]
}

// AllocAlignedComplex128 allocates a zeroed complex128 slice of n amplitudes with
// 64-byte alignment.
func AllocAlignedComplex128(n int) []complex128 {
	if n <= 0 {
		return nil
	}
	return Complex128s(AllocAligned(n * complexSize))
}

// Complex128s reinterprets b as complex128 values. len(b) must be a multiple of 16
// and b must be at least 8-byte aligned (mmap regions and AllocAligned buffers are).
func Complex128s(b []byte) []complex128 {
	n := len(b) / complexSize
	if n == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&b[0])             //nolint:gosec // unsafe is required to view mapped memory
	return unsafe.Slice((*complex128)(ptr), n) //nolint:gosec // unsafe is required to view mapped memory
}

// Complex128Bytes returns the number of bytes needed for n amplitudes.
func Complex128Bytes(n int) int { return n * complexSize }
