package mem

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAligned(t *testing.T) {
	sizes := []int{1, 10, 63, 64, 65, 100, 1024}

	for _, size := range sizes {
		buf := AllocAligned(size)
		assert.Len(t, buf, size)

		addr := uintptr(unsafe.Pointer(&buf[0]))
		assert.Equal(t, uintptr(0), addr%Alignment, "Address %d should be aligned to %d for size %d", addr, Alignment, size)
	}

	assert.Nil(t, AllocAligned(0))
	assert.Nil(t, AllocAligned(-1))
}

func TestAllocAlignedComplex128(t *testing.T) {
	sizes := []int{1, 2, 4, 5, 16, 1024}

	for _, size := range sizes {
		buf := AllocAlignedComplex128(size)
		require.Len(t, buf, size)

		addr := uintptr(unsafe.Pointer(&buf[0]))
		assert.Equal(t, uintptr(0), addr%Alignment)
		for _, v := range buf {
			assert.Equal(t, complex128(0), v)
		}
	}

	assert.Nil(t, AllocAlignedComplex128(0))
	assert.Nil(t, AllocAlignedComplex128(-3))
}

func TestComplex128s(t *testing.T) {
	raw := AllocAligned(Complex128Bytes(4))
	view := Complex128s(raw)
	require.Len(t, view, 4)

	view[2] = complex(1.5, -2)
	again := Complex128s(raw)
	assert.Equal(t, complex(1.5, -2), again[2])

	assert.Nil(t, Complex128s(raw[:8]))
}

func BenchmarkAllocAlignedComplex128(b *testing.B) {
	sizes := []int{64, 256, 1024, 4096}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = AllocAlignedComplex128(size)
			}
		})
	}
}
