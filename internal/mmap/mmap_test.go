//go:build unix

package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	p, err := Anonymous(4096, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Count())
	assert.Equal(t, 4096, p.PageBytes())

	for i := 0; i < p.Count(); i++ {
		page := p.Page(i)
		require.Len(t, page, 4096)
		assert.Equal(t, 4096, cap(page))
		assert.Zero(t, page[0])
		page[0] = byte(i + 1)
	}
	assert.Equal(t, byte(2), p.Page(1)[0])

	// Pages do not overlap.
	p.Page(0)[4095] = 9
	assert.Zero(t, p.Page(1)[1])

	assert.NoError(t, p.Advise(HintRandom))
	assert.Panics(t, func() { p.Page(3) })

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Nil(t, p.Page(0))
	assert.ErrorIs(t, p.Advise(HintNormal), ErrClosed)
}

func TestAnonymous_InvalidSize(t *testing.T) {
	_, err := Anonymous(0, 4)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = Anonymous(4096, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank-0.pages")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(2*4096))

	p, err := Shared(f, 4096, 2)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.NoError(t, p.Advise(HintSequential))

	copy(p.Page(1)[16:], "amplitude")
	require.NoError(t, p.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "amplitude", string(raw[4096+16:4096+25]))
}

func TestAdvise(t *testing.T) {
	p, err := Anonymous(os.Getpagesize(), 2)
	require.NoError(t, err)
	defer p.Close()

	for _, h := range []Hint{HintNormal, HintSequential, HintRandom, HintDontNeed, Hint(42)} {
		assert.NoError(t, p.Advise(h))
	}
}
