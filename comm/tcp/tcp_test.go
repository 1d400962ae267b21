package tcp

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/internal/compress"
)

func mesh(t *testing.T, size int, optsFor func(rank int) []Option) ([]*Transport, []error) {
	t.Helper()

	lns := make([]net.Listener, size)
	addrs := make([]string, size)
	for i := range lns {
		ln, err := Listen("127.0.0.1:0")
		require.NoError(t, err)
		lns[i] = ln
		addrs[i] = ln.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts := make([]*Transport, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts[r], errs[r] = Connect(ctx, lns[r], r, addrs, optsFor(r)...)
		}()
	}
	wg.Wait()

	t.Cleanup(func() {
		for _, tr := range ts {
			if tr != nil {
				_ = tr.Close()
			}
		}
	})
	return ts, errs
}

func TestMesh_Collectives(t *testing.T) {
	session := uuid.New()
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			ts, errs := mesh(t, 3, func(int) []Option {
				return []Option{WithSession(session), WithCodec(codec), WithDialInterval(10 * time.Millisecond)}
			})
			for _, err := range errs {
				require.NoError(t, err)
			}

			sums := make([][]float64, 3)
			recvd := make([][]complex128, 3)
			runErrs := make([]error, 3)
			var wg sync.WaitGroup
			for r := 0; r < 3; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c := comm.New(ts[r])
					ctx := context.Background()

					v := []float64{float64(r + 1)}
					if err := c.AllReduce(ctx, v, comm.Sum); err != nil {
						runErrs[r] = err
						return
					}
					sums[r] = v

					// Ranks 0 and 2 exchange a sparse block; rank 1 exchanges with itself.
					peer := 2 - r
					send := make([]complex128, 512)
					send[r] = complex(float64(r), 1)
					recv := make([]complex128, 512)
					runErrs[r] = c.Exchange(ctx, peer, send, recv)
					recvd[r] = recv
				}()
			}
			wg.Wait()

			for r := 0; r < 3; r++ {
				require.NoError(t, runErrs[r])
				assert.Equal(t, []float64{6}, sums[r])
				peer := 2 - r
				assert.Equal(t, complex(float64(peer), 1), recvd[r][peer])
			}
		})
	}
}

func TestMesh_SessionMismatch(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	_, errs := mesh(t, 2, func(r int) []Option {
		if r == 0 {
			return []Option{WithSession(a)}
		}
		return []Option{WithSession(b)}
	})

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	assert.Positive(t, failed)
	assert.ErrorIs(t, errs[0], ErrHandshake)
}

func TestFrame_Checksum(t *testing.T) {
	var buf bytes.Buffer
	f := comm.Frame{Kind: comm.KindBroadcast, Seq: 9, Payload: []byte("amplitudes")}
	require.NoError(t, writeFrame(&buf, f, compress.None))

	got, err := readFrame(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, f, got)

	raw := buf.Bytes()
	raw[headerSize+2] ^= 0xff
	_, err = readFrame(bytes.NewReader(raw))
	assert.ErrorIs(t, err, comm.ErrChecksum)
}

func TestFrame_Compressed(t *testing.T) {
	var buf bytes.Buffer
	f := comm.Frame{Kind: comm.KindExchange, Seq: 1, Payload: make([]byte, 8192)}
	require.NoError(t, writeFrame(&buf, f, compress.ZSTD))
	assert.Less(t, buf.Len(), 8192)

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("zstd")
	require.NoError(t, err)
	assert.Equal(t, CodecZSTD, c)

	_, err = ParseCodec("brotli")
	assert.ErrorIs(t, err, compress.ErrUnknownCodec)
}
