// Package compress implements the optional payload compression of inter-rank frames.
package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec defines the compression algorithm used.
type Codec uint8

const (
	// None sends payloads as they are.
	None Codec = 0
	// LZ4 uses LZ4 block compression (fast, modest ratio).
	LZ4 Codec = 1
	// ZSTD uses zstd block compression (better ratio, slower).
	ZSTD Codec = 2
)

var (
	// ErrUnknownCodec is returned for codec identifiers outside None, LZ4 and ZSTD.
	ErrUnknownCodec = errors.New("compress: unknown codec")
	// ErrSizeMismatch is returned when a block does not decode to its announced size.
	ErrSizeMismatch = errors.New("compress: decompressed size mismatch")
)

// String implements fmt.Stringer.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses "none", "lz4" or "zstd".
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// maxRatio is the largest compressed/uncompressed ratio worth sending.
const maxRatio = 0.9

// Encode compresses data with c. ok is false when compression does not pay off;
// the caller then sends data unchanged.
func Encode(c Codec, data []byte) (out []byte, ok bool, err error) {
	if c == None || len(data) == 0 {
		return data, false, nil
	}

	var compressed []byte
	switch c {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, false, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, false, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(c))
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*maxRatio {
		return data, false, nil
	}
	return compressed, true, nil
}

// Decode decompresses a block produced by Encode into a buffer of size bytes.
func Decode(c Codec, data []byte, size int) ([]byte, error) {
	result := make([]byte, size)

	switch c {
	case LZ4:
		n, err := lz4.UncompressBlock(data, result)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, ErrSizeMismatch
		}
		return result, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(data, result[:0])
		if err != nil {
			return nil, err
		}
		if len(decoded) != size {
			return nil, ErrSizeMismatch
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(c))
	}
}
