package tcp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/internal/compress"
)

// Frame header layout (little endian):
//
//	[0]      kind
//	[1]      flags (codec of a compressed payload, 0 if raw)
//	[2:4]    reserved
//	[4:12]   sequence number
//	[12:16]  payload length (uncompressed)
//	[16:20]  wire length (0 if raw)
//	[20:24]  CRC32C of bytes [0:20] and the wire payload
const headerSize = 24

// maxPayload bounds the size announced by a peer.
const maxPayload = 1 << 31

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(hdr, wire []byte) uint32 {
	return crc32.Update(crc32.Checksum(hdr[:20], castagnoli), castagnoli, wire)
}

func writeFrame(w io.Writer, f comm.Frame, codec compress.Codec) error {
	wire, compressed, err := compress.Encode(codec, f.Payload)
	if err != nil {
		return fmt.Errorf("compress frame: %w", err)
	}

	var hdr [headerSize]byte
	hdr[0] = byte(f.Kind)
	binary.LittleEndian.PutUint64(hdr[4:], f.Seq)
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(f.Payload)))
	if compressed {
		hdr[1] = byte(codec)
		binary.LittleEndian.PutUint32(hdr[16:], uint32(len(wire)))
	}
	binary.LittleEndian.PutUint32(hdr[20:], checksum(hdr[:], wire))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(wire)
	return err
}

func readFrame(r io.Reader) (comm.Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return comm.Frame{}, err
	}

	size := binary.LittleEndian.Uint32(hdr[12:])
	wireSize := binary.LittleEndian.Uint32(hdr[16:])
	codec := compress.Codec(hdr[1])
	n := size
	if codec != compress.None {
		n = wireSize
	}
	if uint64(n) > maxPayload {
		return comm.Frame{}, fmt.Errorf("%w: frame of %d bytes", comm.ErrChecksum, n)
	}

	wire := make([]byte, n)
	if _, err := io.ReadFull(r, wire); err != nil {
		return comm.Frame{}, err
	}

	if checksum(hdr[:], wire) != binary.LittleEndian.Uint32(hdr[20:]) {
		return comm.Frame{}, comm.ErrChecksum
	}

	payload := wire
	if codec != compress.None {
		var err error
		payload, err = compress.Decode(codec, wire, int(size))
		if err != nil {
			return comm.Frame{}, fmt.Errorf("decompress frame: %w", err)
		}
	}

	return comm.Frame{
		Kind:    comm.Kind(hdr[0]),
		Seq:     binary.LittleEndian.Uint64(hdr[4:]),
		Payload: payload,
	}, nil
}
