// Package tcp connects ranks in a full TCP mesh.
//
// Rank r dials every lower rank and accepts a connection from every higher one.
// The dialing side opens with a hello carrying its rank and the session id; the
// accepting side answers with its own. Ranks started for a different session are
// rejected. Frames are CRC32C protected and can be compressed with lz4 or zstd.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/internal/compress"
)

// ErrHandshake is returned when a peer sends an invalid or foreign hello.
var ErrHandshake = errors.New("tcp: handshake failed")

var magic = [4]byte{'K', 'E', 'T', 'G'}

const helloSize = 4 + 4 + 16

// Codec selects payload compression.
type Codec = compress.Codec

const (
	CodecNone = compress.None
	CodecLZ4  = compress.LZ4
	CodecZSTD = compress.ZSTD
)

// ParseCodec parses "none", "lz4" or "zstd".
func ParseCodec(s string) (Codec, error) { return compress.ParseCodec(s) }

// Option configures Connect.
type Option func(*options)

type options struct {
	codec        compress.Codec
	session      uuid.UUID
	dialInterval time.Duration
	depth        int
	logger       *slog.Logger
}

// WithCodec compresses outgoing payloads. Receivers decode any codec.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithSession sets the session id every rank must agree on. uuid.Nil accepts any peer.
func WithSession(id uuid.UUID) Option {
	return func(o *options) { o.session = id }
}

// WithDialInterval sets the pause between attempts to reach a peer that is not up yet.
func WithDialInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type peer struct {
	conn   net.Conn
	wmu    sync.Mutex
	w      *bufio.Writer
	frames chan comm.Frame
	err    error // set before frames is closed
}

// Transport is one rank's endpoint of a TCP mesh.
type Transport struct {
	rank   int
	size   int
	opts   options
	peers  []*peer
	ln     net.Listener
	closed chan struct{}
	once   sync.Once
}

var _ comm.Transport = (*Transport)(nil)

// Listen opens the listener a rank announces to its peers.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Connect builds the mesh for rank, whose listener is ln; addrs[i] is the
// address of rank i. Connect takes ownership of ln. It blocks until every
// peer is connected or ctx ends.
func Connect(ctx context.Context, ln net.Listener, rank int, addrs []string, opts ...Option) (*Transport, error) {
	o := options{
		dialInterval: 50 * time.Millisecond,
		depth:        16,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}

	size := len(addrs)
	if rank < 0 || rank >= size {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: %d (size %d)", comm.ErrInvalidRank, rank, size)
	}

	t := &Transport{
		rank:   rank,
		size:   size,
		opts:   o,
		peers:  make([]*peer, size),
		ln:     ln,
		closed: make(chan struct{}),
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var mu sync.Mutex
	attach := func(r int, conn net.Conn) error {
		mu.Lock()
		defer mu.Unlock()
		if t.peers[r] != nil {
			return fmt.Errorf("%w: duplicate connection from rank %d", ErrHandshake, r)
		}
		t.peers[r] = &peer{conn: conn, w: bufio.NewWriterSize(conn, 64<<10), frames: make(chan comm.Frame, o.depth)}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i := rank + 1; i < size; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			r, err := t.acceptHello(conn)
			if err != nil {
				_ = conn.Close()
				return err
			}
			if err := attach(r, conn); err != nil {
				_ = conn.Close()
				return err
			}
		}
		return nil
	})

	for r := 0; r < rank; r++ {
		g.Go(func() error {
			conn, err := t.dial(gctx, addrs[r])
			if err != nil {
				return fmt.Errorf("dial rank %d: %w", r, err)
			}
			if err := t.sendHello(conn, r); err != nil {
				_ = conn.Close()
				return err
			}
			return attach(r, conn)
		})
	}

	if err := g.Wait(); err != nil {
		t.closeConns()
		_ = ln.Close()
		return nil, err
	}

	for r, p := range t.peers {
		if p != nil {
			go t.readLoop(r, p)
		}
	}
	o.logger.Debug("tcp mesh connected", "rank", rank, "size", size, "session", o.session)
	return t, nil
}

func (t *Transport) dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(t.opts.dialInterval):
		}
	}
}

func (t *Transport) hello() []byte {
	b := make([]byte, helloSize)
	copy(b, magic[:])
	binary.LittleEndian.PutUint32(b[4:], uint32(t.rank))
	copy(b[8:], t.opts.session[:])
	return b
}

func (t *Transport) readHello(conn net.Conn) (int, error) {
	b := make([]byte, helloSize)
	if _, err := io.ReadFull(conn, b); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if [4]byte(b[:4]) != magic {
		return 0, fmt.Errorf("%w: bad magic", ErrHandshake)
	}
	r := int(binary.LittleEndian.Uint32(b[4:]))
	session, _ := uuid.FromBytes(b[8:])
	if t.opts.session != uuid.Nil && session != t.opts.session {
		return 0, fmt.Errorf("%w: rank %d belongs to session %s", ErrHandshake, r, session)
	}
	return r, nil
}

// acceptHello reads the hello of a dialing rank and answers it.
func (t *Transport) acceptHello(conn net.Conn) (int, error) {
	r, err := t.readHello(conn)
	if err != nil {
		return 0, err
	}
	if r <= t.rank || r >= t.size {
		return 0, fmt.Errorf("%w: unexpected rank %d", ErrHandshake, r)
	}
	if _, err := conn.Write(t.hello()); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return r, nil
}

// sendHello opens the handshake towards rank want and checks the answer.
func (t *Transport) sendHello(conn net.Conn, want int) error {
	if _, err := conn.Write(t.hello()); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	r, err := t.readHello(conn)
	if err != nil {
		return err
	}
	if r != want {
		return fmt.Errorf("%w: dialed rank %d, answered by %d", ErrHandshake, want, r)
	}
	return nil
}

func (t *Transport) readLoop(r int, p *peer) {
	br := bufio.NewReaderSize(p.conn, 64<<10)
	for {
		f, err := readFrame(br)
		if err != nil {
			select {
			case <-t.closed:
				err = comm.ErrClosed
			default:
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					err = fmt.Errorf("peer %d: %w", r, comm.ErrClosed)
				}
			}
			p.err = err
			close(p.frames)
			return
		}
		select {
		case p.frames <- f:
		case <-t.closed:
			p.err = comm.ErrClosed
			close(p.frames)
			return
		}
	}
}

// Rank implements comm.Transport.
func (t *Transport) Rank() int { return t.rank }

// Size implements comm.Transport.
func (t *Transport) Size() int { return t.size }

func (t *Transport) peer(r int) (*peer, error) {
	if r < 0 || r >= t.size || r == t.rank {
		return nil, fmt.Errorf("%w: %d", comm.ErrInvalidRank, r)
	}
	select {
	case <-t.closed:
		return nil, comm.ErrClosed
	default:
	}
	return t.peers[r], nil
}

// Send implements comm.Transport.
func (t *Transport) Send(ctx context.Context, r int, f comm.Frame) error {
	p, err := t.peer(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(d)
		defer func() { _ = p.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := writeFrame(p.w, f, t.opts.codec); err != nil {
		return err
	}
	return p.w.Flush()
}

// Recv implements comm.Transport.
func (t *Transport) Recv(ctx context.Context, r int) (comm.Frame, error) {
	p, err := t.peer(r)
	if err != nil {
		return comm.Frame{}, err
	}
	select {
	case f, ok := <-p.frames:
		if !ok {
			return comm.Frame{}, p.err
		}
		return f, nil
	case <-t.closed:
		return comm.Frame{}, comm.ErrClosed
	case <-ctx.Done():
		return comm.Frame{}, ctx.Err()
	}
}

func (t *Transport) closeConns() {
	for _, p := range t.peers {
		if p != nil {
			_ = p.conn.Close()
		}
	}
}

// Close implements comm.Transport. It is idempotent.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		t.closeConns()
		err = t.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
