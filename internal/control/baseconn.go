package control

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/pytrainerr"
)

// BaseConn is the server's TCP connection to the Base 3's PDI port
// (spec §5.2). It implements commbuffer.Sink for outbound writes and
// runs its own reconnect loop, feeding inbound bytes to a
// dispatch.Listener as SourceTCP.
type BaseConn struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewBaseConn builds a BaseConn that will dial addr ("host:port") lazily
// from Run.
func NewBaseConn(addr string) *BaseConn {
	return &BaseConn{addr: addr}
}

// Name satisfies commbuffer.Sink.
func (b *BaseConn) Name() string { return "base" }

// Write satisfies commbuffer.Sink. Returns ErrBrokenLink if currently
// disconnected, so the comm buffer's send loop logs and moves on rather
// than blocking.
func (b *BaseConn) Write(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return pytrainerr.ErrBrokenLink
	}
	_, err := conn.Write(frame)
	return err
}

// Run dials addr and feeds l with everything read from it, reconnecting
// with exponential backoff whenever the link drops (spec §6 BrokenLink),
// until ctx is canceled.
func (b *BaseConn) Run(ctx context.Context, l *dispatch.Listener) {
	backoff := reconnectMinBackoff
	logger := log.WithContext(ctx).With().Str(log.FieldComponent, "base-conn").Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.Dial("tcp", b.addr)
		if err != nil {
			logger.Warn().Err(err).Str("base_addr", b.addr).Msg("connect failed, retrying")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		backoff = reconnectMinBackoff
		logger.Info().Str("base_addr", b.addr).Msg("connected to base")

		b.readLoop(ctx, conn, l)

		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		_ = conn.Close()
		logger.Warn().Msg("base link broken, reconnecting")

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (b *BaseConn) readLoop(ctx context.Context, conn net.Conn, l *dispatch.Listener) {
	buf := make([]byte, 1024)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.Feed(dispatch.SourceTCP, chunk)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			return
		}
	}
}
