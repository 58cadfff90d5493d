package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
)

// reconnectMinBackoff and reconnectMaxBackoff bound the client's
// exponential reconnect delay (spec §6: "a background thread that
// re-registers after reconnects").
const (
	reconnectMinBackoff = 1 * time.Second
	reconnectMaxBackoff = 30 * time.Second
)

// Client is the single reconnecting TCP connection a pytrain client
// process keeps open to a server (spec §6).
type Client struct {
	serverAddr string
	listenPort int
	id         uuid.UUID
	listener   *dispatch.Listener

	mu   sync.Mutex
	conn net.Conn
}

// NewClient builds a Client identified by a freshly generated random UUID,
// announcing listenPort in its REGISTER frames, feeding decoded frames
// into l.
func NewClient(serverAddr string, listenPort int, l *dispatch.Listener) *Client {
	return &Client{
		serverAddr: serverAddr,
		listenPort: listenPort,
		id:         uuid.New(),
		listener:   l,
	}
}

// Send writes frame to the current connection, if any.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	_, err := conn.Write(frame)
	return err
}

// Name satisfies commbuffer.Sink.
func (c *Client) Name() string { return "control-client" }

// Write satisfies commbuffer.Sink.
func (c *Client) Write(ctx context.Context, frame []byte) error { return c.Send(frame) }

// Run maintains the connection to the server, reconnecting with
// exponential backoff on every drop, until ctx is canceled.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectMinBackoff
	logger := log.WithContext(ctx).With().Str(log.FieldComponent, "control-client").Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.Dial("tcp", c.serverAddr)
		if err != nil {
			logger.Warn().Err(err).Str("server_addr", c.serverAddr).Msg("connect failed, retrying")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		backoff = reconnectMinBackoff

		if _, err := conn.Write(EncodeRegister(Register{Port: c.listenPort, ID: c.id, Version: Version})); err != nil {
			logger.Warn().Err(err).Msg("REGISTER send failed")
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			c.listener.Feed(dispatch.SourceTCP, pending)
			pending = nil
		}
	}
	for {
		b, err := r.ReadByte()
		if err != nil {
			flush()
			return
		}
		if b != syncPrefix {
			pending = append(pending, b)
			continue
		}
		flush()

		rest := make([]byte, 2)
		if _, err := io.ReadFull(r, rest); err != nil {
			return
		}
		header := []byte{b, rest[0], rest[1]}
		opcode := header[1]

		switch n := PayloadLen(opcode); {
		case n == 0:
			c.listener.Feed(dispatch.SourceTCP, header)
		case n > 0:
			// REGISTER/DISCONNECT payloads never arrive server->client;
			// drained here only to stay in frame sync if one ever does.
			if _, err := io.ReadFull(r, make([]byte, n)); err != nil {
				return
			}
		default:
			lenByte := make([]byte, 1)
			if _, err := io.ReadFull(r, lenByte); err != nil {
				return
			}
			body := make([]byte, lenByte[0])
			if _, err := io.ReadFull(r, body); err != nil {
				return
			}
		}
	}
}

// RunKeepAlive sends a KEEP_ALIVE frame every interval until ctx is
// canceled, refreshing this client's last-seen timestamp on the server
// (spec §6).
func (c *Client) RunKeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			local := ""
			c.mu.Lock()
			if c.conn != nil {
				local = c.conn.LocalAddr().String()
			}
			c.mu.Unlock()
			if local == "" {
				continue
			}
			host, _, _ := net.SplitHostPort(local)
			_ = c.Send(EncodeKeepAlive(fmt.Sprintf("%s:%d", host, c.listenPort)))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxBackoff {
		return reconnectMaxBackoff
	}
	return d
}
