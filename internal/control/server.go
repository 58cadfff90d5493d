package control

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// Server accepts client connections on the control-plane TCP port,
// tracks each as a session, re-queues every command a client sends into
// the shared dispatcher, and forwards every dispatched CommandRequest
// back out to every connected client, the sender included (spec §6).
type Server struct {
	listen   net.Listener
	listener *dispatch.Listener
	sessions commbuffer.SessionBackend

	mu      sync.Mutex
	clients map[string]net.Conn

	sub *dispatch.Subscription
}

// NewServer binds addr and wires l (the shared dispatch.Listener whose
// decoded frames feed the store/dispatcher pipeline) and sessions (the
// client session table) together.
func NewServer(addr string, l *dispatch.Listener, d *dispatch.Dispatcher, sessions commbuffer.SessionBackend) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listen:   ln,
		listener: l,
		sessions: sessions,
		clients:  make(map[string]net.Conn),
	}
	s.sub = d.SubscribeAny(func(ctx context.Context, req *request.CommandRequest) {
		s.broadcast(ctx, req)
	})
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.listen.Addr() }

// Run accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.listen.Close()
	}()
	logger := log.WithContext(ctx).With().Str(log.FieldComponent, "control-server").Logger()
	for {
		conn, err := s.listen.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.sub.Unsubscribe()
				return
			default:
				logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) addKey(conn net.Conn) string { return conn.RemoteAddr().String() }

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	key := s.addKey(conn)
	s.mu.Lock()
	s.clients[key] = conn
	s.mu.Unlock()

	logger := log.WithContext(ctx).With().Str(log.FieldClientIP, key).Logger()
	logger.Info().Msg("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, key)
		s.mu.Unlock()
		_ = conn.Close()
		logger.Info().Msg("client disconnected")
	}()

	r := bufio.NewReader(conn)
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			s.listener.Feed(dispatch.SourceTCP, pending)
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
			s.listener.Feed(dispatch.SourceTCP, header)
		case n > 0:
			payload := make([]byte, n)
			if _, err := io.ReadFull(r, payload); err != nil {
				return
			}
			s.handleControl(ctx, conn, opcode, payload)
		default:
			lenByte := make([]byte, 1)
			if _, err := io.ReadFull(r, lenByte); err != nil {
				return
			}
			body := make([]byte, lenByte[0])
			if _, err := io.ReadFull(r, body); err != nil {
				return
			}
			s.handleControl(ctx, conn, opcode, append(lenByte, body...))
		}
	}
}

func (s *Server) handleControl(ctx context.Context, conn net.Conn, opcode byte, payload []byte) {
	logger := log.WithContext(ctx)
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	switch opcode {
	case opRegister:
		reg, err := DecodeRegister(payload)
		if err != nil {
			logger.Warn().Err(err).Msg("malformed REGISTER")
			return
		}
		evicted := s.sessions.Register(host, reg.Port, reg.ID, reg.Version)
		logger.Info().Str(log.FieldClientIP, host).Int(log.FieldClientPort, reg.Port).
			Str(log.FieldClientUUID, reg.ID.String()).Bool("evicted_prior", evicted).Msg("client registered")
	case opDisconnect:
		dc, err := DecodeDisconnect(payload)
		if err != nil {
			logger.Warn().Err(err).Msg("malformed DISCONNECT")
			return
		}
		s.sessions.Disconnect(host, dc.Port)
	case opKeepAlive:
		addr, err := DecodeAddrPayload(payload)
		if err != nil {
			logger.Debug().Err(err).Msg("malformed KEEP_ALIVE")
			return
		}
		if _, portStr, ok := splitAddr(addr.Addr); ok {
			if port, perr := strconv.Atoi(portStr); perr == nil {
				s.sessions.Touch(host, port)
			}
		}
	case opResync:
		logger.Info().Str(log.FieldClientIP, host).Msg("client requested resync")
	}
}

func splitAddr(addr string) (host, port string, ok bool) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", false
	}
	return h, p, true
}

// broadcast re-serializes req and writes it to every connected client,
// per spec §6: commands received from any source are re-broadcast to
// every client as state updates.
func (s *Server) broadcast(ctx context.Context, req *request.CommandRequest) {
	frame, err := req.AsBytes()
	if err != nil {
		return
	}
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	logger := log.WithContext(ctx)
	for _, c := range conns {
		if _, err := c.Write(frame); err != nil {
			logger.Debug().Err(err).Str(log.FieldClientIP, c.RemoteAddr().String()).Msg("broadcast write failed")
		}
	}
}

// Close stops accepting connections and closes every live client socket.
func (s *Server) Close() error {
	err := s.listen.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		_ = c.Close()
	}
	return err
}
