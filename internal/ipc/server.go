package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"snipit/internal/logging"
)

// Handler processes control messages that the server does not answer itself.
type Handler interface {
	// HandleMessage processes a message and returns a response
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// Server listens on a Unix socket and answers one request per message.
type Server struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    Handler
	logger     *logging.Logger
	conns      map[net.Conn]struct{}
	maxConns   int
	idle       time.Duration
	verifyPeer func(net.Conn) (bool, error)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string
	IdleTimeout    time.Duration
	MaxConnections int
	Logger         *logging.Logger
}

// DefaultServerConfig returns defaults for a socket at path.
func DefaultServerConfig(path string) ServerConfig {
	return ServerConfig{
		SocketPath:     path,
		IdleTimeout:    30 * time.Second,
		MaxConnections: 16,
	}
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("ipc: socket path is empty")
	}
	if handler == nil {
		return nil, errors.New("ipc: handler is nil")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: cfg.SocketPath,
		handler:    handler,
		logger:     logger.WithComponent("ipc"),
		conns:      make(map[net.Conn]struct{}),
		maxConns:   cfg.MaxConnections,
		idle:       cfg.IdleTimeout,
		verifyPeer: VerifyPeerIsCurrentUser,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins listening for connections
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if IsSocketListening(s.socketPath) {
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := CleanupSocket(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	// Owner only.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop closes the listener and all connections, then removes the socket file.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("control connections did not close in time")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		ok, err := s.verifyPeer(conn)
		if err != nil || !ok {
			s.logger.Warn("rejected control connection from another user", "error", err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.maxConns {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.idle))
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("control connection closed", "error", err)
			}
			return
		}

		response, err := s.processMessage(msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response == nil {
			continue
		}
		response.Header.RequestID = msg.Header.RequestID

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := response.Write(conn); err != nil {
			return
		}
	}
}

func (s *Server) processMessage(msg *Message) (*Message, error) {
	reqID := s.logger.NewRequestID()
	ctx := logging.ContextWithRequestID(s.ctx, reqID)
	s.logger.WithRequestID(reqID).Debug("control request", "type", msg.Header.Type.String())

	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	}
	return s.handler.HandleMessage(ctx, msg)
}
