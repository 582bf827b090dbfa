package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a request and returns its response.
	HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, peer *Peer, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
	return f(ctx, peer, msg)
}

// Peer is a connected control client.
type Peer struct {
	ID          string
	UID         int
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex
}

// ErrAddressInUse is returned by Start when another daemon already serves
// the socket.
var ErrAddressInUse = errors.New("ipc: socket already in use by a running daemon")

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string
	Version        string
	Permissions    os.FileMode
	ReadTimeout    time.Duration // idle time before a connection is dropped
	WriteTimeout   time.Duration
	MaxConnections int
}

// DefaultServerConfig returns the server defaults for socketPath.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:     socketPath,
		Version:        "dev",
		Permissions:    0600,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxConnections: 10,
	}
}

// Server accepts control connections on a Unix domain socket.
type Server struct {
	mu       sync.RWMutex
	listener net.Listener
	cfg      ServerConfig
	handler  Handler
	peers    map[string]*Peer
	logger   *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	nextID  atomic.Uint64
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("ipc: socket path is required")
	}
	if handler == nil {
		return nil, errors.New("ipc: handler is required")
	}
	def := DefaultServerConfig(cfg.SocketPath)
	if cfg.Permissions == 0 {
		cfg.Permissions = def.Permissions
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		peers:   make(map[string]*Peer),
		logger:  slog.Default().With("component", "ipc"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins listening for connections
func (s *Server) Start() error {
	if s.running.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("%w: %s", ErrAddressInUse, s.cfg.SocketPath)
	}
	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	if err := SetSocketPermissions(s.cfg.SocketPath, s.cfg.Permissions); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and every connection, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, p := range s.peers {
		p.conn.Close()
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
		s.logger.Warn("timed out waiting for control connections to close")
	}

	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		s.logger.Warn("remove socket", "path", s.cfg.SocketPath, "error", err)
	}
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// PeerCount returns the number of connected clients.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// acceptLoop accepts new connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept control connection", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		uid, err := peerUID(conn)
		if err != nil || !allowedUID(uid) {
			s.logger.Warn("rejected control connection", "uid", uid, "error", err)
			conn.Close()
			continue
		}

		peer := &Peer{
			ID:          "peer-" + strconv.FormatUint(s.nextID.Add(1), 10),
			UID:         uid,
			ConnectedAt: time.Now(),
			conn:        conn,
		}

		s.mu.Lock()
		if len(s.peers) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.send(peer, NewErrorMessage(0, ErrUnknown, "too many connections"))
			conn.Close()
			continue
		}
		s.peers[peer.ID] = peer
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(peer)
	}
}

// handleConnection serves requests from one peer until it disconnects,
// idles past ReadTimeout or the server stops.
func (s *Server) handleConnection(peer *Peer) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.peers, peer.ID)
		s.mu.Unlock()
		peer.conn.Close()
	}()

	for {
		if s.ctx.Err() != nil {
			return
		}

		peer.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		msg, err := ReadMessage(peer.conn)
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, ErrBadMagic), errors.Is(err, ErrVersion), errors.Is(err, ErrPayloadTooLarge):
				s.logger.Warn("malformed control message", "peer", peer.ID, "error", err)
				s.send(peer, NewErrorMessage(0, ErrInvalidRequest, err.Error()))
			case errors.As(err, &ne) && ne.Timeout():
				s.logger.Debug("control connection idle", "peer", peer.ID)
			}
			return
		}

		response := s.process(peer, msg)
		if err := s.send(peer, response); err != nil {
			s.logger.Debug("write control response", "peer", peer.ID, "error", err)
			return
		}
	}
}

// process answers pings itself and hands every other request to the
// handler.
func (s *Server) process(peer *Peer, msg *Message) *Message {
	id := msg.Header.RequestID
	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, id, nil)
	}

	s.logger.Debug("control request", "peer", peer.ID, "type", msg.Header.Type.String())
	response, err := s.handler.HandleMessage(s.ctx, peer, msg)
	if err != nil {
		return NewErrorMessage(id, ErrInternalError, err.Error())
	}
	if response == nil {
		return NewErrorMessage(id, ErrInternalError, "no response")
	}
	response.Header.RequestID = id
	return response
}

// send writes a message to a peer
func (s *Server) send(peer *Peer, msg *Message) error {
	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	peer.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(peer.conn)
}

// IsSocketListening checks if a daemon already accepts connections on path.
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// allowedUID accepts peers running as the daemon's user. Root may always
// connect.
func allowedUID(uid int) bool {
	own := os.Getuid()
	return own < 0 || uid == own || uid == 0
}
