package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// Common errors
var (
	ErrDaemonNotRunning   = errors.New("daemon is not running")
	ErrNotConnected       = errors.New("not connected to daemon")
	ErrUnexpectedResponse = errors.New("unexpected response from daemon")
)

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the client defaults for socketPath.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client sends control requests to a running daemon. Requests on one
// Client are serialized.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	cfg       ClientConfig
	nextReqID uint32
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultClientConfig("").ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultClientConfig("").RequestTimeout
	}

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "unix", cfg.SocketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (socket %s)", ErrDaemonNotRunning, cfg.SocketPath)
		}
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// request sends one message and decodes the matching response into out.
func (c *Client) request(ctx context.Context, msgType, want MessageType, payload, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	if conn == nil {
		return ErrNotConnected
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = Encode(payload); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	conn.SetDeadline(time.Now().Add(c.cfg.RequestTimeout))

	// Unblock the read once ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c.nextReqID++
	id := c.nextReqID
	if err := NewMessage(msgType, id, body).Write(conn); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}

	resp, err := ReadMessage(conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read %s response: %w", msgType, err)
	}
	if resp.Header.RequestID != id {
		return fmt.Errorf("%w: request id %d, want %d", ErrUnexpectedResponse, resp.Header.RequestID, id)
	}

	if resp.Header.Type == MsgError {
		var e ErrorResponse
		if err := Decode(resp.Payload, &e); err != nil {
			return fmt.Errorf("%w: undecodable error", ErrUnexpectedResponse)
		}
		return &RemoteError{Code: e.Code, Message: e.Message}
	}
	if resp.Header.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse, resp.Header.Type, want)
	}
	if out != nil && len(resp.Payload) > 0 {
		if err := Decode(resp.Payload, out); err != nil {
			return fmt.Errorf("decode %s: %w", want, err)
		}
	}
	return nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, MsgPing, MsgPong, nil, nil)
}

// Status returns the daemon and engine status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.request(ctx, MsgStatusRequest, MsgStatusResponse, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to start expanding.
func (c *Client) Start(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, MsgStart, MsgStartResp)
}

// Stop asks the daemon to stop expanding.
func (c *Client) Stop(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, MsgStop, MsgStopResp)
}

// Reload asks the daemon to re-read expansions and whitelist settings.
func (c *Client) Reload(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, MsgReload, MsgReloadResp)
}

func (c *Client) action(ctx context.Context, req, want MessageType) (*ActionResponse, error) {
	var resp ActionResponse
	if err := c.request(ctx, req, want, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
