package ipc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expanderd/internal/engine"
	"expanderd/internal/keystroke"
)

// =============================================================================
// Protocol
// =============================================================================

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(MsgStatusRequest, 42, []byte(`{"a":1}`))
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+7, buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(ProtocolMagic), got.Header.Magic)
	assert.Equal(t, uint8(ProtocolVersion), got.Header.Version)
	assert.Equal(t, FlagJSON, got.Header.Flags)
	assert.Equal(t, MsgStatusRequest, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)
	assert.Equal(t, `{"a":1}`, string(got.Payload))
}

func TestHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMessage(MsgReload, 0x01020304, nil).Write(&buf))
	assert.Equal(t, []byte{
		'X', 'P', 'N', 'D',
		ProtocolVersion, FlagJSON,
		0x02, 0x04,
		0x01, 0x02, 0x03, 0x04,
		0, 0, 0, 0,
	}, buf.Bytes())
}

func TestReadHeaderRejects(t *testing.T) {
	frame := func(mutate func(h *Header)) *bytes.Buffer {
		h := NewMessage(MsgPing, 1, nil).Header
		mutate(&h)
		var buf bytes.Buffer
		require.NoError(t, h.Write(&buf))
		return &buf
	}

	_, err := ReadHeader(frame(func(h *Header) { h.Magic = 0xdeadbeef }))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadHeader(frame(func(h *Header) { h.Version = ProtocolVersion + 1 }))
	assert.ErrorIs(t, err, ErrVersion)

	_, err = ReadHeader(frame(func(h *Header) { h.Length = MaxPayload + 1 }))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = ReadHeader(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "reload", MsgReload.String())
	assert.Equal(t, "0x0999", MessageType(0x0999).String())
}

// =============================================================================
// Server and client
// =============================================================================

type fakeController struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	refresh  int
	startErr error
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.running = true
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeController) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return nil
}

func (f *fakeController) Stats() engine.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Stats{Running: f.running, Expansions: 3, Triggers: 7}
}

// socketPath returns a short socket path; sun_path is limited to about 100
// bytes and test temp dirs can be long.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "xpnd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startServer(t *testing.T, ctl Controller, mutate func(*ServerConfig)) *Server {
	t.Helper()
	cfg := DefaultServerConfig(socketPath(t))
	cfg.Version = "1.2.3"
	if mutate != nil {
		mutate(&cfg)
	}
	h := NewDaemonHandler(DaemonHandlerConfig{
		Version: cfg.Version,
		Storage: StorageStatus{Type: "json", Path: "/tmp/data.json"},
		Engine:  ctl,
	})
	srv, err := NewServer(cfg, h)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server) *Client {
	t.Helper()
	c, err := Dial(context.Background(), DefaultClientConfig(srv.SocketPath()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPingAndStatus(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)
	c := dial(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", st.Version)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "json", st.Storage.Type)
	assert.Equal(t, 3, st.Engine.Expansions)
	assert.Equal(t, uint64(7), st.Engine.Triggers)
	assert.False(t, st.Engine.Running)
}

func TestStartStopReload(t *testing.T) {
	ctl := &fakeController{}
	srv := startServer(t, ctl, nil)
	c := dial(t, srv)
	ctx := context.Background()

	resp, err := c.Start(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Running)
	assert.Equal(t, 3, resp.Expansions)

	resp, err = c.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Running)

	resp, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, resp.Running)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, 1, ctl.starts)
	assert.Equal(t, 1, ctl.refresh)
	assert.Equal(t, 1, ctl.stops)
}

func TestStartErrorIsReported(t *testing.T) {
	ctl := &fakeController{startErr: keystroke.ErrNotAvailable}
	srv := startServer(t, ctl, nil)
	c := dial(t, srv)

	_, err := c.Start(context.Background())
	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, ErrNotAvailable, remote.Code)
	assert.Contains(t, remote.Message, "not available")

	// The connection stays usable after an error response.
	assert.NoError(t, c.Ping(context.Background()))
}

func TestUnknownMessageType(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)
	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, NewMessage(MessageType(0x0999), 9, nil).Write(conn))
	resp, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, MsgError, resp.Header.Type)
	assert.Equal(t, uint32(9), resp.Header.RequestID)

	var e ErrorResponse
	require.NoError(t, Decode(resp.Payload, &e))
	assert.Equal(t, ErrInvalidRequest, e.Code)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)
	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(bytes.Repeat([]byte{0xff}, HeaderSize))
	require.NoError(t, err)

	resp, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, MsgError, resp.Header.Type)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = ReadMessage(conn)
	assert.Error(t, err, "server must hang up after a bad frame")
}

func TestSocketPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("socket file modes are not enforced on Windows")
	}
	srv := startServer(t, &fakeController{}, nil)
	info, err := os.Stat(srv.SocketPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSecondServerRefused(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)

	other, err := NewServer(DefaultServerConfig(srv.SocketPath()), NewDaemonHandler(DaemonHandlerConfig{Engine: &fakeController{}}))
	require.NoError(t, err)
	assert.ErrorIs(t, other.Start(), ErrAddressInUse)

	// The first server is unaffected.
	assert.NoError(t, dial(t, srv).Ping(context.Background()))
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	// Leave the socket file behind without a listener.
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()

	srv := startServer(t, &fakeController{}, func(c *ServerConfig) { c.SocketPath = path })
	assert.NoError(t, dial(t, srv).Ping(context.Background()))
}

func TestStopRemovesSocket(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)
	c := dial(t, srv)
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "Stop is idempotent")

	_, err := os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, c.Ping(context.Background()))
}

func TestDialWithoutDaemon(t *testing.T) {
	_, err := Dial(context.Background(), DefaultClientConfig(socketPath(t)))
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestMaxConnections(t *testing.T) {
	srv := startServer(t, &fakeController{}, func(c *ServerConfig) { c.MaxConnections = 1 })
	first := dial(t, srv)
	require.NoError(t, first.Ping(context.Background()))

	second := dial(t, srv)
	assert.Error(t, second.Ping(context.Background()))
	assert.Equal(t, 1, srv.PeerCount())
	assert.NoError(t, first.Ping(context.Background()))
}

func TestIdleConnectionDropped(t *testing.T) {
	srv := startServer(t, &fakeController{}, func(c *ServerConfig) { c.ReadTimeout = 100 * time.Millisecond })
	c := dial(t, srv)
	require.NoError(t, c.Ping(context.Background()))

	assert.Eventually(t, func() bool { return srv.PeerCount() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestClientHonoursContext(t *testing.T) {
	block := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
		<-block
		return NewMessage(MsgStatusResponse, 0, []byte(`{}`)), nil
	})
	srv, err := NewServer(DefaultServerConfig(socketPath(t)), handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	t.Cleanup(func() { close(block) })

	c := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Status(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedClient(t *testing.T) {
	srv := startServer(t, &fakeController{}, nil)
	c := dial(t, srv)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
}
