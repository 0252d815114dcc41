package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/streamasr/internal/engine"
	"github.com/rapidaai/streamasr/internal/inference"
	"github.com/rapidaai/streamasr/pkg/logging"
)

// fakeConn is a minimal Conn that lets a test script inbound frames and
// capture outbound ones, without a real network socket.
type fakeConn struct {
	mu          sync.Mutex
	inbound     chan []byte
	closeSignal chan struct{}
	outbound    [][]byte
	closed      bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closeSignal: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.BinaryMessage, data, nil
	case <-c.closeSignal:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

// pushClose simulates the client sending a graceful WebSocket close frame.
func (c *fakeConn) pushClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeSignal)
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.outbound = append(c.outbound, cp)
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error            { return nil }

func (c *fakeConn) Close() error { return nil }

func newTestEngine(t *testing.T, capacity int) *engine.Engine {
	t.Helper()
	model := inference.NewNoopModel()
	reg := prometheus.NewRegistry()
	cfg := engine.DefaultConfig(capacity, 0)
	eng, err := engine.New(cfg, model, model, model, reg, nil, logging.NewTestLogger())
	require.NoError(t, err)
	return eng
}

func TestSessionRejectsAtCapacity(t *testing.T) {
	eng := newTestEngine(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// Occupy the single slot directly via the engine so the session under
	// test finds the server at capacity.
	lease, err := eng.Acquire(8, 8)
	require.NoError(t, err)
	defer eng.Release(lease)

	conn := newFakeConn()
	cfg := DefaultConfig()
	cfg.LongSessionTimeout = 2 * time.Second
	sess := New(cfg, conn, eng, nil, logging.NewTestLogger())

	code := sess.Run(context.Background())
	assert.Equal(t, CloseServerAtCapacity, code)
}

func TestSessionShutdownFlushDrainsMarker(t *testing.T) {
	eng := newTestEngine(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	conn := newFakeConn()
	cfg := DefaultConfig()
	cfg.LongSessionTimeout = 5 * time.Second
	cfg.ShortInactivityTimeout = 5 * time.Second
	sess := New(cfg, conn, eng, nil, logging.NewTestLogger())

	done := make(chan CloseCode, 1)
	go func() { done <- sess.Run(context.Background()) }()

	// A graceful close with no prior traffic should drive the shutdown
	// flush path and still terminate with CloseNormal.
	time.AfterFunc(50*time.Millisecond, conn.pushClose)

	select {
	case code := <-done:
		assert.Equal(t, CloseNormal, code)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not terminate after graceful close")
	}
}
