package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedisTest(t *testing.T) (*redis.Client, redismock.ClientMock, func()) {
	db, mock := redismock.NewClientMock()
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

// fakeConn 是測試用的受控連線，訊息由測試方主動塞入
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	recv   chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{recv: make(chan []byte, 16)}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Receive() <-chan []byte {
	return c.recv
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.recv)
	}
	return nil
}

func (c *fakeConn) push(t *testing.T, eventType string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Type: eventType, Data: body})
	require.NoError(t, err)
	c.recv <- data
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeTransport 記錄每次 Dial，並可以讓最前面幾次失敗
type fakeTransport struct {
	mu       sync.Mutex
	dials    int
	failures int
	conns    []*fakeConn
}

func (f *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dials <= f.failures {
		return nil, ErrDialFailed
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func waitState(t *testing.T, ch *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ch.State() == want
	}, time.Second, 5*time.Millisecond, "channel did not reach state %s", want)
}
