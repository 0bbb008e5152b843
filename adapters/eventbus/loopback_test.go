package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLoopback(opts ...LoopbackOption) *Loopback {
	opts = append([]LoopbackOption{
		WithLoopbackLatency(5 * time.Millisecond),
		WithLoopbackEchoDelay(10 * time.Millisecond),
	}, opts...)
	return NewLoopback(opts...)
}

func TestLoopback_DialLatency(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := NewLoopback(WithLoopbackLatency(30 * time.Millisecond))

	start := time.Now()
	conn, err := lb.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLoopback_DialCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := NewLoopback(WithLoopbackLatency(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn, err := lb.Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, conn)
}

func TestLoopback_InjectedFailures(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := newTestLoopback(WithLoopbackFailures(2))

	for i := 0; i < 2; i++ {
		conn, err := lb.Dial(context.Background())
		assert.ErrorIs(t, err, ErrDialFailed)
		assert.Nil(t, conn)
	}

	conn, err := lb.Dial(context.Background())
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

func TestLoopback_EchoesSentMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := newTestLoopback()

	conn, err := lb.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	body, err := json.Marshal(map[string]string{"msg": "hello"})
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Type: TopicSystem, Data: body})
	require.NoError(t, err)
	require.NoError(t, conn.Send(frame))

	select {
	case got := <-conn.Receive():
		assert.JSONEq(t, string(frame), string(got))
	case <-time.After(time.Second):
		t.Fatal("echo not received")
	}
}

func TestLoopback_SimulatesBidUpdate(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := newTestLoopback()

	conn, err := lb.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	auctionID := uuid.New()
	bidderID := uuid.New()
	body, err := json.Marshal(PlaceBid{AuctionID: auctionID, Amount: 5100, BidderID: bidderID})
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Type: TopicPlaceBid, Data: body})
	require.NoError(t, err)
	require.NoError(t, conn.Send(frame))

	// place_bid 先原封回送，再跟一筆模擬的 bid_update
	var updates []BidUpdate
	deadline := time.After(time.Second)
	for len(updates) < 1 {
		select {
		case data := <-conn.Receive():
			var env Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type != TopicBidUpdate {
				continue
			}
			var update BidUpdate
			require.NoError(t, json.Unmarshal(env.Data, &update))
			updates = append(updates, update)
		case <-deadline:
			t.Fatal("bid_update not received")
		}
	}

	update := updates[0]
	assert.Equal(t, auctionID, update.AuctionID)
	assert.Equal(t, bidderID, update.Bid.BidderID)
	assert.Equal(t, int64(5100), update.Bid.Amount)
	assert.Equal(t, "placed", update.Bid.Status)
	assert.True(t, strings.HasPrefix(update.Bid.ID, "mock-bid-"))
}

func TestLoopback_CloseDropsPendingEchoes(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := newTestLoopback(WithLoopbackEchoDelay(200 * time.Millisecond))

	conn, err := lb.Dial(context.Background())
	require.NoError(t, err)

	frame, err := json.Marshal(Envelope{Type: TopicSystem, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, conn.Send(frame))
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	// 接收通道已關閉，排程中的回送被丟棄
	_, ok := <-conn.Receive()
	assert.False(t, ok)
	assert.ErrorIs(t, conn.Send(frame), ErrConnClosed)
}

func TestLoopback_WorksWithChannel(t *testing.T) {
	defer goleak.VerifyNone(t)
	lb := newTestLoopback()
	ch, err := NewChannel(lb,
		WithChannelLogger(discardLogger()),
		WithChannelBaseDelay(10*time.Millisecond),
		WithChannelSendRetryDelay(20*time.Millisecond))
	require.NoError(t, err)
	defer ch.Disconnect()

	var mu sync.Mutex
	var got []BidUpdate
	ch.Subscribe(TopicBidUpdate, func(data json.RawMessage) {
		var update BidUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		got = append(got, update)
	})

	ch.Connect()
	waitState(t, ch, StateOpen)

	auctionID := uuid.New()
	require.NoError(t, ch.Send(TopicPlaceBid, PlaceBid{AuctionID: auctionID, Amount: 7000}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, auctionID, got[0].AuctionID)
	assert.Equal(t, int64(7000), got[0].Bid.Amount)
}
