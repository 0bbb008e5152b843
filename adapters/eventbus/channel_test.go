package eventbus

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestChannel(t *testing.T, transport Transport, opts ...ChannelOption) *Channel {
	t.Helper()
	opts = append([]ChannelOption{
		WithChannelLogger(discardLogger()),
		WithChannelBaseDelay(10 * time.Millisecond),
		WithChannelSendRetryDelay(20 * time.Millisecond),
	}, opts...)
	ch, err := NewChannel(transport, opts...)
	require.NoError(t, err)
	return ch
}

func TestNewChannel(t *testing.T) {
	t.Run("nil transport", func(t *testing.T) {
		ch, err := NewChannel(nil)
		assert.Error(t, err)
		assert.Nil(t, ch)
	})

	t.Run("defaults", func(t *testing.T) {
		ch, err := NewChannel(&fakeTransport{})
		require.NoError(t, err)
		assert.Equal(t, StateIdle, ch.State())
		assert.Equal(t, 2*time.Second, ch.opts.baseDelay)
		assert.Equal(t, 5, ch.opts.maxReconnects)
		assert.Equal(t, time.Second, ch.opts.sendRetryDelay)
	})
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2000 * time.Millisecond},
		{2, 3000 * time.Millisecond},
		{3, 4500 * time.Millisecond},
		{4, 6750 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(2*time.Second, tt.attempt))
	}
}

func TestChannel_ConnectIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	ch.Connect()
	ch.Connect()
	waitState(t, ch, StateOpen)
	ch.Connect()

	assert.Equal(t, 1, transport.dialCount())
}

func TestChannel_DispatchRouting(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var bids, auctions []json.RawMessage
	ch.Subscribe(TopicBidUpdate, func(data json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		bids = append(bids, data)
	})
	ch.Subscribe(TopicAuctionUpdate, func(data json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		auctions = append(auctions, data)
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	conn := transport.lastConn()

	auctionID := uuid.New()
	conn.push(t, TopicBidUpdate, BidUpdate{AuctionID: auctionID})
	conn.push(t, TopicBidUpdate, BidUpdate{AuctionID: auctionID})
	conn.push(t, TopicAuctionUpdate, AuctionUpdate{AuctionID: auctionID})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bids) == 2 && len(auctions) == 1
	}, time.Second, 5*time.Millisecond)

	// 同一主題依送出順序送達
	var first, second BidUpdate
	require.NoError(t, json.Unmarshal(bids[0], &first))
	require.NoError(t, json.Unmarshal(bids[1], &second))
	assert.Equal(t, auctionID, first.AuctionID)
	assert.Equal(t, auctionID, second.AuctionID)
}

func TestChannel_Unsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var got []string
	unsubA := ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a")
	})
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b")
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	conn := transport.lastConn()

	unsubA()
	unsubA() // 重複取消是 no-op
	conn.push(t, TopicSystem, map[string]string{"msg": "hi"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, got)
}

func TestChannel_SelfUnsubscribeDuringDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var aCount, bCount int
	var unsubA func()
	unsubA = ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		aCount++
		unsubA()
	})
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		bCount++
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	conn := transport.lastConn()

	conn.push(t, TopicSystem, map[string]string{"n": "1"})
	conn.push(t, TopicSystem, map[string]string{"n": "2"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bCount == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// A 在第一筆分發中取消自己，仍收到那一筆，之後不再收到
	assert.Equal(t, 1, aCount)
}

func TestChannel_HandlerPanicIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var survived int
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		panic("boom")
	})
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		survived++
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	conn := transport.lastConn()
	conn.push(t, TopicSystem, map[string]string{"msg": "hi"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return survived == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, ch.State())
}

func TestChannel_MalformedEventDropped(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var got int
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got++
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	conn := transport.lastConn()

	conn.recv <- []byte("not json at all")
	conn.recv <- []byte(`{"data":{"x":1}}`) // 缺 type
	conn.push(t, TopicSystem, map[string]string{"msg": "ok"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, ch.State())
}

func TestChannel_ReconnectAfterDrop(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	var mu sync.Mutex
	var got int
	ch.Subscribe(TopicSystem, func(json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got++
	})

	ch.Connect()
	waitState(t, ch, StateOpen)
	first := transport.lastConn()

	// 伺服器端斷線，頻道應自動重連並繼續分發
	first.Close()
	require.Eventually(t, func() bool {
		return transport.dialCount() == 2 && ch.State() == StateOpen
	}, time.Second, 5*time.Millisecond)

	transport.lastConn().push(t, TopicSystem, map[string]string{"msg": "after"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	}, time.Second, 5*time.Millisecond)
}

func TestChannel_ReconnectBudgetAndReset(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{failures: 100}
	ch := newTestChannel(t, transport, WithChannelMaxReconnects(2))
	defer ch.Disconnect()

	ch.Connect()

	// 首次撥號加上兩次重連後放棄
	require.Eventually(t, func() bool {
		return transport.dialCount() == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, transport.dialCount())
	assert.Equal(t, StateError, ch.State())

	// 外部重新 Connect 時重試額度歸零，重新開始嘗試
	ch.Connect()
	require.Eventually(t, func() bool {
		return transport.dialCount() >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestChannel_SendWhileOpen(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	ch.Connect()
	waitState(t, ch, StateOpen)

	require.NoError(t, ch.Send(TopicPlaceBid, PlaceBid{Amount: 5100}))
	assert.Equal(t, 1, transport.lastConn().sentCount())
}

func TestChannel_SendWhileNotOpenRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)
	defer ch.Disconnect()

	// 未連線時送出：觸發連線，稍後重送
	require.NoError(t, ch.Send(TopicPlaceBid, PlaceBid{Amount: 5100}))

	require.Eventually(t, func() bool {
		conn := transport.lastConn()
		return conn != nil && conn.sentCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, transport.dialCount())
}

func TestChannel_DisconnectCancelsPendingWork(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{failures: 100}
	ch := newTestChannel(t, transport,
		WithChannelBaseDelay(50*time.Millisecond),
		WithChannelSendRetryDelay(50*time.Millisecond))

	require.NoError(t, ch.Send(TopicPlaceBid, PlaceBid{Amount: 5100}))
	require.Eventually(t, func() bool {
		return transport.dialCount() == 1
	}, time.Second, 5*time.Millisecond)

	ch.Disconnect()
	dials := transport.dialCount()

	// 排程中的重連與重送都已取消
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount())
	assert.Equal(t, StateIdle, ch.State())
}

func TestChannel_DisconnectIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := &fakeTransport{}
	ch := newTestChannel(t, transport)

	ch.Connect()
	waitState(t, ch, StateOpen)
	ch.Disconnect()
	ch.Disconnect()
	assert.Equal(t, StateIdle, ch.State())
}
