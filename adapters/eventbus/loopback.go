package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDialFailed 表示模擬的連線失敗
var ErrDialFailed = errors.New("dial failed")

type loopbackOptions struct {
	latency   time.Duration
	echoDelay time.Duration
	failDials int
}

type LoopbackOption func(*loopbackOptions)

// WithLoopbackLatency 設置模擬的連線建立延遲
func WithLoopbackLatency(d time.Duration) LoopbackOption {
	return func(o *loopbackOptions) {
		o.latency = d
	}
}

// WithLoopbackEchoDelay 設置訊息回送的延遲
func WithLoopbackEchoDelay(d time.Duration) LoopbackOption {
	return func(o *loopbackOptions) {
		o.echoDelay = d
	}
}

// WithLoopbackFailures 讓最前面 n 次 Dial 失敗，用來驗證重連行為
func WithLoopbackFailures(n int) LoopbackOption {
	return func(o *loopbackOptions) {
		o.failDials = n
	}
}

// Loopback 是開發環境用的傳輸，不連任何外部服務。
// 送出的訊息在固定延遲後原封回送給自己；收到 place_bid 時
// 額外模擬一筆伺服器廣播的 bid_update。
type Loopback struct {
	opts loopbackOptions

	mu    sync.Mutex
	dials int
}

// NewLoopback 建立 Loopback 傳輸
func NewLoopback(opts ...LoopbackOption) *Loopback {
	options := loopbackOptions{
		latency:   500 * time.Millisecond,
		echoDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Loopback{opts: options}
}

// Dial 在模擬延遲後建立一條回送連線
func (l *Loopback) Dial(ctx context.Context) (Conn, error) {
	timer := time.NewTimer(l.opts.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	l.mu.Lock()
	l.dials++
	fail := l.dials <= l.opts.failDials
	l.mu.Unlock()
	if fail {
		return nil, ErrDialFailed
	}

	return &loopbackConn{
		recv:      make(chan []byte),
		done:      make(chan struct{}),
		echoDelay: l.opts.echoDelay,
	}, nil
}

type loopbackConn struct {
	recv      chan []byte
	done      chan struct{}
	echoDelay time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (c *loopbackConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	c.enqueue(data, c.echoDelay)

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != TopicPlaceBid {
		return nil
	}
	var req PlaceBid
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return nil
	}
	update := BidUpdate{
		AuctionID: req.AuctionID,
		Bid: BidPayload{
			ID:        fmt.Sprintf("mock-bid-%d", time.Now().UnixMilli()),
			AuctionID: req.AuctionID,
			BidderID:  req.BidderID,
			Amount:    req.Amount,
			Timestamp: time.Now(),
			Status:    "placed",
		},
	}
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Type: TopicBidUpdate, Data: body})
	if err != nil {
		return err
	}
	c.enqueue(frame, c.echoDelay)
	return nil
}

func (c *loopbackConn) Receive() <-chan []byte {
	return c.recv
}

// Close 關閉連線，正在排程中的回送全部丟棄
func (c *loopbackConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		close(c.recv)
	})
	return nil
}

// enqueue 在 delay 後把訊息放回接收通道，連線關閉時直接丟棄
func (c *loopbackConn) enqueue(data []byte, delay time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			select {
			case <-c.done:
			case c.recv <- data:
			}
		}
	}()
}
