package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"
)

// State 代表頻道的連線狀態
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Handler 處理一筆事件的內容
type Handler func(data json.RawMessage)

type handlerEntry struct {
	id uint64
	fn Handler
}

type channelOptions struct {
	logger         *slog.Logger
	baseDelay      time.Duration
	maxReconnects  int
	sendRetryDelay time.Duration
}

type ChannelOption func(*channelOptions)

// WithChannelLogger 設置日誌記錄器
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(o *channelOptions) {
		o.logger = logger
	}
}

// WithChannelBaseDelay 設置重連退避的起始延遲
func WithChannelBaseDelay(d time.Duration) ChannelOption {
	return func(o *channelOptions) {
		o.baseDelay = d
	}
}

// WithChannelMaxReconnects 設置自動重連的次數上限
func WithChannelMaxReconnects(n int) ChannelOption {
	return func(o *channelOptions) {
		o.maxReconnects = n
	}
}

// WithChannelSendRetryDelay 設置未連線時 Send 重送的延遲
func WithChannelSendRetryDelay(d time.Duration) ChannelOption {
	return func(o *channelOptions) {
		o.sendRetryDelay = d
	}
}

// Channel 是會自我修復的事件頻道。
// 事件依主題分發給所有訂閱者；連線斷開後以指數退避自動重連，
// 重連次數有上限，連線成功或外部再次呼叫 Connect 時退避狀態歸零。
//
// 送達語義：同一條連線內同主題 FIFO、至少一次；斷線期間的事件不補送，
// 一致性由呼叫端的輪詢兜底。
type Channel struct {
	transport Transport
	opts      channelOptions

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            uint64 // 連線世代，Disconnect 後舊連線的回呼全部作廢
	handlers       map[string][]handlerEntry
	nextHandlerID  uint64
	attempts       int // 連續失敗的重連次數
	reconnectTimer *time.Timer
	sendTimers     map[*time.Timer]struct{}
	dialCancel     func()

	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewChannel 建立事件頻道，transport 決定實際的傳輸方式
func NewChannel(transport Transport, opts ...ChannelOption) (*Channel, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	options := channelOptions{
		logger:         slog.Default(),
		baseDelay:      2 * time.Second,
		maxReconnects:  5,
		sendRetryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Channel{
		transport:  transport,
		state:      StateIdle,
		handlers:   make(map[string][]handlerEntry),
		sendTimers: make(map[*time.Timer]struct{}),
		logger:     options.logger.With(slog.String("caller", "Channel")),
		opts:       options,
	}, nil
}

// Connect 建立連線。
// 已在連線中或已連上時是 no-op；其餘情況視為全新的連線嘗試，
// 重連計數歸零，所以重試額度用盡後可以用 Connect 重新啟動頻道。
func (ch *Channel) Connect() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state == StateConnecting || ch.state == StateOpen {
		return
	}
	ch.attempts = 0
	ch.dialLocked()
}

// Disconnect 取消排程中的重連與重送，關閉現有連線。
// 可以重複呼叫；之後的 Connect 視為全新連線。
// 不可以在事件 handler 內呼叫，會等不到分發迴圈結束。
func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	ch.gen++
	if ch.dialCancel != nil {
		ch.dialCancel()
		ch.dialCancel = nil
	}
	if ch.reconnectTimer != nil {
		ch.reconnectTimer.Stop()
		ch.reconnectTimer = nil
	}
	for t := range ch.sendTimers {
		t.Stop()
		delete(ch.sendTimers, t)
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = StateIdle
	ch.attempts = 0
	ch.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	ch.wg.Wait()
}

// State 回傳目前的連線狀態
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Subscribe 註冊 topic 的 handler，回傳取消訂閱的函式。
// 同一主題可以掛多個 handler，事件依註冊順序逐一送達；
// 取消函式只移除自己這個 handler，重複呼叫是 no-op。
// handler 在分發期間取消自己不影響其餘 handler 收到同一筆事件。
func (ch *Channel) Subscribe(topic string, handler Handler) func() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.nextHandlerID++
	id := ch.nextHandlerID
	ch.handlers[topic] = append(ch.handlers[topic], handlerEntry{id: id, fn: handler})

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		entries := ch.handlers[topic]
		for i, e := range entries {
			if e.id == id {
				entries = slices.Delete(entries, i, i+1)
				break
			}
		}
		if len(entries) == 0 {
			// 不留空的主題項目
			delete(ch.handlers, topic)
		} else {
			ch.handlers[topic] = entries
		}
	}
}

// Send 送出一筆事件。
// 頻道已連上時立即送出；未連上時先觸發連線，並在固定延遲後重送同一筆。
// 每次呼叫各自排一個重送，不做合併也不排隊。
func (ch *Channel) Send(eventType string, payload any) error {
	const op = "Channel.Send"
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Join(errors.New("["+op+"] fail to marshal payload"), err)
	}
	data, err := json.Marshal(Envelope{Type: eventType, Data: body})
	if err != nil {
		return errors.Join(errors.New("["+op+"] fail to marshal envelope"), err)
	}

	ch.mu.Lock()
	if ch.state == StateOpen && ch.conn != nil {
		conn := ch.conn
		ch.mu.Unlock()
		return conn.Send(data)
	}

	ch.logger.Warn("channel not open, send will be retried", slog.String("type", eventType))
	if ch.state != StateConnecting {
		ch.dialLocked()
	}
	var t *time.Timer
	t = time.AfterFunc(ch.opts.sendRetryDelay, func() {
		ch.mu.Lock()
		if _, ok := ch.sendTimers[t]; !ok {
			// Disconnect 已經取消了這次重送
			ch.mu.Unlock()
			return
		}
		delete(ch.sendTimers, t)
		ch.mu.Unlock()
		_ = ch.Send(eventType, payload)
	})
	ch.sendTimers[t] = struct{}{}
	ch.mu.Unlock()
	return nil
}

// dialLocked 發起一次連線嘗試，呼叫時必須持有 ch.mu
func (ch *Channel) dialLocked() {
	ch.state = StateConnecting
	gen := ch.gen
	ctx, cancel := context.WithCancel(context.Background())
	ch.dialCancel = cancel

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		conn, err := ch.transport.Dial(ctx)

		ch.mu.Lock()
		if gen != ch.gen {
			// 連線期間被 Disconnect，結果作廢
			ch.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			ch.state = StateError
			ch.logger.Warn("Fail to open event connection", slog.Any("error", err))
			ch.scheduleReconnectLocked()
			ch.mu.Unlock()
			return
		}
		ch.conn = conn
		ch.state = StateOpen
		ch.attempts = 0
		ch.logger.Info("event connection opened")
		ch.wg.Add(1)
		go ch.readLoop(conn, gen)
		ch.mu.Unlock()
	}()
}

// readLoop 依序分發單一連線上收到的訊息，連線關閉後觸發重連排程
func (ch *Channel) readLoop(conn Conn, gen uint64) {
	defer ch.wg.Done()
	for data := range conn.Receive() {
		ch.dispatch(data)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if gen != ch.gen || ch.conn != conn {
		return
	}
	ch.conn = nil
	ch.state = StateClosed
	ch.logger.Info("event connection closed")
	ch.scheduleReconnectLocked()
}

// dispatch 將一筆訊息分發給對應主題的所有訂閱者。
// 格式錯誤的訊息只記日誌後丟棄；單一 handler 的 panic 不影響其餘 handler。
func (ch *Channel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		ch.logger.Warn("drop malformed event", slog.Any("error", err))
		return
	}

	ch.mu.Lock()
	entries := slices.Clone(ch.handlers[env.Type])
	ch.mu.Unlock()

	for _, e := range entries {
		ch.invoke(e, env)
	}
}

func (ch *Channel) invoke(e handlerEntry, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			ch.logger.Error("event handler panicked",
				slog.String("type", env.Type),
				slog.Any("panic", r))
		}
	}()
	e.fn(env.Data)
}

// scheduleReconnectLocked 排程下一次重連，呼叫時必須持有 ch.mu。
// 超過次數上限就停止，之後只有外部呼叫 Connect 才會再嘗試。
func (ch *Channel) scheduleReconnectLocked() {
	if ch.reconnectTimer != nil {
		ch.reconnectTimer.Stop()
		ch.reconnectTimer = nil
	}
	if ch.attempts >= ch.opts.maxReconnects {
		ch.logger.Error("max reconnect attempts reached",
			slog.Int("attempts", ch.attempts))
		return
	}
	ch.attempts++
	delay := backoffDelay(ch.opts.baseDelay, ch.attempts)
	ch.logger.Info("scheduling reconnect",
		slog.Int("attempt", ch.attempts),
		slog.Duration("delay", delay))

	ch.reconnectTimer = time.AfterFunc(delay, func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		ch.reconnectTimer = nil
		if ch.state != StateClosed && ch.state != StateError {
			return
		}
		ch.dialLocked()
	})
}

// backoffDelay 計算第 n 次重連的等待時間：base × 1.5^(n-1)。
// 只在連續失敗間累積，成功連上後歸零重算。
func backoffDelay(base time.Duration, n int) time.Duration {
	return time.Duration(float64(base) * math.Pow(1.5, float64(n-1)))
}
