package auction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"towbid/adapters/eventbus"
	"towbid/models"
)

// Subscriber 提供事件訂閱能力，*eventbus.Channel 滿足這個介面
type Subscriber interface {
	Subscribe(topic string, handler eventbus.Handler) func()
}

// Snapshot 是單一拍賣在某個時點的觀察結果
type Snapshot struct {
	Auction    *models.Auction
	Remaining  time.Duration
	EndingSoon bool
}

type sessionOptions struct {
	logger        *slog.Logger
	pollInterval  time.Duration
	countdownTick time.Duration
	now           func() time.Time
}

type SessionOption func(*sessionOptions)

// WithSessionLogger 設置日誌記錄器
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithSessionPollInterval 設置定期重新拉取的間隔
func WithSessionPollInterval(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.pollInterval = d
	}
}

// WithSessionCountdownTick 設置倒數計時的更新間隔
func WithSessionCountdownTick(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.countdownTick = d
	}
}

// WithSessionNow 設置時間來源，測試用
func WithSessionNow(now func() time.Time) SessionOption {
	return func(o *sessionOptions) {
		o.now = now
	}
}

// Session 追蹤單一拍賣的即時狀態。
// 權威資料靠定期輪詢取得，頻道上的事件只當作提前輪詢的訊號，
// 事件內容本身不直接寫進狀態，所以頻道掉事件只影響更新延遲，不影響正確性。
// 回應按請求先後決定去留：較舊請求的回應一律丟棄。
// 倒數以拍賣建立時就固定的 endTime 為準，與輪詢結果無關。
type Session struct {
	store     Store
	bus       Subscriber
	auctionID uuid.UUID
	opts      sessionOptions
	logger    *slog.Logger

	mu      sync.Mutex
	auction *models.Auction
	applied uint64

	seq atomic.Uint64

	refreshCh    chan struct{}
	updates      chan Snapshot
	cancel       context.CancelFunc
	unsubscribes []func()
	wg           sync.WaitGroup
	fetchWG      sync.WaitGroup
	startOnce    sync.Once
	stopOnce     sync.Once
}

// NewSession 建立拍賣追蹤會話，bus 可以為 nil（純輪詢）
func NewSession(store Store, bus Subscriber, auctionID uuid.UUID, opts ...SessionOption) (*Session, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if auctionID == uuid.Nil {
		return nil, errors.New("auction id cannot be empty")
	}

	options := sessionOptions{
		logger:        slog.Default(),
		pollInterval:  10 * time.Second,
		countdownTick: time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Session{
		store:     store,
		bus:       bus,
		auctionID: auctionID,
		opts:      options,
		logger: options.logger.With(
			slog.String("caller", "AuctionSession"),
			slog.String("auctionId", auctionID.String())),
		refreshCh: make(chan struct{}, 1),
		updates:   make(chan Snapshot, 1),
	}, nil
}

// Start 啟動會話：先立即拉取一次，之後定期輪詢，
// 並訂閱這場拍賣的推播事件作為提前輪詢的訊號。重複呼叫是 no-op。
func (s *Session) Start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel

		if s.bus != nil {
			s.unsubscribes = append(s.unsubscribes,
				s.bus.Subscribe(eventbus.TopicBidUpdate, func(data json.RawMessage) {
					var update eventbus.BidUpdate
					if json.Unmarshal(data, &update) != nil {
						return
					}
					if update.AuctionID == s.auctionID {
						s.Refresh()
					}
				}),
				s.bus.Subscribe(eventbus.TopicAuctionUpdate, func(data json.RawMessage) {
					var update eventbus.AuctionUpdate
					if json.Unmarshal(data, &update) != nil {
						return
					}
					if update.AuctionID == s.auctionID {
						s.Refresh()
					}
				}),
			)
		}

		s.wg.Add(2)
		go s.pollLoop(ctx)
		go s.countdownLoop(ctx)
	})
}

// Stop 終止會話：取消輪詢與倒數、解除訂閱、關閉更新通道。
// 可以重複呼叫，但會話停了就不能再啟動。
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		for _, unsub := range s.unsubscribes {
			unsub()
		}
		s.wg.Wait()
		// 進行中的拉取已經拿到取消的 context，等它們收尾再關閉更新通道
		s.fetchWG.Wait()
		close(s.updates)
	})
}

// Refresh 要求盡快重新拉取一次，多次呼叫會合併
func (s *Session) Refresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot 回傳目前的觀察結果。
// 初次拉取還沒完成或一直失敗時 Auction 為 nil。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	auction := s.auction
	s.mu.Unlock()

	snap := Snapshot{Auction: auction}
	if auction != nil {
		now := s.opts.now()
		snap.Remaining = Remaining(auction.EndTime, now)
		snap.EndingSoon = EndingSoon(auction.EndTime, now)
	}
	return snap
}

// Updates 回傳快照更新的通道，消費太慢時只保留最新一筆
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	s.startFetch(ctx)
	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.startFetch(ctx)
		case <-s.refreshCh:
			s.startFetch(ctx)
		}
	}
}

// startFetch 讓每次拉取在自己的goroutine進行。
// 慢回應不會卡住輪詢節奏和推播訊號，先後由 refresh 的序號裁定。
func (s *Session) startFetch(ctx context.Context) {
	s.fetchWG.Add(1)
	go func() {
		defer s.fetchWG.Done()
		s.refresh(ctx)
	}()
}

func (s *Session) countdownLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.countdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 拍賣進入終態且倒數歸零後就不再有東西好倒數，停止推送
			snap := s.Snapshot()
			if snap.Auction != nil && snap.Remaining == 0 && snap.Auction.Status.Terminal() {
				return
			}
			s.emit()
		}
	}
}

// refresh 向權威儲存拉取最新狀態。
// 失敗時保留上一次的資料；比較舊的請求回來得晚也不會蓋掉新資料。
func (s *Session) refresh(ctx context.Context) {
	seq := s.seq.Add(1)

	auction, err := s.store.GetAuction(ctx, s.auctionID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("Fail to refresh auction, keeping last known state",
				slog.Any("error", err))
		}
		return
	}

	s.mu.Lock()
	if seq <= s.applied {
		s.mu.Unlock()
		s.logger.Debug("discard stale refresh response", slog.Uint64("seq", seq))
		return
	}
	s.applied = seq
	s.auction = auction
	s.mu.Unlock()

	s.emit()
}

// emit 把最新快照推上更新通道，通道滿了就先丟掉舊的那筆
func (s *Session) emit() {
	snap := s.Snapshot()
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}
