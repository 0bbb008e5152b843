package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// LifecycleStore 是排程器推進拍賣狀態需要的儲存介面
type LifecycleStore interface {
	// ActivateDueAuctions 把 startTime 已到的 scheduled 拍賣轉為 active，回傳筆數
	ActivateDueAuctions(ctx context.Context) (int, error)
	// EndDueAuctions 把 endTime 已到的 active 拍賣收尾，回傳筆數
	EndDueAuctions(ctx context.Context) (int, error)
}

type lifecycleOptions struct {
	logger   *slog.Logger
	interval time.Duration
}

type LifecycleOption func(*lifecycleOptions)

// WithLifecycleLogger 設置日誌記錄器
func WithLifecycleLogger(logger *slog.Logger) LifecycleOption {
	return func(o *lifecycleOptions) {
		o.logger = logger
	}
}

// WithLifecycleInterval 設置檢查間隔
func WithLifecycleInterval(d time.Duration) LifecycleOption {
	return func(o *lifecycleOptions) {
		o.interval = d
	}
}

// Lifecycle 定期推進拍賣狀態：時間到了就上架，到期了就收尾。
// 收尾時的得標結算在儲存層完成，這裡只負責排程。
type Lifecycle struct {
	store     LifecycleStore
	scheduler gocron.Scheduler
	logger    *slog.Logger
	opts      lifecycleOptions
}

// NewLifecycle 建立拍賣生命週期排程器
func NewLifecycle(store LifecycleStore, opts ...LifecycleOption) (*Lifecycle, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	options := lifecycleOptions{
		logger:   slog.Default(),
		interval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("fail to create scheduler, err=%w", err)
	}

	return &Lifecycle{
		store:     store,
		scheduler: scheduler,
		logger:    options.logger.With(slog.String("caller", "AuctionLifecycle")),
		opts:      options,
	}, nil
}

// Start 啟動排程
func (l *Lifecycle) Start() error {
	_, err := l.scheduler.NewJob(
		gocron.DurationJob(l.opts.interval),
		gocron.NewTask(l.runOnce),
	)
	if err != nil {
		return fmt.Errorf("fail to register lifecycle job, err=%w", err)
	}
	l.scheduler.Start()
	l.logger.Info("auction lifecycle scheduler started",
		slog.Duration("interval", l.opts.interval))
	return nil
}

// Stop 停止排程並等待進行中的任務結束
func (l *Lifecycle) Stop() error {
	return l.scheduler.Shutdown()
}

func (l *Lifecycle) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	activated, err := l.store.ActivateDueAuctions(ctx)
	if err != nil {
		l.logger.Error("Fail to activate due auctions", slog.Any("error", err))
	} else if activated > 0 {
		l.logger.Info("auctions activated", slog.Int("count", activated))
	}

	ended, err := l.store.EndDueAuctions(ctx)
	if err != nil {
		l.logger.Error("Fail to end due auctions", slog.Any("error", err))
	} else if ended > 0 {
		l.logger.Info("auctions ended", slog.Int("count", ended))
	}
}
