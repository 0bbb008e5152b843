package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 是出價時用的分散式鎖介面
type Locker interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// LockerFactory 依鎖的 key 建立 Locker，測試時可以換成假實作
type LockerFactory func(key string) Locker

// BidMutex 是帶自動續期的分散式鎖。
// 取得鎖後會在背景定期延長過期時間，避免長交易期間鎖被其他節點搶走；
// 續期失敗時回傳的 context 會被取消，持鎖方應該中止手上的工作。
type BidMutex struct {
	*redsync.Mutex
	cancel   context.CancelFunc
	renewing bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	options  bidMutexOptions
}

type bidMutexOptions struct {
	renewInterval time.Duration
	retryDelay    time.Duration
	expiry        time.Duration
}

type BidMutexOption func(*bidMutexOptions)

// WithBidMutexRenewInterval 設置自動續期間隔
func WithBidMutexRenewInterval(d time.Duration) BidMutexOption {
	return func(o *bidMutexOptions) {
		o.renewInterval = d
	}
}

// WithBidMutexRetryDelay 設置重試延遲
func WithBidMutexRetryDelay(d time.Duration) BidMutexOption {
	return func(o *bidMutexOptions) {
		o.retryDelay = d
	}
}

// WithBidMutexExpiry 設置鎖過期時間
func WithBidMutexExpiry(d time.Duration) BidMutexOption {
	return func(o *bidMutexOptions) {
		o.expiry = d
	}
}

// NewBidMutex 創建一個帶自動續期功能的互斥鎖
func NewBidMutex(client *redis.Client, key string, opts ...BidMutexOption) Locker {
	// 默認選項
	options := bidMutexOptions{
		expiry:     8 * time.Second,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// 如果未設置續期間隔，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	pool := goredis.NewPool(client)
	rs := redsync.New(pool)

	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
		redsync.WithRetryDelay(options.retryDelay),
	)

	return &BidMutex{
		Mutex:   mutex,
		options: options,
	}
}

// Lock 獲取鎖並啟動自動續期，支持通過context取消。
// 鎖被別人持有時會以 retryDelay 的間隔重試，直到成功或 ctx 結束。
func (m *BidMutex) Lock(ctx context.Context) (context.Context, error) {
	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			err := m.Mutex.LockContext(ctx)
			if err == nil {
				lockCtx, cancel := context.WithCancel(ctx)
				m.cancel = cancel
				m.startAutoRenew(lockCtx)
				return lockCtx, nil
			}
			// redis通訊層的錯誤不重試，直接回報
			var commErr *redsync.RedisError
			if errors.As(err, &commErr) {
				return nil, fmt.Errorf("failed to acquire lock: %w", err)
			}
			timer.Reset(m.options.retryDelay)
		}
	}
}

// Unlock 停止自動續期並釋放鎖
func (m *BidMutex) Unlock() (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.Unlock()
}

// Valid 檢查鎖是否仍然有效
func (m *BidMutex) Valid() bool {
	return time.Now().Before(m.Mutex.Until()) && m.renewing
}

func (m *BidMutex) startAutoRenew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renewing {
		return
	}

	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := m.Mutex.Extend()
				if err != nil || !success {
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *BidMutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}

	m.renewing = false
	if m.cancel != nil {
		m.cancel()
	}
}
