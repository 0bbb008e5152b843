package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"towbid/models"
)

type storeOptions struct {
	logger       *slog.Logger
	redisClient  *redis.Client
	keyPrefix    string
	cacheTTL     time.Duration
	newLocker    LockerFactory
	premiumRate  decimal.Decimal
	maxBidsShown int
	notifier     func(models.Notification)
}

type Option func(*storeOptions)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithRedis 設置出價現價快取與分散式鎖用的 redis。
// 不設置時出價直接走資料庫交易，開發與測試環境用。
func WithRedis(client *redis.Client, keyPrefix string) Option {
	return func(o *storeOptions) {
		o.redisClient = client
		o.keyPrefix = keyPrefix
	}
}

// WithCacheTTL 設置現價快取的過期時間
func WithCacheTTL(d time.Duration) Option {
	return func(o *storeOptions) {
		o.cacheTTL = d
	}
}

// WithLockerFactory 設置出價鎖的建立方式
func WithLockerFactory(factory LockerFactory) Option {
	return func(o *storeOptions) {
		o.newLocker = factory
	}
}

// WithBuyerPremiumRate 設置結帳時的買家佣金比例
func WithBuyerPremiumRate(rate decimal.Decimal) Option {
	return func(o *storeOptions) {
		o.premiumRate = rate
	}
}

// WithNotifier 設置通知建立後的回呼，在交易提交後才會被呼叫。
// 用來把站內通知推上事件頻道，沒設置時通知只落資料庫。
func WithNotifier(fn func(models.Notification)) Option {
	return func(o *storeOptions) {
		o.notifier = fn
	}
}

// Store 是拍賣資料的權威儲存。
// 所有寫入都以資料庫交易為準；redis 只作為出價的前置閘門與分散式鎖，
// 掉了不影響正確性，只影響吞吐。
type Store struct {
	db        *gorm.DB
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
	opts      storeOptions
}

// New 建立 Store
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	options := storeOptions{
		logger:       slog.Default(),
		cacheTTL:     10 * time.Minute,
		premiumRate:  decimal.NewFromFloat(0.10),
		maxBidsShown: 50,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.newLocker == nil && options.redisClient != nil {
		client := options.redisClient
		options.newLocker = func(key string) Locker {
			return NewBidMutex(client, key)
		}
	}

	return &Store{
		db:        db,
		logger:    options.logger.With(slog.String("caller", "Store")),
		sanitizer: bluemonday.UGCPolicy(),
		opts:      options,
	}, nil
}

// AutoMigrate 建立或更新所有資料表
func (s *Store) AutoMigrate() error {
	const op = "Store.AutoMigrate"
	err := s.db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Auction{},
		&models.Bid{},
		&models.WatchedAuction{},
		&models.Notification{},
		&models.VerificationDocument{},
		&models.Payment{},
		&models.Image{},
	)
	if err != nil {
		return fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}
	return nil
}

// notify 在交易提交後把新建立的通知交給回呼
func (s *Store) notify(n *models.Notification) {
	if s.opts.notifier == nil || n == nil {
		return
	}
	s.opts.notifier(*n)
}

func (s *Store) priceKey(auctionID string) string {
	return fmt.Sprintf("%sauction:%s:price", s.opts.keyPrefix, auctionID)
}

func (s *Store) lockKey(auctionID string) string {
	return fmt.Sprintf("%sauction:%s:lock", s.opts.keyPrefix, auctionID)
}
