package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towbid/adapters/eventbus"
	"towbid/models"
)

type mockStore struct {
	mu          sync.Mutex
	getCalls    int
	createCalls int
	auction     *models.Auction
	getErr      error
	createErr   error
	getFn       func(call int) (*models.Auction, error)
}

func (m *mockStore) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	m.mu.Lock()
	m.getCalls++
	call := m.getCalls
	fn := m.getFn
	getErr := m.getErr
	auction := m.auction
	m.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	if getErr != nil {
		return nil, getErr
	}
	return auction, nil
}

func (m *mockStore) CreateBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    models.BidPlaced,
	}, nil
}

func (m *mockStore) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.createCalls
}

type mockPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *mockPublisher) Send(eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

func (p *mockPublisher) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func activeAuction() *models.Auction {
	return &models.Auction{
		ID:              uuid.New(),
		Status:          models.AuctionActive,
		CurrentPrice:    5000,
		IncrementAmount: 100,
		EndTime:         time.Now().Add(time.Hour),
	}
}

func TestNewService(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		svc, err := NewService(nil, nil)
		assert.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("nil publisher is allowed", func(t *testing.T) {
		svc, err := NewService(&mockStore{}, nil, WithServiceLogger(discardLogger()))
		assert.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestService_PlaceBid_Validation(t *testing.T) {
	bidder := uuid.New()

	tests := []struct {
		name     string
		snapshot func() *models.Auction
		bidder   uuid.UUID
		amount   int64
		wantErr  error
	}{
		{
			name:     "anonymous bidder",
			snapshot: activeAuction,
			bidder:   uuid.Nil,
			amount:   5100,
			wantErr:  ErrUnauthenticated,
		},
		{
			name: "ended auction",
			snapshot: func() *models.Auction {
				a := activeAuction()
				a.Status = models.AuctionEnded
				return a
			},
			bidder:  bidder,
			amount:  5100,
			wantErr: ErrAuctionNotActive,
		},
		{
			name: "scheduled auction",
			snapshot: func() *models.Auction {
				a := activeAuction()
				a.Status = models.AuctionScheduled
				return a
			},
			bidder:  bidder,
			amount:  5100,
			wantErr: ErrAuctionNotActive,
		},
		{
			name:     "equal to current price",
			snapshot: activeAuction,
			bidder:   bidder,
			amount:   5000,
			wantErr:  ErrBidTooLow,
		},
		{
			name:     "below current price",
			snapshot: activeAuction,
			bidder:   bidder,
			amount:   4999,
			wantErr:  ErrBidTooLow,
		},
		{
			name:     "above current price but below minimum increment",
			snapshot: activeAuction,
			bidder:   bidder,
			amount:   5050,
			wantErr:  ErrBelowMinimumIncrement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			publisher := &mockPublisher{}
			svc, err := NewService(store, publisher, WithServiceLogger(discardLogger()))
			require.NoError(t, err)

			bid, err := svc.PlaceBid(context.Background(), tt.snapshot(), tt.bidder, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, bid)

			// 本地驗證失敗時不能碰儲存，也不能發事件
			gets, creates := store.calls()
			assert.Zero(t, gets)
			assert.Zero(t, creates)
			assert.Empty(t, publisher.sent())
		})
	}
}

func TestService_PlaceBid_Accepted(t *testing.T) {
	store := &mockStore{}
	publisher := &mockPublisher{}
	svc, err := NewService(store, publisher, WithServiceLogger(discardLogger()))
	require.NoError(t, err)

	snapshot := activeAuction()
	bidder := uuid.New()

	// 現價 5000、增額 100：5100 是最低可接受出價
	bid, err := svc.PlaceBid(context.Background(), snapshot, bidder, 5100)
	require.NoError(t, err)
	require.NotNil(t, bid)
	assert.Equal(t, snapshot.ID, bid.AuctionID)
	assert.Equal(t, bidder, bid.BidderID)
	assert.Equal(t, int64(5100), bid.Amount)

	_, creates := store.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, []string{eventbus.TopicPlaceBid}, publisher.sent())

	// 成立的出價立刻反映在本地快照上
	assert.Equal(t, int64(5100), snapshot.CurrentPrice)
	require.Len(t, snapshot.Bids, 1)
	assert.Equal(t, bid.ID, snapshot.Bids[0].ID)
}

func TestService_PlaceBid_StoreRejection(t *testing.T) {
	store := &mockStore{createErr: ErrBidRejected}
	svc, err := NewService(store, nil, WithServiceLogger(discardLogger()))
	require.NoError(t, err)

	// 本地快照過期：本地通過但儲存端用最新狀態擋下
	bid, err := svc.PlaceBid(context.Background(), activeAuction(), uuid.New(), 5100)
	assert.ErrorIs(t, err, ErrBidRejected)
	assert.Nil(t, bid)
}

func TestService_PlaceBid_PublishFailureIsNotFatal(t *testing.T) {
	store := &mockStore{}
	publisher := &mockPublisher{err: errors.New("channel unavailable")}
	svc, err := NewService(store, publisher, WithServiceLogger(discardLogger()))
	require.NoError(t, err)

	bid, err := svc.PlaceBid(context.Background(), activeAuction(), uuid.New(), 5100)
	assert.NoError(t, err)
	assert.NotNil(t, bid)
}

func TestService_PublishBidUpdate(t *testing.T) {
	publisher := &mockPublisher{}
	svc, err := NewService(&mockStore{}, publisher, WithServiceLogger(discardLogger()))
	require.NoError(t, err)

	svc.PublishBidUpdate(&models.Bid{
		ID:        uuid.New(),
		AuctionID: uuid.New(),
		BidderID:  uuid.New(),
		Amount:    5100,
		Status:    models.BidPlaced,
	})
	assert.Equal(t, []string{eventbus.TopicBidUpdate}, publisher.sent())

	svc.PublishBidUpdate(nil)
	assert.Len(t, publisher.sent(), 1)
}
