package reconciliation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vestra/chain_service/internal/domain/entities"
	"github.com/vestra/chain_service/pkg/logger"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ListUnresolved(ctx context.Context, limit int) ([]*entities.ChainDepositEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ChainDepositEvent), args.Error(1)
}

func (m *MockEventStore) ResolveUser(ctx context.Context, chain, address string, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, chain, address, userID)
	return args.Get(0).(int64), args.Error(1)
}

type MockAddressResolver struct {
	mock.Mock
}

func (m *MockAddressResolver) GetByAddress(ctx context.Context, chain, address string) (*entities.MonitoredAddress, error) {
	args := m.Called(ctx, chain, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MonitoredAddress), args.Error(1)
}

func orphanEvent(address string) *entities.ChainDepositEvent {
	return &entities.ChainDepositEvent{
		Chain:   "bsc",
		Token:   "0xcontract",
		Address: address,
		TxHash:  "0x" + address,
	}
}

func TestSweepResolvesLateRegistrations(t *testing.T) {
	events := new(MockEventStore)
	addresses := new(MockAddressResolver)
	service := NewService(events, addresses, 500, logger.NewNop())

	userID := uuid.New()
	events.On("ListUnresolved", mock.Anything, 500).
		Return([]*entities.ChainDepositEvent{orphanEvent("0xaaa")}, nil)
	addresses.On("GetByAddress", mock.Anything, "bsc", "0xaaa").
		Return(&entities.MonitoredAddress{UserID: userID, Address: "0xaaa"}, nil)
	events.On("ResolveUser", mock.Anything, "bsc", "0xaaa", userID).Return(int64(3), nil)

	result, err := service.Sweep(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, int64(3), result.Resolved)
	assert.Equal(t, 0, result.Unresolved)
}

func TestSweepDedupesByAddress(t *testing.T) {
	events := new(MockEventStore)
	addresses := new(MockAddressResolver)
	service := NewService(events, addresses, 500, logger.NewNop())

	userID := uuid.New()
	events.On("ListUnresolved", mock.Anything, 500).
		Return([]*entities.ChainDepositEvent{
			orphanEvent("0xaaa"),
			orphanEvent("0xaaa"),
			orphanEvent("0xaaa"),
		}, nil)
	addresses.On("GetByAddress", mock.Anything, "bsc", "0xaaa").
		Return(&entities.MonitoredAddress{UserID: userID}, nil).Once()
	events.On("ResolveUser", mock.Anything, "bsc", "0xaaa", userID).Return(int64(3), nil).Once()

	result, err := service.Sweep(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, int64(3), result.Resolved)
	addresses.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestSweepLeavesUnregisteredAddressesAlone(t *testing.T) {
	events := new(MockEventStore)
	addresses := new(MockAddressResolver)
	service := NewService(events, addresses, 500, logger.NewNop())

	events.On("ListUnresolved", mock.Anything, 500).
		Return([]*entities.ChainDepositEvent{orphanEvent("0xbbb")}, nil)
	addresses.On("GetByAddress", mock.Anything, "bsc", "0xbbb").
		Return(nil, errors.New("not found"))

	result, err := service.Sweep(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Unresolved)
	events.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepListFailure(t *testing.T) {
	events := new(MockEventStore)
	addresses := new(MockAddressResolver)
	service := NewService(events, addresses, 500, logger.NewNop())

	events.On("ListUnresolved", mock.Anything, 500).Return(nil, errors.New("connection reset"))

	_, err := service.Sweep(context.Background())

	assert.Error(t, err)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	service := NewService(new(MockEventStore), new(MockAddressResolver), 500, logger.NewNop())

	assert.Error(t, service.Schedule("not a cron spec"))
}
