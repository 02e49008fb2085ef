package withdrawal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/pkg/logger"
)

type MockRequestStore struct {
	mock.Mock
}

func (m *MockRequestStore) CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.WithdrawalRequest) error {
	args := m.Called(ctx, tx, withdrawal)
	return args.Error(0)
}

func (m *MockRequestStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithdrawalRequest), args.Error(1)
}

func (m *MockRequestStore) ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.WithdrawalRequest, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithdrawalRequest), args.Error(1)
}

func (m *MockRequestStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockRequestStore) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus) error {
	args := m.Called(ctx, tx, id, from, to)
	return args.Error(0)
}

func (m *MockRequestStore) SetAdminNoteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, note string) error {
	args := m.Called(ctx, tx, id, note)
	return args.Error(0)
}

type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) IncrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error {
	args := m.Called(ctx, tx, userID, token, amount)
	return args.Error(0)
}

func (m *MockLedgerStore) DecrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error {
	args := m.Called(ctx, tx, userID, token, amount)
	return args.Error(0)
}

func (m *MockLedgerStore) InsertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *entities.LedgerTransaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func newTestService() (*Service, *MockRequestStore, *MockLedgerStore) {
	requests := new(MockRequestStore)
	ledger := new(MockLedgerStore)
	return NewService(nil, requests, ledger, logger.NewNop()), requests, ledger
}

// passthroughTx runs the transaction body against the mocks with a nil tx
// handle, so the debit/request and refund paths execute without a database.
func passthroughTx(service *Service) {
	service.runTx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return fn(nil)
	}
}

func TestCreateDebitsBalanceAndRecordsLedger(t *testing.T) {
	service, requests, ledger := newTestService()
	passthroughTx(service)

	userID := uuid.New()
	amount := decimal.RequireFromString("25.5")

	ledger.On("DecrementBalanceTx", mock.Anything, mock.Anything, userID, "0xcontract", amount).
		Return(nil)
	ledger.On("InsertTransactionTx", mock.Anything, mock.Anything, mock.MatchedBy(func(txn *entities.LedgerTransaction) bool {
		return txn.ID != uuid.Nil &&
			txn.Kind == entities.TransactionKindWithdrawal &&
			txn.Amount.Equal(amount.Neg()) &&
			txn.Description != ""
	})).Return(nil)
	requests.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(r *entities.WithdrawalRequest) bool {
		return r.Status == entities.WithdrawalStatusPending && r.Amount.Equal(amount)
	})).Return(nil)

	request, err := service.Create(context.Background(), CreateParams{
		UserID:  userID,
		Chain:   "bsc",
		Token:   "0xcontract",
		Address: "0xpayout",
		Amount:  amount,
	})

	assert.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, request.Status)
	ledger.AssertExpectations(t)
	requests.AssertExpectations(t)
}

func TestCreateInsufficientBalanceCreatesNothing(t *testing.T) {
	service, requests, ledger := newTestService()
	passthroughTx(service)

	userID := uuid.New()
	ledger.On("DecrementBalanceTx", mock.Anything, mock.Anything, userID, "0xcontract", mock.Anything).
		Return(errors.New("insufficient balance for user " + userID.String()))

	_, err := service.Create(context.Background(), CreateParams{
		UserID:  userID,
		Chain:   "bsc",
		Token:   "0xcontract",
		Address: "0xpayout",
		Amount:  decimal.NewFromInt(10),
	})

	assert.Error(t, err)
	requests.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "InsertTransactionTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectRefundsDebitInSameTransaction(t *testing.T) {
	service, requests, ledger := newTestService()
	passthroughTx(service)

	id := uuid.New()
	userID := uuid.New()
	amount := decimal.RequireFromString("40")

	requests.On("GetByID", mock.Anything, id).Return(&entities.WithdrawalRequest{
		ID:     id,
		UserID: userID,
		Token:  "0xcontract",
		Amount: amount,
		Status: entities.WithdrawalStatusPending,
	}, nil)
	requests.On("UpdateStatusTx", mock.Anything, mock.Anything, id,
		entities.WithdrawalStatusPending, entities.WithdrawalStatusRejected).Return(nil)
	requests.On("SetAdminNoteTx", mock.Anything, mock.Anything, id, "over limit").Return(nil)
	ledger.On("IncrementBalanceTx", mock.Anything, mock.Anything, userID, "0xcontract", amount).
		Return(nil)
	ledger.On("InsertTransactionTx", mock.Anything, mock.Anything, mock.MatchedBy(func(txn *entities.LedgerTransaction) bool {
		return txn.ID != uuid.Nil &&
			txn.Kind == entities.TransactionKindWithdrawal &&
			txn.Amount.Equal(amount) &&
			txn.IdempotencyKey == "withdrawal-reject:"+id.String()
	})).Return(nil)

	assert.NoError(t, service.Reject(context.Background(), id, "over limit"))
	ledger.AssertExpectations(t)
	requests.AssertExpectations(t)
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	service, requests, _ := newTestService()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := service.Create(context.Background(), CreateParams{
			UserID:  uuid.New(),
			Chain:   "bsc",
			Token:   "0xcontract",
			Address: "0xpayout",
			Amount:  amount,
		})
		assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	}
	requests.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRejectsMissingAddress(t *testing.T) {
	service, _, ledger := newTestService()

	_, err := service.Create(context.Background(), CreateParams{
		UserID: uuid.New(),
		Chain:  "bsc",
		Token:  "0xcontract",
		Amount: decimal.NewFromInt(10),
	})

	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	ledger.AssertNotCalled(t, "DecrementBalanceTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateTruncatesDustBelowEightDecimals(t *testing.T) {
	service, _, _ := newTestService()

	// Truncation leaves zero, which must fail validation rather than
	// creating a zero-amount request.
	_, err := service.Create(context.Background(), CreateParams{
		UserID:  uuid.New(),
		Chain:   "bsc",
		Token:   "0xcontract",
		Address: "0xpayout",
		Amount:  decimal.RequireFromString("0.000000001"),
	})

	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestApproveDelegatesGuardedTransition(t *testing.T) {
	service, requests, _ := newTestService()
	id := uuid.New()

	requests.On("UpdateStatus", mock.Anything, id,
		entities.WithdrawalStatusPending, entities.WithdrawalStatusApproved).Return(nil)

	assert.NoError(t, service.Approve(context.Background(), id))
	requests.AssertExpectations(t)
}

func TestApprovePropagatesConflict(t *testing.T) {
	service, requests, _ := newTestService()
	id := uuid.New()

	requests.On("UpdateStatus", mock.Anything, id,
		entities.WithdrawalStatusPending, entities.WithdrawalStatusApproved).
		Return(errors.New("withdrawal request not in expected state"))

	assert.Error(t, service.Approve(context.Background(), id))
}

func TestRejectRequiresPendingState(t *testing.T) {
	service, requests, ledger := newTestService()
	id := uuid.New()

	requests.On("GetByID", mock.Anything, id).Return(&entities.WithdrawalRequest{
		ID:     id,
		Status: entities.WithdrawalStatusApproved,
	}, nil)

	err := service.Reject(context.Background(), id, "too large")

	assert.Error(t, err)
	ledger.AssertNotCalled(t, "IncrementBalanceTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectUnknownRequest(t *testing.T) {
	service, requests, _ := newTestService()
	id := uuid.New()

	requests.On("GetByID", mock.Anything, id).Return(nil, errors.New("sql: no rows in result set"))

	assert.Error(t, service.Reject(context.Background(), id, ""))
}

func TestListByStatusRejectsUnknownStatus(t *testing.T) {
	service, requests, _ := newTestService()

	_, err := service.ListByStatus(context.Background(), entities.WithdrawalStatus("bogus"), 50)

	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	requests.AssertNotCalled(t, "ListByStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestListByStatusPassesThrough(t *testing.T) {
	service, requests, _ := newTestService()

	expected := []*entities.WithdrawalRequest{{ID: uuid.New()}}
	requests.On("ListByStatus", mock.Anything, entities.WithdrawalStatusPending, 50).Return(expected, nil)

	got, err := service.ListByStatus(context.Background(), entities.WithdrawalStatusPending, 50)

	assert.NoError(t, err)
	assert.Equal(t, expected, got)
}
