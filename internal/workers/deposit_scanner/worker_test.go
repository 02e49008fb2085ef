package deposit_scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vestra/chain_service/internal/adapters/chainrpc"
	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/domain/services/ingest"
	"github.com/vestra/chain_service/pkg/logger"
)

type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) CurrentHead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChainReader) TransferLogs(ctx context.Context, address string, fromBlock, toBlock int64) ([]chainrpc.TransferLog, error) {
	args := m.Called(ctx, address, fromBlock, toBlock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chainrpc.TransferLog), args.Error(1)
}

type MockAddressStore struct {
	mock.Mock
}

func (m *MockAddressStore) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*entities.MonitoredAddress, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.MonitoredAddress), args.Error(1)
}

type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) GetInt64(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCheckpointStore) SetInt64(ctx context.Context, key string, value int64) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) MaxBlockForAddress(ctx context.Context, chain, address string) (int64, error) {
	args := m.Called(ctx, chain, address)
	return args.Get(0).(int64), args.Error(1)
}

type MockScanLogStore struct {
	mock.Mock
	logs []*entities.ScanLog
}

func (m *MockScanLogStore) Create(ctx context.Context, log *entities.ScanLog) error {
	m.logs = append(m.logs, log)
	args := m.Called(ctx, log)
	return args.Error(0)
}

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) ProcessTransfer(ctx context.Context, t ingest.IncomingTransfer) (*ingest.Result, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

type scannerFixture struct {
	reader      *MockChainReader
	addresses   *MockAddressStore
	checkpoints *MockCheckpointStore
	events      *MockEventStore
	scanLogs    *MockScanLogStore
	ingestor    *MockIngestor
	worker      *Worker
}

func newScannerFixture() *scannerFixture {
	f := &scannerFixture{
		reader:      new(MockChainReader),
		addresses:   new(MockAddressStore),
		checkpoints: new(MockCheckpointStore),
		events:      new(MockEventStore),
		scanLogs:    new(MockScanLogStore),
		ingestor:    new(MockIngestor),
	}
	f.worker = NewWorker(f.reader, f.addresses, f.checkpoints, f.events, f.scanLogs, f.ingestor, &Config{
		Chain:           "bsc",
		Token:           "0xcontract",
		Confirmations:   12,
		MaxRangePerCall: 2000,
		BatchSize:       50,
	}, logger.NewNop())
	return f
}

func testAddress(id int64) *entities.MonitoredAddress {
	return &entities.MonitoredAddress{
		ID:      id,
		UserID:  uuid.New(),
		Chain:   "bsc",
		Token:   "0xcontract",
		Address: "0xdeposit",
	}
}

func TestScanAddressSuccessAdvancesCursor(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(1)

	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(1)).Return(int64(900), nil)
	f.reader.On("TransferLogs", mock.Anything, "0xdeposit", int64(901), int64(1000)).
		Return([]chainrpc.TransferLog{
			{TxHash: "0xabc", LogIndex: 0, BlockNumber: 950, To: "0xdeposit", Amount: decimal.NewFromInt(100)},
		}, nil)
	f.ingestor.On("ProcessTransfer", mock.Anything, mock.MatchedBy(func(tr ingest.IncomingTransfer) bool {
		return tr.Source == entities.IngestionSourcePoll && tr.TxHash == "0xabc"
	})).Return(&ingest.Result{Inserted: true}, nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.ScanCursorKey(1), int64(1000)).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 1012, 1000)

	assert.Equal(t, entities.ScanStatusSuccess, status)
	if assert.Len(t, f.scanLogs.logs, 1) {
		log := f.scanLogs.logs[0]
		assert.Equal(t, entities.ScanStatusSuccess, log.Status)
		assert.Equal(t, int64(900), log.CursorBefore)
		assert.Equal(t, int64(1000), log.CursorAfter)
		assert.Equal(t, int64(901), log.FromBlock)
		assert.Equal(t, int64(1000), log.ToBlock)
		assert.Equal(t, 1, log.LogsFound)
	}
	f.checkpoints.AssertExpectations(t)
}

func TestScanAddressCapsRangePerCall(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(1)

	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(1)).Return(int64(1000), nil)
	// safeToBlock is far ahead; the call must stop at cursor + max range.
	f.reader.On("TransferLogs", mock.Anything, "0xdeposit", int64(1001), int64(3000)).
		Return([]chainrpc.TransferLog{}, nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.ScanCursorKey(1), int64(3000)).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 100012, 100000)

	assert.Equal(t, entities.ScanStatusSuccess, status)
	f.reader.AssertExpectations(t)
}

func TestScanAddressUpToDate(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(1)

	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(1)).Return(int64(1000), nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 1012, 1000)

	assert.Equal(t, entities.ScanStatusUpToDate, status)
	f.reader.AssertNotCalled(t, "TransferLogs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.checkpoints.AssertNotCalled(t, "SetInt64", mock.Anything, mock.Anything, mock.Anything)
}

func TestScanAddressOtherChainSkipped(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(1)
	addr.Chain = "eth"

	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 1012, 1000)

	assert.Equal(t, entities.ScanStatusSkipped, status)
	if assert.Len(t, f.scanLogs.logs, 1) {
		log := f.scanLogs.logs[0]
		assert.Equal(t, entities.ScanStatusSkipped, log.Status)
		assert.NotNil(t, log.Reason)
	}
	f.reader.AssertNotCalled(t, "TransferLogs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.checkpoints.AssertNotCalled(t, "GetInt64", mock.Anything, mock.Anything)
}

func TestRunCycleSkippedAddressAdvancesPollCheckpoint(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(3)
	addr.Chain = "eth"

	f.reader.On("CurrentHead", mock.Anything).Return(int64(1012), nil)
	f.checkpoints.On("GetInt64", mock.Anything, entities.CheckpointPollLastUserID).Return(int64(0), nil)
	f.addresses.On("ListAfterID", mock.Anything, int64(0), 50).
		Return([]*entities.MonitoredAddress{addr}, nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.CheckpointPollLastUserID, int64(3)).Return(nil)

	idle := f.worker.runCycle(context.Background())

	// A foreign-chain address neither blocks the batch walk nor keeps the
	// worker off the idle interval.
	assert.True(t, idle)
	f.checkpoints.AssertExpectations(t)
}

func TestScanAddressChainErrorLeavesCursorUnchanged(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(1)

	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(1)).Return(int64(900), nil)
	f.reader.On("TransferLogs", mock.Anything, "0xdeposit", int64(901), int64(1000)).
		Return(nil, domainerrors.NewChainReadError("https://rpc", "eth_getLogs", errors.New("timeout")))
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 1012, 1000)

	assert.Equal(t, entities.ScanStatusError, status)
	f.checkpoints.AssertNotCalled(t, "SetInt64", mock.Anything, mock.Anything, mock.Anything)
	if assert.Len(t, f.scanLogs.logs, 1) {
		log := f.scanLogs.logs[0]
		assert.Equal(t, entities.ScanStatusError, log.Status)
		// Retry contract: next cycle scans the identical range.
		assert.Equal(t, log.CursorBefore, log.CursorAfter)
		assert.NotNil(t, log.ErrorCode)
		assert.Equal(t, "CHAIN_READ_ERROR", *log.ErrorCode)
	}
}

func TestScanAddressSeedsCursorFromEventTable(t *testing.T) {
	f := newScannerFixture()
	addr := testAddress(3)

	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(3)).Return(int64(0), nil)
	f.events.On("MaxBlockForAddress", mock.Anything, "bsc", "0xdeposit").Return(int64(950), nil)
	f.reader.On("TransferLogs", mock.Anything, "0xdeposit", int64(951), int64(1000)).
		Return([]chainrpc.TransferLog{}, nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.ScanCursorKey(3), int64(1000)).Return(nil)

	status := f.worker.scanAddress(context.Background(), addr, 1012, 1000)

	assert.Equal(t, entities.ScanStatusSuccess, status)
	f.events.AssertExpectations(t)
}

func TestRunCycleAdvancesPollCheckpointPerAddress(t *testing.T) {
	f := newScannerFixture()

	f.reader.On("CurrentHead", mock.Anything).Return(int64(1012), nil)
	f.checkpoints.On("GetInt64", mock.Anything, entities.CheckpointPollLastUserID).Return(int64(0), nil)
	f.addresses.On("ListAfterID", mock.Anything, int64(0), 50).
		Return([]*entities.MonitoredAddress{testAddress(1), testAddress(2)}, nil)

	// Both addresses already at the horizon.
	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(1)).Return(int64(1000), nil)
	f.checkpoints.On("GetInt64", mock.Anything, entities.ScanCursorKey(2)).Return(int64(1000), nil)
	f.scanLogs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.CheckpointPollLastUserID, int64(1)).Return(nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.CheckpointPollLastUserID, int64(2)).Return(nil)

	idle := f.worker.runCycle(context.Background())

	assert.True(t, idle)
	f.checkpoints.AssertExpectations(t)
}

func TestRunCycleHeadFailureSkipsScanning(t *testing.T) {
	f := newScannerFixture()

	f.reader.On("CurrentHead", mock.Anything).
		Return(int64(0), domainerrors.NewChainReadError("https://rpc", "eth_blockNumber", errors.New("refused")))

	idle := f.worker.runCycle(context.Background())

	assert.False(t, idle)
	f.addresses.AssertNotCalled(t, "ListAfterID", mock.Anything, mock.Anything, mock.Anything)
}
