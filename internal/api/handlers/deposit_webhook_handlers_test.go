package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/domain/services/ingest"
	"github.com/vestra/chain_service/internal/infrastructure/config"
	"github.com/vestra/chain_service/pkg/logger"
)

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

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Upsert(ctx context.Context, event *entities.ChainDepositEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCheckpointStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCheckpointStore) SetInt64(ctx context.Context, key string, value int64) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type webhookFixture struct {
	addresses   *MockAddressResolver
	events      *MockEventStore
	checkpoints *MockCheckpointStore
	handler     *DepositWebhookHandlers
	router      *gin.Engine
}

func newWebhookFixture(secret string) *webhookFixture {
	gin.SetMode(gin.TestMode)

	f := &webhookFixture{
		addresses:   new(MockAddressResolver),
		events:      new(MockEventStore),
		checkpoints: new(MockCheckpointStore),
	}
	ingestor := ingest.NewService(f.addresses, f.events, f.checkpoints, config.ChainConfig{
		Name:          "bsc",
		TokenContract: "0xcontract",
	}, logger.NewNop())
	f.handler = NewDepositWebhookHandlers(ingestor, secret, logger.NewNop())

	f.router = gin.New()
	f.router.GET("/deposits/webhook", f.handler.Liveness)
	f.router.POST("/deposits/webhook", f.handler.Receive)
	return f
}

func (f *webhookFixture) post(t *testing.T, body []byte, sign string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/deposits/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign != "" {
		mac := hmac.New(sha256.New, []byte(sign))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func webhookBody(transfers ...map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"chain":     "bsc",
		"stream_id": "stream-1",
		"confirmed": true,
		"transfers": transfers,
	})
	return body
}

func transferJSON(txHash, contract string) map[string]interface{} {
	return map[string]interface{}{
		"tx_hash":      txHash,
		"log_index":    0,
		"block_number": 1000,
		"to":           "0xDepositAddr",
		"contract":     contract,
		"amount":       "100.5",
	}
}

func TestWebhookLiveness(t *testing.T) {
	f := newWebhookFixture("")

	req := httptest.NewRequest(http.MethodGet, "/deposits/webhook", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newWebhookFixture("")

	rec := f.post(t, []byte("{not json"), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.events.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestWebhookMissingRequiredFields(t *testing.T) {
	f := newWebhookFixture("")

	body, _ := json.Marshal(map[string]interface{}{
		"chain": "bsc",
	})
	rec := f.post(t, body, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookInvalidAmount(t *testing.T) {
	f := newWebhookFixture("")

	tr := transferJSON("0xabc", "0xcontract")
	tr["amount"] = "not-a-number"
	rec := f.post(t, webhookBody(tr), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeInvalidAmount)
}

func TestWebhookResolvedTransferInserted(t *testing.T) {
	f := newWebhookFixture("")

	f.addresses.On("GetByAddress", mock.Anything, "bsc", "0xdepositaddr").
		Return(&entities.MonitoredAddress{ID: 7, UserID: uuid.New(), Address: "0xdepositaddr"}, nil)
	f.events.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
	f.checkpoints.On("SetInt64", mock.Anything, entities.CheckpointStreamLastUserID, int64(7)).Return(nil)

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xcontract")), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inserted":1`)
	f.checkpoints.AssertExpectations(t)
}

func TestWebhookDuplicateStillAcknowledged(t *testing.T) {
	f := newWebhookFixture("")

	f.addresses.On("GetByAddress", mock.Anything, "bsc", "0xdepositaddr").
		Return(&entities.MonitoredAddress{ID: 7, UserID: uuid.New()}, nil)
	f.events.On("Upsert", mock.Anything, mock.Anything).Return(false, nil)

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xcontract")), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicates":1`)
	f.checkpoints.AssertNotCalled(t, "SetInt64", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUnresolvedAddressStillAcknowledged(t *testing.T) {
	f := newWebhookFixture("")

	f.addresses.On("GetByAddress", mock.Anything, "bsc", "0xdepositaddr").
		Return(nil, domainerrors.ErrNotFound)
	f.events.On("Upsert", mock.Anything, mock.MatchedBy(func(e *entities.ChainDepositEvent) bool {
		return e.UserID == nil
	})).Return(true, nil)

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xcontract")), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inserted":1`)
}

func TestWebhookForeignContractIgnored(t *testing.T) {
	f := newWebhookFixture("")

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xsomeothercontract")), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":1`)
	f.events.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestWebhookSignatureRequired(t *testing.T) {
	f := newWebhookFixture("topsecret")
	body := webhookBody(transferJSON("0xabc", "0xcontract"))

	rec := f.post(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, body, "wrongsecret")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookValidSignatureAccepted(t *testing.T) {
	f := newWebhookFixture("topsecret")

	f.addresses.On("GetByAddress", mock.Anything, "bsc", "0xdepositaddr").
		Return(&entities.MonitoredAddress{ID: 7, UserID: uuid.New()}, nil)
	f.events.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)
	f.checkpoints.On("SetInt64", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xcontract")), "topsecret")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookStorageFailureIsServerError(t *testing.T) {
	f := newWebhookFixture("")

	f.addresses.On("GetByAddress", mock.Anything, "bsc", "0xdepositaddr").
		Return(&entities.MonitoredAddress{ID: 7, UserID: uuid.New()}, nil)
	f.events.On("Upsert", mock.Anything, mock.Anything).Return(false, errors.New("connection reset"))

	rec := f.post(t, webhookBody(transferJSON("0xabc", "0xcontract")), "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeWebhookFailed)
}
