package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/domain/services/ingest"
	"github.com/vestra/chain_service/pkg/logger"
	"github.com/vestra/chain_service/pkg/retry"
)

// TransferNotification is one transfer log inside a webhook delivery
type TransferNotification struct {
	TxHash      string `json:"tx_hash" validate:"required"`
	LogIndex    int64  `json:"log_index" validate:"min=0"`
	BlockNumber int64  `json:"block_number" validate:"required,gt=0"`
	From        string `json:"from"`
	To          string `json:"to" validate:"required"`
	Contract    string `json:"contract" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

// DepositWebhookPayload is the provider-shaped delivery body
type DepositWebhookPayload struct {
	Chain     string                 `json:"chain" validate:"required"`
	StreamID  string                 `json:"stream_id"`
	Confirmed bool                   `json:"confirmed"`
	Transfers []TransferNotification `json:"transfers" validate:"required,dive"`
}

// DepositWebhookHandlers handles the push ingestion path
type DepositWebhookHandlers struct {
	ingestor      *ingest.Service
	validator     *validator.Validate
	webhookSecret string
	logger        *logger.Logger
}

// NewDepositWebhookHandlers creates a new DepositWebhookHandlers instance
func NewDepositWebhookHandlers(ingestor *ingest.Service, webhookSecret string, logger *logger.Logger) *DepositWebhookHandlers {
	return &DepositWebhookHandlers{
		ingestor:      ingestor,
		validator:     validator.New(),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// Liveness handles GET /deposits/webhook, used by the provider to verify
// the endpoint before enabling deliveries
func (h *DepositWebhookHandlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// Receive handles POST /deposits/webhook. Well-formed deliveries always
// get a 200, including duplicates and transfers that do not resolve to a
// user; the provider retries anything else, so 5xx is reserved for real
// storage failures.
func (h *DepositWebhookHandlers) Receive(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, "Failed to read request body")
		return
	}

	if err := h.verifySignature(c, rawBody); err != nil {
		h.logger.Warn("Webhook signature verification failed", "error", err)
		respondError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed", nil)
		return
	}

	var payload DepositWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, "Invalid webhook payload", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := h.validator.Struct(&payload); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	inserted := 0
	duplicates := 0
	ignored := 0

	for _, tn := range payload.Transfers {
		amount, err := decimal.NewFromString(tn.Amount)
		if err != nil {
			respondBadRequest(c, ErrCodeInvalidAmount,
				fmt.Sprintf("Invalid amount for tx %s", tn.TxHash))
			return
		}

		transfer := ingest.IncomingTransfer{
			Chain:       payload.Chain,
			Token:       tn.Contract,
			TxHash:      tn.TxHash,
			LogIndex:    tn.LogIndex,
			BlockNumber: tn.BlockNumber,
			To:          tn.To,
			Amount:      amount,
			Source:      entities.IngestionSourceStream,
		}

		// Deliveries for other chains or contracts are acknowledged and
		// dropped; the provider streams everything it watches.
		if !h.ingestor.Matches(transfer) {
			ignored++
			continue
		}

		var result *ingest.Result
		policy := retry.DefaultPolicy()
		policy.RetryableFunc = func(err error) bool {
			return !domainerrors.IsChainRead(err)
		}
		err = retry.Do(c.Request.Context(), policy, func() error {
			var processErr error
			result, processErr = h.ingestor.ProcessTransfer(c.Request.Context(), transfer)
			return processErr
		})
		if err != nil {
			h.logger.Error("Failed to process webhook transfer after retries",
				"tx_hash", tn.TxHash,
				"log_index", tn.LogIndex,
				"error", err)
			respondInternalError(c, ErrCodeWebhookFailed, "Failed to record deposit event")
			return
		}

		if result.Inserted {
			inserted++
		} else {
			duplicates++
		}
	}

	respondSuccess(c, gin.H{
		"status":     "processed",
		"inserted":   inserted,
		"duplicates": duplicates,
		"ignored":    ignored,
	})
}

// verifySignature checks the HMAC-SHA256 delivery signature when a secret
// is configured
func (h *DepositWebhookHandlers) verifySignature(c *gin.Context, body []byte) error {
	if h.webhookSecret == "" {
		return nil
	}

	signature := c.GetHeader("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
