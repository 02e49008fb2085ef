package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vestra/chain_service/pkg/logger"
)

// SignerConfig configures the transfer submission endpoint. Key custody
// lives behind this endpoint, not in this service.
type SignerConfig struct {
	URL           string
	TokenContract string
	FromAddress   string
	Timeout       time.Duration
}

// SignerClient submits signed token transfers through the external signer
type SignerClient struct {
	config     SignerConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewSignerClient creates a new signer client
func NewSignerClient(config SignerConfig, logger *logger.Logger) *SignerClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &SignerClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type submitTransferRequest struct {
	TokenContract string `json:"token_contract"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
}

type submitTransferResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// SubmitTransfer asks the signer to send amount of the configured token to
// the destination address. Returns the submitted transaction hash.
func (c *SignerClient) SubmitTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	reqBody, err := json.Marshal(submitTransferRequest{
		TokenContract: c.config.TokenContract,
		From:          c.config.FromAddress,
		To:            to,
		Amount:        amount.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/transfers", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	var result submitTransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transfer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signer returned status %d: %s", resp.StatusCode, result.Error)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("signer returned no tx hash: %s", result.Error)
	}

	c.logger.Info("Transfer submitted",
		"to", to,
		"amount", amount.String(),
		"tx_hash", result.TxHash,
	)

	return result.TxHash, nil
}
