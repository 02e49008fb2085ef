// Package chainrpc is a thin client over a JSON-RPC endpoint for the
// monitored token contract. It is safe for concurrent use. Transient
// failures come back as ChainReadError; callers own backoff and must not
// advance checkpoints on failure. No retry logic lives here.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/pkg/logger"
)

// transferTopic is keccak256("Transfer(address,address,uint256)")
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Client talks JSON-RPC to the configured chain endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
	reqID      atomic.Int64
}

// NewClient creates a new chain RPC client
func NewClient(config Config, logger *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// CurrentHead returns the latest block number
func (c *Client) CurrentHead(ctx context.Context) (int64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}

	head, err := parseHexInt(result)
	if err != nil {
		return 0, domainerrors.NewChainReadError(c.config.RPCURL, "eth_blockNumber", err)
	}

	return head, nil
}

// TransferLogs fetches decoded token transfers into the given address over
// the inclusive block range
func (c *Client) TransferLogs(ctx context.Context, address string, fromBlock, toBlock int64) ([]TransferLog, error) {
	params := []interface{}{
		map[string]interface{}{
			"address":   c.config.TokenContract,
			"fromBlock": toHex(fromBlock),
			"toBlock":   toHex(toBlock),
			"topics": []interface{}{
				transferTopic,
				nil,
				addressTopic(address),
			},
		},
	}

	var raws []rawLog
	if err := c.call(ctx, "eth_getLogs", params, &raws); err != nil {
		return nil, err
	}

	logs := make([]TransferLog, 0, len(raws))
	for _, raw := range raws {
		if raw.Removed {
			continue
		}
		decoded, err := c.decodeTransfer(raw)
		if err != nil {
			c.logger.Warn("Skipping undecodable transfer log",
				"tx_hash", raw.TxHash,
				"error", err,
			)
			continue
		}
		logs = append(logs, decoded)
	}

	return logs, nil
}

// TransactionReceipt returns the receipt for a submitted transaction, or
// nil if the transaction is not yet mined
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var raw *rawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.BlockNumber == "" {
		return nil, nil
	}

	blockNumber, err := parseHexInt(raw.BlockNumber)
	if err != nil {
		return nil, domainerrors.NewChainReadError(c.config.RPCURL, "eth_getTransactionReceipt", err)
	}

	return &Receipt{
		TxHash:      raw.TxHash,
		BlockNumber: blockNumber,
		Succeeded:   raw.Status == "0x1",
	}, nil
}

// decodeTransfer converts a raw log into a TransferLog with the amount
// scaled to token units
func (c *Client) decodeTransfer(raw rawLog) (TransferLog, error) {
	if len(raw.Topics) < 3 {
		return TransferLog{}, fmt.Errorf("transfer log has %d topics, want 3", len(raw.Topics))
	}

	blockNumber, err := parseHexInt(raw.BlockNumber)
	if err != nil {
		return TransferLog{}, fmt.Errorf("parse block number: %w", err)
	}

	logIndex, err := parseHexInt(raw.LogIndex)
	if err != nil {
		return TransferLog{}, fmt.Errorf("parse log index: %w", err)
	}

	value, ok := new(big.Int).SetString(strings.TrimPrefix(raw.Data, "0x"), 16)
	if !ok {
		return TransferLog{}, fmt.Errorf("parse transfer value %q", raw.Data)
	}

	return TransferLog{
		TxHash:      raw.TxHash,
		LogIndex:    logIndex,
		BlockNumber: blockNumber,
		From:        topicAddress(raw.Topics[1]),
		To:          topicAddress(raw.Topics[2]),
		Amount:      decimal.NewFromBigInt(value, -int32(c.config.TokenDecimals)),
	}, nil
}

// call performs one JSON-RPC request. Any transport or protocol failure
// surfaces as a ChainReadError.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.reqID.Add(1)),
	})
	if err != nil {
		return domainerrors.NewChainReadError(c.config.RPCURL, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(reqBody))
	if err != nil {
		return domainerrors.NewChainReadError(c.config.RPCURL, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.NewChainReadError(c.config.RPCURL, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domainerrors.NewChainReadError(c.config.RPCURL, method,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domainerrors.NewChainReadError(c.config.RPCURL, method, err)
	}
	if envelope.Error != nil {
		return domainerrors.NewChainReadError(c.config.RPCURL, method,
			fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message))
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return domainerrors.NewChainReadError(c.config.RPCURL, method, err)
		}
	}

	return nil
}

func toHex(n int64) string {
	return fmt.Sprintf("0x%x", n)
}

func parseHexInt(s string) (int64, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("hex quantity %q overflows int64", s)
	}
	return n.Int64(), nil
}

// addressTopic left-pads a 20-byte address into a 32-byte topic
func addressTopic(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return "0x" + strings.Repeat("0", 64-len(addr)) + addr
}

// topicAddress extracts the 20-byte address from a 32-byte topic
func topicAddress(topic string) string {
	hex := strings.TrimPrefix(topic, "0x")
	if len(hex) < 40 {
		return "0x" + hex
	}
	return "0x" + hex[len(hex)-40:]
}
