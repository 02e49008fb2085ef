package chainrpc

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents chain RPC client configuration
type Config struct {
	Chain         string
	RPCURL        string
	TokenContract string
	TokenDecimals int
	Timeout       time.Duration
}

// TransferLog is one decoded ERC-20 Transfer log
type TransferLog struct {
	TxHash      string
	LogIndex    int64
	BlockNumber int64
	From        string
	To          string
	Amount      decimal.Decimal
}

// Receipt is the subset of a transaction receipt confirmation tracking needs
type Receipt struct {
	TxHash      string
	BlockNumber int64
	Succeeded   bool
}

// rpcRequest is a JSON-RPC 2.0 request envelope
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rawLog is an eth_getLogs entry before decoding
type rawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// rawReceipt is an eth_getTransactionReceipt result before decoding
type rawReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	Status      string `json:"status"`
}
