package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Node-side RPC errors are returned immediately; only transport failures
// are retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ChainID retrieves the chain id of the connected network.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	return decodeQuantityBig(result)
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return decodeQuantity(result)
}

// Balance retrieves the wei balance of an address at the latest block.
func (c *HTTPClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"}, &result); err != nil {
		return nil, err
	}
	return decodeQuantityBig(result)
}

// NonceAt retrieves the pending-state transaction count of an address.
// Pending state is used so that back-to-back submissions do not reuse a
// nonce.
func (c *HTTPClient) NonceAt(ctx context.Context, address string) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_getTransactionCount", []interface{}{address, "pending"}, &result); err != nil {
		return 0, err
	}
	return decodeQuantity(result)
}

// GasPrice retrieves the current gas price suggestion.
func (c *HTTPClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	return decodeQuantityBig(result)
}

// EstimateGas estimates the gas needed for a call.
func (c *HTTPClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_estimateGas", []interface{}{callMsgParam(msg)}, &result); err != nil {
		return 0, err
	}
	return decodeQuantity(result)
}

// Call executes a read-only contract call at the latest block.
func (c *HTTPClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var result string
	if err := c.call(ctx, "eth_call", []interface{}{callMsgParam(msg), "latest"}, &result); err != nil {
		return nil, err
	}
	return decodeHexBytes(result)
}

// SendRawTransaction broadcasts a signed transaction, returning its hash.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var result string
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{"0x" + hex.EncodeToString(raw)}, &result); err != nil {
		return "", err
	}
	return result, nil
}

// TransactionReceipt retrieves the receipt of a mined transaction.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var result *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrReceiptNotFound
	}

	status, err := decodeQuantity(result.Status)
	if err != nil {
		return nil, fmt.Errorf("decode receipt status: %w", err)
	}
	blockNumber, err := decodeQuantity(result.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("decode receipt block number: %w", err)
	}
	gasUsed, err := decodeQuantity(result.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("decode receipt gas used: %w", err)
	}

	receipt := &Receipt{
		TxHash:      result.TransactionHash,
		Status:      status,
		BlockNumber: blockNumber,
		GasUsed:     gasUsed,
	}
	for _, l := range result.Logs {
		receipt.Logs = append(receipt.Logs, Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return receipt, nil
}

// rpcReceipt is the raw RPC response for eth_getTransactionReceipt.
type rpcReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	Status          string   `json:"status"`
	BlockNumber     string   `json:"blockNumber"`
	GasUsed         string   `json:"gasUsed"`
	Logs            []rpcLog `json:"logs"`
}

type rpcLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// callMsgParam converts a CallMsg to the JSON-RPC call object.
func callMsgParam(msg CallMsg) map[string]interface{} {
	param := map[string]interface{}{}
	if msg.From != "" {
		param["from"] = msg.From
	}
	if msg.To != "" {
		param["to"] = msg.To
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		param["value"] = "0x" + msg.Value.Text(16)
	}
	if len(msg.Data) > 0 {
		param["data"] = "0x" + hex.EncodeToString(msg.Data)
	}
	return param
}

// decodeQuantity parses a 0x-prefixed hex quantity into a uint64.
func decodeQuantity(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

// decodeQuantityBig parses a 0x-prefixed hex quantity into a big.Int.
func decodeQuantityBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}

// decodeHexBytes parses 0x-prefixed hex data into raw bytes.
func decodeHexBytes(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}
