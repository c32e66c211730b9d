package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tipchain/core/types"
	"tipchain/crypto"
	"tipchain/native/tipping"
	"tipchain/rpc"
)

// ErrNoResult is returned when the server answers without result or error.
var ErrNoResult = errors.New("rpc client: empty response")

// Client talks JSON-RPC to a tipd node.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      string
	nextID     atomic.Int64
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBearerToken attaches a faucet token to every call.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize signs and submits tip_initialize for the key's address.
func (c *Client) Initialize(ctx context.Context, key *crypto.PrivateKey, creator [20]byte, nonce uint64) (*rpc.SubmitResult, error) {
	return c.submit(ctx, "tip_initialize", key, &types.TipRequest{
		Kind:    types.RequestInitialize,
		Nonce:   nonce,
		Creator: creator,
	})
}

// SendTip signs and submits tip_send.
func (c *Client) SendTip(ctx context.Context, key *crypto.PrivateKey, creator [20]byte, amount, nonce uint64) (*rpc.SubmitResult, error) {
	return c.submit(ctx, "tip_send", key, &types.TipRequest{
		Kind:    types.RequestSendTip,
		Nonce:   nonce,
		Creator: creator,
		Amount:  amount,
	})
}

func (c *Client) submit(ctx context.Context, method string, key *crypto.PrivateKey, req *types.TipRequest) (*rpc.SubmitResult, error) {
	if key == nil {
		return nil, errors.New("rpc client: signing key required")
	}
	req.Tipper = key.PubKey().Address().Array()
	if err := req.Sign(key); err != nil {
		return nil, err
	}
	params := rpc.SignedRequestParams{
		Tipper:    crypto.FormatAddress(req.Tipper),
		Creator:   crypto.FormatAddress(req.Creator),
		Nonce:     req.Nonce,
		Signature: "0x" + hex.EncodeToString(req.Signature),
	}
	if req.Kind == types.RequestSendTip {
		params.Amount = strconv.FormatUint(req.Amount, 10)
	}
	var out rpc.SubmitResult
	if err := c.call(ctx, method, []interface{}{params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TipAccount fetches the tip account owned by tipper.
func (c *Client) TipAccount(ctx context.Context, tipper [20]byte) (*rpc.TipAccountResult, error) {
	var out rpc.TipAccountResult
	if err := c.call(ctx, "tip_getAccount", []interface{}{crypto.FormatAddress(tipper)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the balance of addr.
func (c *Client) Balance(ctx context.Context, addr [20]byte) (*big.Int, error) {
	var out rpc.BalanceResult
	if err := c.call(ctx, "tip_getBalance", []interface{}{crypto.FormatAddress(addr)}, &out); err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(out.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("rpc client: invalid balance %q", out.Balance)
	}
	return balance, nil
}

// Nonce returns the next request nonce for addr.
func (c *Client) Nonce(ctx context.Context, addr [20]byte) (uint64, error) {
	var out uint64
	if err := c.call(ctx, "tip_getNonce", []interface{}{crypto.FormatAddress(addr)}, &out); err != nil {
		return 0, err
	}
	return out, nil
}

// Airdrop requests faucet funds. The client must carry a faucet token.
func (c *Client) Airdrop(ctx context.Context, addr [20]byte, amount uint64) (*rpc.BalanceResult, error) {
	var out rpc.BalanceResult
	params := rpc.AirdropParams{Address: crypto.FormatAddress(addr), Amount: strconv.FormatUint(amount, 10)}
	if err := c.call(ctx, "tip_requestAirdrop", []interface{}{params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Receipts lists receipts matching params.
func (c *Client) Receipts(ctx context.Context, params rpc.ReceiptsParams) ([]rpc.ReceiptResult, error) {
	var out []rpc.ReceiptResult
	if err := c.call(ctx, "tip_listReceipts", []interface{}{params}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("rpc client: encode params: %w", err)
		}
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(rpc.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc client: %s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("rpc client: read response: %w", err)
	}
	var decoded rpc.RPCResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("rpc client: %s: status %d: decode response: %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decodeError(decoded.Error)
	}
	if len(decoded.Result) == 0 {
		return ErrNoResult
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

// decodeError turns ledger rejections back into *tipping.Error so callers can
// use errors.Is against the tipping sentinels.
func decodeError(rpcErr *rpc.RPCError) error {
	if rpcErr.Code == rpc.CodeLedgerRejected || rpcErr.Code == rpc.CodeUnauthorized {
		if data, ok := rpcErr.Data.(map[string]interface{}); ok {
			if kind, ok := data["kind"].(string); ok && kind != "" {
				return tipping.NewError(tipping.Kind(kind), strings.TrimPrefix(rpcErr.Message, "tipping: "))
			}
		}
	}
	return rpcErr
}
