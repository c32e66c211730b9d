package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"nhooyr.io/websocket"

	"tipchain/config"
	"tipchain/core"
	"tipchain/core/types"
	"tipchain/crypto"
	"tipchain/indexer"
	"tipchain/native/tipping"
	"tipchain/storage"
)

const testFaucetSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	node    *core.Node
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, rate config.RateLimit) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	ix, err := indexer.New(db)
	require.NoError(t, err)

	node := core.NewNode(storage.NewMemDB(), core.WithReceiptSink(ix))
	server := NewServer(node, ix, ServerConfig{
		Faucet: config.Faucet{
			Enabled:   true,
			JWTSecret: testFaucetSecret,
			Issuer:    "tipchain",
			MaxAmount: 50_000_000_000,
		},
		RateLimit: rate,
	}, nil)
	return &testEnv{node: node, server: server, handler: server.Handler()}
}

func (e *testEnv) call(t *testing.T, header http.Header, method string, params ...interface{}) (int, RPCResponse) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:5555"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func faucetHeader(t *testing.T, scope string) http.Header {
	t.Helper()
	token, err := IssueFaucetToken(testFaucetSecret, "tipchain", "tests", time.Minute)
	require.NoError(t, err)
	if scope != FaucetScope {
		token, err = issueToken(testFaucetSecret, scope)
		require.NoError(t, err)
	}
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (e *testEnv) fund(t *testing.T, addr [20]byte, amount uint64) {
	t.Helper()
	status, resp := e.call(t, faucetHeader(t, FaucetScope), "tip_requestAirdrop", AirdropParams{
		Address: crypto.FormatAddress(addr),
		Amount:  strconv.FormatUint(amount, 10),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func signedParams(t *testing.T, key *crypto.PrivateKey, kind types.RequestKind, creator [20]byte, amount, nonce uint64) SignedRequestParams {
	t.Helper()
	req := &types.TipRequest{
		Kind:    kind,
		Nonce:   nonce,
		Tipper:  key.PubKey().Address().Array(),
		Creator: creator,
		Amount:  amount,
	}
	require.NoError(t, req.Sign(key))
	params := SignedRequestParams{
		Tipper:    crypto.FormatAddress(req.Tipper),
		Creator:   crypto.FormatAddress(creator),
		Nonce:     nonce,
		Signature: "0x" + hex.EncodeToString(req.Signature),
	}
	if kind == types.RequestSendTip {
		params.Amount = strconv.FormatUint(amount, 10)
	}
	return params
}

func newKey(t *testing.T) (*crypto.PrivateKey, [20]byte) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key, key.PubKey().Address().Array()
}

func TestTipFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	tipperKey, tipper := newKey(t)
	_, creator := newKey(t)
	env.fund(t, tipper, 10_000_000_000)

	_, resp := env.call(t, nil, "tip_initialize", signedParams(t, tipperKey, types.RequestInitialize, creator, 0, 0))
	require.Nil(t, resp.Error)

	_, resp = env.call(t, nil, "tip_send", signedParams(t, tipperKey, types.RequestSendTip, creator, 100_000_000, 1))
	require.Nil(t, resp.Error)
	var submitted SubmitResult
	require.NoError(t, json.Unmarshal(resp.Result, &submitted))
	require.Equal(t, "100000000", submitted.Account.TotalTips)
	require.Equal(t, uint64(2), submitted.Nonce)

	_, resp = env.call(t, nil, "tip_getAccount", crypto.FormatAddress(tipper))
	require.Nil(t, resp.Error)
	var account TipAccountResult
	require.NoError(t, json.Unmarshal(resp.Result, &account))
	require.Equal(t, crypto.FormatAddress(creator), account.Creator)
	require.Equal(t, "100000000", account.TotalTips)

	_, resp = env.call(t, nil, "tip_getBalance", crypto.FormatAddress(creator))
	require.Nil(t, resp.Error)
	var balance BalanceResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, "100000000", balance.Balance)

	_, resp = env.call(t, nil, "tip_getNonce", crypto.FormatAddress(tipper))
	require.Nil(t, resp.Error)
	require.JSONEq(t, "2", string(resp.Result))

	_, resp = env.call(t, nil, "tip_listReceipts", ReceiptsParams{Tipper: crypto.FormatAddress(tipper)})
	require.Nil(t, resp.Error)
	var receipts []ReceiptResult
	require.NoError(t, json.Unmarshal(resp.Result, &receipts))
	require.Len(t, receipts, 2)
	require.Equal(t, core.ReceiptSendTip, receipts[0].Kind)
	require.Equal(t, "100000000", receipts[0].Amount)
}

func TestLedgerErrorsCarryKind(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	tipperKey, tipper := newKey(t)
	_, creator := newKey(t)
	env.fund(t, tipper, 10_000_000_000)
	_, resp := env.call(t, nil, "tip_initialize", signedParams(t, tipperKey, types.RequestInitialize, creator, 0, 0))
	require.Nil(t, resp.Error)

	cases := []struct {
		name    string
		params  SignedRequestParams
		kind    tipping.Kind
		message string
	}{
		{"self tip", signedParams(t, tipperKey, types.RequestSendTip, tipper, 100_000_000, 1), tipping.KindSelfReference, "you cannot tip yourself"},
		{"zero amount", signedParams(t, tipperKey, types.RequestSendTip, creator, 0, 1), tipping.KindZeroAmount, "the tip amount must be greater than 0"},
		{"stale nonce", signedParams(t, tipperKey, types.RequestSendTip, creator, 10, 0), tipping.KindInvalidNonce, "nonce"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := env.call(t, nil, "tip_send", tc.params)
			require.Equal(t, http.StatusOK, status)
			require.NotNil(t, resp.Error)
			require.Equal(t, codeLedgerRejected, resp.Error.Code)
			require.Contains(t, resp.Error.Message, tc.message)
			data, ok := resp.Error.Data.(map[string]interface{})
			require.True(t, ok)
			require.Equal(t, string(tc.kind), data["kind"])
		})
	}

	otherKey, _ := newKey(t)
	forged := signedParams(t, otherKey, types.RequestSendTip, creator, 10, 1)
	forged.Tipper = crypto.FormatAddress(tipper)
	_, resp = env.call(t, nil, "tip_send", forged)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestInvalidParams(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	key, _ := newKey(t)
	_, creator := newKey(t)

	params := signedParams(t, key, types.RequestSendTip, creator, 10, 0)
	params.Amount = "-5"
	status, resp := env.call(t, nil, "tip_send", params)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	params = signedParams(t, key, types.RequestSendTip, creator, 10, 0)
	params.Creator = "0xnotanaddress"
	_, resp = env.call(t, nil, "tip_send", params)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = env.call(t, nil, "tip_getAccount")
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = env.call(t, nil, "tip_unknown")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, codeParseError, resp.Error.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestFaucetRequiresScopedToken(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	_, addr := newKey(t)
	params := AirdropParams{Address: crypto.FormatAddress(addr), Amount: "1000"}

	status, resp := env.call(t, nil, "tip_requestAirdrop", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, _ = env.call(t, faucetHeader(t, "read"), "tip_requestAirdrop", params)
	require.Equal(t, http.StatusForbidden, status)

	badToken, err := IssueFaucetToken("some-other-secret-value", "tipchain", "tests", time.Minute)
	require.NoError(t, err)
	status, _ = env.call(t, http.Header{"Authorization": []string{"Bearer " + badToken}}, "tip_requestAirdrop", params)
	require.Equal(t, http.StatusUnauthorized, status)

	status, resp = env.call(t, faucetHeader(t, FaucetScope), "tip_requestAirdrop", AirdropParams{Address: params.Address, Amount: "999999999999999"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = env.call(t, faucetHeader(t, FaucetScope), "tip_requestAirdrop", params)
	require.Equal(t, http.StatusOK, status)
	var balance BalanceResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, "1000", balance.Balance)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{RequestsPerMinute: 1, Burst: 2})
	_, addr := newKey(t)
	for i := 0; i < 2; i++ {
		status, _ := env.call(t, nil, "tip_getNonce", crypto.FormatAddress(addr))
		require.Equal(t, http.StatusOK, status)
	}
	status, resp := env.call(t, nil, "tip_getNonce", crypto.FormatAddress(addr))
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTipStreamDeliversMatchingEvents(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	tipperKey, tipper := newKey(t)
	_, creator := newKey(t)
	env.fund(t, tipper, 10_000_000_000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + srv.URL[len("http"):] + "/ws/tips?creator=" + crypto.FormatAddress(creator)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return env.node.Events().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp := env.call(t, nil, "tip_initialize", signedParams(t, tipperKey, types.RequestInitialize, creator, 0, 0))
	require.Nil(t, resp.Error)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame StreamEvent
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, tipping.EventTypeAccountInitialized, frame.Type)
	require.Equal(t, crypto.FormatAddress(tipper), frame.Attributes["tipper"])
}

func TestShutdownBeforeServeStopsServe(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	require.NoError(t, env.server.Shutdown(context.Background()))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(listener) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after an earlier Shutdown")
	}
}

func TestServeStopsOnShutdown(t *testing.T) {
	env := newTestEnv(t, config.RateLimit{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after Shutdown")
	}
}
