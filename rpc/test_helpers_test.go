package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"metanode/core"
	"metanode/core/clock"
	"metanode/core/genesis"
	"metanode/crypto"
	"metanode/storage"
	"metanode/storage/history"
)

var testJWTSecret = []byte("rpc-test-secret")

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MNDPrefix, raw)
}

type testEnv struct {
	t      testing.TB
	node   *core.Node
	clock  *clock.Manual
	store  *history.Store
	server *Server
	admin  crypto.Address
	alice  crypto.Address
	remote string
}

type envOption func(*ServerConfig, *bool)

func withoutHistory() envOption {
	return func(_ *ServerConfig, enabled *bool) { *enabled = false }
}

func withRateLimit(perMinute float64, burst int) envOption {
	return func(cfg *ServerConfig, _ *bool) {
		cfg.RateLimitPerMinute = perMinute
		cfg.RateLimitBurst = burst
	}
}

func withSecret(secret []byte) envOption {
	return func(cfg *ServerConfig, _ *bool) { cfg.JWTSecret = secret }
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		t:      t,
		clock:  clock.NewManual(0),
		admin:  makeAddress(0x01),
		alice:  makeAddress(0x02),
		remote: "192.0.2.10:5000",
	}
	node, err := core.NewNode(storage.NewMemDB(), env.clock)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	env.node = node

	cfg := ServerConfig{JWTSecret: testJWTSecret}
	useHistory := true
	for _, opt := range opts {
		opt(&cfg, &useHistory)
	}
	if useHistory {
		store, err := history.Open(history.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		node.Subscribe(store)
		env.store = store
	}

	doc := `
admins: [` + env.admin.String() + `]
tokens:
  - {symbol: META, name: Meta Reward, decimals: 18}
  - {symbol: STK, name: Stake Token, decimals: 18}
alloc:
  ` + env.alice.String() + `: {MND: "1000", STK: "500"}
  ` + env.admin.String() + `: {META: "1000"}
stake:
  startBlock: 0
  endBlock: 1000
  rewardPerBlock: "100"
  rewardToken: META
  rewardReserve: "50000"
pools:
  - {asset: native, weight: 100, minDeposit: "1", lockBlocks: 10}
`
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	if err := node.ApplyGenesis(spec); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}

	srv, err := NewServer(node, env.store, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.server = srv
	return env
}

func (e *testEnv) token(addr crypto.Address) string {
	e.t.Helper()
	token, err := IssueToken(testJWTSecret, "", addr, time.Hour, time.Now())
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return token
}

// call posts one JSON-RPC request through the routed handler.
func (e *testEnv) call(method string, params interface{}, token string) (*httptest.ResponseRecorder, json.RawMessage, *RPCError) {
	e.t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		e.t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.RemoteAddr = e.remote
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httpReq)
	result, rpcErr := decodeRPCResponse(e.t, rec)
	return rec, result, rpcErr
}

// mustCall fails the test on any RPC error and decodes the result into out.
func (e *testEnv) mustCall(method string, params interface{}, token string, out interface{}) {
	e.t.Helper()
	_, result, rpcErr := e.call(method, params, token)
	if rpcErr != nil {
		e.t.Fatalf("%s: unexpected error %+v", method, rpcErr)
	}
	if out != nil {
		if err := json.Unmarshal(result, out); err != nil {
			e.t.Fatalf("%s: decode result: %v", method, err)
		}
	}
}

func decodeRPCResponse(t testing.TB, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp.Result, resp.Error
}
