package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"metanode/core"
	"metanode/observability"
	"metanode/storage/history"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 5 * time.Second
)

// ServerConfig tunes the JSON-RPC endpoint.
type ServerConfig struct {
	// JWTSecret signs caller tokens. Authenticated methods are refused when
	// it is empty.
	JWTSecret []byte
	JWTIssuer string
	// RateLimitPerMinute of zero disables throttling.
	RateLimitPerMinute float64
	RateLimitBurst     int
	Logger             *slog.Logger
}

type Server struct {
	node    *core.Node
	history *history.Store
	logger  *slog.Logger
	auth    *authenticator
	limiter *rateLimiter
	stream  *eventHub
	handler http.Handler

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires the RPC surface over node. store may be nil, in which case
// the history methods report the index as disabled.
func NewServer(node *core.Node, store *history.Store, cfg ServerConfig) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		history: store,
		logger:  logger.With("component", "rpc"),
		auth:    newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		stream:  newEventHub(),
	}
	node.Subscribe(s.stream)
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return otelhttp.NewHandler(r, "metanode-rpc")
}

// Handler exposes the routed endpoint, chiefly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("serving JSON-RPC", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and closes every event stream.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stream.Close()
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// outcomeWriter remembers the JSON-RPC error code written for metrics.
type outcomeWriter struct {
	http.ResponseWriter
	code int
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if ow, ok := w.(*outcomeWriter); ok {
		ow.code = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"height": s.node.BlockHeight(),
	})
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	ow := &outcomeWriter{ResponseWriter: w}
	s.dispatch(ow, r, req)
	observability.RPC().Observe(req.Method, ow.code, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "node_status":
		s.handleNodeStatus(w, r, req)

	case "stake_depositNative":
		s.authed(w, r, req, s.handleStakeDepositNative)
	case "stake_deposit":
		s.authed(w, r, req, s.handleStakeDeposit)
	case "stake_unstake":
		s.authed(w, r, req, s.handleStakeUnstake)
	case "stake_withdraw":
		s.authed(w, r, req, s.handleStakeWithdraw)
	case "stake_claim":
		s.authed(w, r, req, s.handleStakeClaim)
	case "stake_updatePool":
		s.handleStakeUpdatePool(w, r, req)
	case "stake_massUpdatePools":
		s.handleStakeMassUpdatePools(w, r, req)
	case "stake_poolCount":
		s.handleStakePoolCount(w, r, req)
	case "stake_getPool":
		s.handleStakeGetPool(w, r, req)
	case "stake_getGlobal":
		s.handleStakeGetGlobal(w, r, req)
	case "stake_pendingReward":
		s.handleStakePendingReward(w, r, req)
	case "stake_balance":
		s.handleStakeBalance(w, r, req)
	case "stake_withdrawAmount":
		s.handleStakeWithdrawAmount(w, r, req)
	case "stake_unstakeRequests":
		s.handleStakeUnstakeRequests(w, r, req)

	case "admin_addPool":
		s.authed(w, r, req, s.handleAdminAddPool)
	case "admin_setPoolWeight":
		s.authed(w, r, req, s.handleAdminSetPoolWeight)
	case "admin_setPoolParams":
		s.authed(w, r, req, s.handleAdminSetPoolParams)
	case "admin_setStartBlock":
		s.authed(w, r, req, s.handleAdminSetStartBlock)
	case "admin_setEndBlock":
		s.authed(w, r, req, s.handleAdminSetEndBlock)
	case "admin_setRewardPerBlock":
		s.authed(w, r, req, s.handleAdminSetRewardPerBlock)
	case "admin_pause":
		s.authed(w, r, req, s.handleAdminPause)
	case "admin_unpause":
		s.authed(w, r, req, s.handleAdminUnpause)
	case "admin_fundRewards":
		s.authed(w, r, req, s.handleAdminFundRewards)
	case "admin_grant":
		s.authed(w, r, req, s.handleAdminGrant)
	case "admin_registerToken":
		s.authed(w, r, req, s.handleAdminRegisterToken)
	case "admin_setMintPaused":
		s.authed(w, r, req, s.handleAdminSetMintPaused)

	case "bank_mint":
		s.authed(w, r, req, s.handleBankMint)
	case "bank_approve":
		s.authed(w, r, req, s.handleBankApprove)
	case "bank_transfer":
		s.authed(w, r, req, s.handleBankTransfer)
	case "bank_balance":
		s.handleBankBalance(w, r, req)
	case "bank_allowance":
		s.handleBankAllowance(w, r, req)
	case "bank_supply":
		s.handleBankSupply(w, r, req)
	case "bank_tokens":
		s.handleBankTokens(w, r, req)

	case "history_query":
		s.handleHistoryQuery(w, r, req)
	case "history_export":
		s.handleHistoryExport(w, r, req)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
	}
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	seq, err := s.node.EventSeq()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusResult{
		Height:        s.node.BlockHeight(),
		EventSeq:      seq,
		Initialized:   s.node.Initialized(),
		ModuleAddress: s.node.ModuleAddress().String(),
		RewardReserve: s.node.RewardReserveAddress().String(),
		History:       s.history != nil,
	})
}
