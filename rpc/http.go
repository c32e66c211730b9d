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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tipchain/config"
	"tipchain/core"
	"tipchain/indexer"
	"tipchain/observability"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

// ReceiptLister serves tip_listReceipts.
type ReceiptLister interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.Receipt, error)
}

// ServerConfig carries the RPC related configuration sections.
type ServerConfig struct {
	Faucet            config.Faucet
	RateLimit         config.RateLimit
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// ServerConfigFrom extracts the RPC settings from the daemon configuration.
func ServerConfigFrom(cfg *config.Config) ServerConfig {
	return ServerConfig{
		Faucet:            cfg.Faucet,
		RateLimit:         cfg.RateLimit,
		ReadHeaderTimeout: time.Duration(cfg.RPCReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPCWriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.RPCIdleTimeout) * time.Second,
	}
}

type Server struct {
	node     *core.Node
	receipts ReceiptLister
	cfg      ServerConfig
	limiter  *rateLimiter
	faucet   *faucetAuth
	logger   *slog.Logger
	metrics  interface {
		Observe(method string, code int, duration time.Duration)
		RecordThrottle(reason string)
	}

	httpServer *http.Server
}

// NewServer wires the JSON-RPC server. receipts may be nil, in which case
// tip_listReceipts reports the indexer as unavailable.
func NewServer(node *core.Node, receipts ReceiptLister, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:     node,
		receipts: receipts,
		cfg:      cfg,
		limiter:  newRateLimiter(cfg.RateLimit),
		faucet:   newFaucetAuth(cfg.Faucet),
		logger:   logger.With(slog.String("component", "rpc")),
		metrics:  observability.ModuleMetrics(),
	}
	// Shutdown may run before Serve; both act on this server.
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/tips", s.handleTipStream)
	r.With(s.limiter.middleware(s.metrics.RecordThrottle)).Post("/", s.handle)
	return otelhttp.NewHandler(r, "tipd.rpc")
}

// Serve accepts connections on listener until Shutdown is called.
// Once Shutdown has run, Serve closes listener and returns nil.
func (s *Server) Serve(listener net.Listener) error {
	srv := s.httpServer
	s.logger.Info("json-rpc server listening", slog.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "ok",
		"droppedEvents": s.node.Events().Dropped(),
		"subscribers":   s.node.Events().Subscribers(),
	})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
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
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to encode result", err.Error())
		return
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: raw}
	_ = json.NewEncoder(w).Encode(resp)
}

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
	code := s.dispatch(w, r, req)
	s.metrics.Observe(req.Method, code, time.Since(start))
	if code != 0 {
		s.logger.Debug("json-rpc request failed",
			slog.String("method", req.Method),
			slog.Int("code", code),
			slog.String("requestid", w.Header().Get(requestIDHeader)))
	}
}

// dispatch routes req and returns the JSON-RPC error code written, or zero.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	switch req.Method {
	case "tip_initialize":
		return s.handleInitialize(w, r, req)
	case "tip_send":
		return s.handleSendTip(w, r, req)
	case "tip_getAccount":
		return s.handleGetAccount(w, r, req)
	case "tip_getBalance":
		return s.handleGetBalance(w, r, req)
	case "tip_getNonce":
		return s.handleGetNonce(w, r, req)
	case "tip_requestAirdrop":
		return s.handleRequestAirdrop(w, r, req)
	case "tip_listReceipts":
		return s.handleListReceipts(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return codeMethodNotFound
	}
}
