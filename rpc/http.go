package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	nativecommon "crosslend/native/common"
	"crosslend/native/lending"
	"crosslend/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	requestsPerSecond = 50
	requestBurst      = 100
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeLedgerError    = -32010
	codeRateLimited    = -32020
)

// Server exposes the lending ledger over JSON-RPC 2.0. All methods are served
// on POST /; privileged methods additionally require the bearer token from
// the CROSSLEND_RPC_TOKEN environment variable.
type Server struct {
	ledger  *lending.Ledger
	pauses  *nativecommon.PauseSet
	log     *slog.Logger
	metrics *observability.LedgerMetrics

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	authToken string

	httpServer *http.Server
}

func NewServer(ledger *lending.Ledger, log *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv("CROSSLEND_RPC_TOKEN"))
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ledger:    ledger,
		log:       log,
		metrics:   observability.Metrics(),
		limiters:  make(map[string]*rate.Limiter),
		authToken: token,
	}
}

// SetPauses wires the pause switches the lend_setPaused method toggles.
func (s *Server) SetPauses(p *nativecommon.PauseSet) {
	s.pauses = p
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start serves the router until the context is cancelled, then drains
// in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type route struct {
	handler    handlerFunc
	privileged bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"lend_registerAsset":           {handler: s.handleRegisterAsset, privileged: true},
		"lend_setMaxLTV":               {handler: s.handleSetMaxLTV, privileged: true},
		"lend_setAssetActive":          {handler: s.handleSetAssetActive, privileged: true},
		"lend_setLiquidationThreshold": {handler: s.handleSetLiquidationThreshold, privileged: true},
		"lend_setTeamAddress":          {handler: s.handleSetTeamAddress, privileged: true},
		"lend_setPaused":               {handler: s.handleSetPaused, privileged: true},
		"lend_createRewardPool":        {handler: s.handleCreateRewardPool, privileged: true},
		"lend_claimProtocolFees":       {handler: s.handleClaimProtocolFees, privileged: true},

		"lend_supply":       {handler: s.handleSupply},
		"lend_withdraw":     {handler: s.handleWithdraw},
		"lend_borrow":       {handler: s.handleBorrow},
		"lend_repay":        {handler: s.handleRepay},
		"lend_liquidate":    {handler: s.handleLiquidate},
		"lend_fundReward":   {handler: s.handleFundReward},
		"lend_claimReward":  {handler: s.handleClaimReward},
		"lend_claimRewards": {handler: s.handleClaimRewards},

		"lend_getAsset":          {handler: s.handleGetAsset},
		"lend_listAssets":        {handler: s.handleListAssets},
		"lend_getPosition":       {handler: s.handleGetPosition},
		"lend_getUtilization":    {handler: s.handleGetUtilization},
		"lend_getRates":          {handler: s.handleGetRates},
		"lend_healthFactor":      {handler: s.handleHealthFactor},
		"lend_checkLiquidatable": {handler: s.handleCheckLiquidatable},
		"lend_getRewardPool":     {handler: s.handleGetRewardPool},
		"lend_getUserReward":     {handler: s.handleGetUserReward},
		"lend_getProtocolFees":   {handler: s.handleGetProtocolFees},
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "too many requests", nil)
		return
	}

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

	rt, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if rt.privileged {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.Requests.WithLabelValues(req.Method, "unauthorized").Inc()
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	rt.handler(rec, r, req)
	s.metrics.Latency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if rec.status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.metrics.Requests.WithLabelValues(req.Method, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeLedgerError translates ledger sentinel errors into JSON-RPC error
// responses, keeping internal failures distinguishable from caller mistakes.
func (s *Server) writeLedgerError(w http.ResponseWriter, method string, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeLedgerError
	switch {
	case errors.Is(err, lending.ErrAssetNotFound),
		errors.Is(err, lending.ErrRewardPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lending.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeUnauthorized
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidAddress),
		errors.Is(err, lending.ErrInvalidConfig):
		code = codeInvalidParams
	case errors.Is(err, lending.ErrReentrantCall):
		status = http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrUnhealthyOperation),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrNoOutstandingDebt),
		errors.Is(err, lending.ErrNothingToClaim),
		errors.Is(err, lending.ErrRewardPoolExists),
		errors.Is(err, lending.ErrInactiveAsset),
		errors.Is(err, lending.ErrAssetLimit),
		errors.Is(err, lending.ErrTeamAddressUnset),
		errors.Is(err, lending.ErrUnsupportedDecimals),
		errors.Is(err, nativecommon.ErrModulePaused):
		// Conflict with the ledger's rules rather than a malformed request.
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
		code = codeServerError
		s.log.Error("rpc handler failed", "method", method, "error", err)
	}
	s.metrics.Errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	writeError(w, status, id, code, err.Error(), nil)
}
