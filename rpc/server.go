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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"deedescrow/core"
	"deedescrow/crypto"
	"deedescrow/gateway/middleware"
	"deedescrow/observability"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

type access int

const (
	accessQuery access = iota
	accessCaller
	accessAdmin
)

type handlerFunc func(ctx context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error)

type method struct {
	module  string
	access  access
	handler handlerFunc
	audited bool
}

type ServerConfig struct {
	Auth middleware.AuthConfig
	// AllowAnonymousQueries serves read-only methods without a bearer token.
	AllowAnonymousQueries bool
	RateLimit             middleware.RateLimit
	Audit                 AuditSink
	Logger                *slog.Logger
	Registerer            prometheus.Registerer
	Gatherer              prometheus.Gatherer
}

type Server struct {
	node     *core.Node
	cfg      ServerConfig
	logger   *slog.Logger
	auth     *middleware.Authenticator
	limiter  *middleware.RateLimiter
	obs      *middleware.Observability
	audit    AuditSink
	methods  map[string]method
	router   http.Handler
	serverMu sync.Mutex
	http     *http.Server
}

func NewServer(node *core.Node, cfg ServerConfig) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	authCfg := cfg.Auth
	authCfg.AllowAnonymous = true
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(authCfg, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "deedescrowd",
			LogRequests: true,
			Registerer:  cfg.Registerer,
		}, logger),
		audit: cfg.Audit,
	}
	s.limiter.OnReject(func(string) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
	})
	s.methods = s.methodTable()
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.With(s.obs.Middleware("rpc"), s.auth.Middleware, s.limiter.Middleware).Post("/rpc", s.handle)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chimw.RequestIDKey, id)))
	})
}

// Handler exposes the HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.router, "deedescrowd"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.serverMu.Lock()
	s.http = srv
	s.serverMu.Unlock()
	s.logger.Info("rpc server listening", slog.String("addr", listener.Addr().String()))
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.http
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
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
		writeError(w, status, nil, codeInvalidRequest, message, nil)
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
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one parameter object expected", nil)
		return
	}

	identity, authenticated := middleware.IdentityFromContext(r.Context())
	switch {
	case m.access == accessQuery && !s.cfg.AllowAnonymousQueries && !authenticated,
		m.access != accessQuery && !authenticated:
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthenticated, "bearer token required", nil)
		return
	case m.access == accessAdmin && !identity.HasScope(middleware.ScopeAdmin):
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "admin scope required", nil)
		return
	}

	var raw json.RawMessage
	if len(req.Params) == 1 {
		raw = req.Params[0]
	}
	start := time.Now()
	result, err := m.handler(r.Context(), identity.Address, raw)
	duration := time.Since(start)
	modErr := mapError(err)

	kind := ""
	if modErr != nil {
		kind = modErr.Message
	}
	observability.ModuleMetrics().Observe(m.module, req.Method, kind, duration)
	if m.audited {
		s.recordAudit(r, req.Method, identity, kind, duration)
	}
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) recordAudit(r *http.Request, rpcMethod string, identity middleware.Identity, kind string, duration time.Duration) {
	if s.audit == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = "error"
	}
	rec := AuditRecord{
		RequestID:      chimw.GetReqID(r.Context()),
		Method:         rpcMethod,
		Caller:         crypto.FormatIdentity(identity.Address),
		Outcome:        outcome,
		ErrorKind:      kind,
		DurationMicros: duration.Microseconds(),
	}
	if err := s.audit.Record(r.Context(), rec); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("method", rpcMethod),
			slog.String("request_id", rec.RequestID),
			slog.Any("error", err))
	}
}

func (s *Server) methodTable() map[string]method {
	return map[string]method{
		"escrow_list":                   {"escrow", accessCaller, s.escrowList, true},
		"escrow_depositEarnest":         {"escrow", accessCaller, s.escrowDepositEarnest, true},
		"escrow_contribute":             {"escrow", accessCaller, s.escrowContribute, true},
		"escrow_updateInspectionStatus": {"escrow", accessCaller, s.escrowUpdateInspectionStatus, true},
		"escrow_approveSale":            {"escrow", accessCaller, s.escrowApproveSale, true},
		"escrow_finalizeSale":           {"escrow", accessCaller, s.escrowFinalizeSale, true},
		"escrow_cancelSale":             {"escrow", accessCaller, s.escrowCancelSale, true},
		"escrow_isListed":               {"escrow", accessQuery, s.escrowIsListed, false},
		"escrow_buyer":                  {"escrow", accessQuery, s.escrowBuyer, false},
		"escrow_purchasePrice":          {"escrow", accessQuery, s.escrowPurchasePrice, false},
		"escrow_escrowAmount":           {"escrow", accessQuery, s.escrowEscrowAmount, false},
		"escrow_inspectionPassed":       {"escrow", accessQuery, s.escrowInspectionPassed, false},
		"escrow_approval":               {"escrow", accessQuery, s.escrowApproval, false},
		"escrow_getBalance":             {"escrow", accessQuery, s.escrowGetBalance, false},
		"escrow_getListing":             {"escrow", accessQuery, s.escrowGetListing, false},
		"escrow_listEvents":             {"escrow", accessQuery, s.escrowListEvents, false},
		"escrow_roles":                  {"escrow", accessQuery, s.escrowRoles, false},
		"registry_mint":                 {"registry", accessCaller, s.registryMint, true},
		"registry_approve":              {"registry", accessCaller, s.registryApprove, true},
		"registry_transferFrom":         {"registry", accessCaller, s.registryTransferFrom, true},
		"registry_ownerOf":              {"registry", accessQuery, s.registryOwnerOf, false},
		"registry_tokenURI":             {"registry", accessQuery, s.registryTokenURI, false},
		"registry_getDeed":              {"registry", accessQuery, s.registryGetDeed, false},
		"bank_balance":                  {"bank", accessQuery, s.bankBalance, false},
		"admin_credit":                  {"admin", accessAdmin, s.adminCredit, true},
		"admin_setPaused":               {"admin", accessAdmin, s.adminSetPaused, true},
		"admin_setReceiveBlocked":       {"admin", accessAdmin, s.adminSetReceiveBlocked, true},
		"admin_auditLog":                {"admin", accessAdmin, s.adminAuditLog, false},
	}
}
