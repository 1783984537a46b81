// Package api implements the Brain's external surfaces: ingress signal
// intake (§6.1), the operator command surface (§6.5), health, and a
// Prometheus /metrics endpoint (§6.6). Grounded on the teacher's
// gorilla/mux + rs/cors HTTP server shape in this same package,
// generalised from a backtest/market-data API to the Brain's own
// HMAC-authenticated, breaker-aware signal gateway.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/arbiter"
	"github.com/benedict-anokye-davies/brain/internal/store"
	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config parameterises the ingress/operator HTTP surface beyond the bare
// host:port in types.ServerConfig.
type Config struct {
	Server             types.ServerConfig
	HMACSecret         []byte
	OperatorToken      string
	SignatureTolerance time.Duration // §6.1: ±300s
	DecisionPollEvery  time.Duration // polling cadence while awaiting a pipeline decision
	DecisionPollFor    time.Duration // total wait before replying 202/pending
}

// Server is the Brain's HTTP + WebSocket front door.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	router     *mux.Router
	httpServer *http.Server
	arb        *arbiter.Arbiter
	hub        *Hub
	registry   *prometheus.Registry
	upgrader   websocket.Upgrader
}

// NewServer wires the router for a Brain instance fronting arb. reg is the
// Prometheus registry metrics.New was constructed against.
func NewServer(logger *zap.Logger, cfg Config, arb *arbiter.Arbiter, hub *Hub, reg *prometheus.Registry) *Server {
	s := &Server{
		logger:   logger.Named("api"),
		cfg:      cfg,
		router:   mux.NewRouter(),
		arb:      arb,
		hub:      hub,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.HandleFunc("/v1/signals", s.handleSubmitSignal).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/decisions/{signal_id}", s.handleGetDecision).Methods(http.MethodGet)

	s.router.HandleFunc("/v1/operator/breaker/reset", s.handleBreakerReset).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/operator/treasury/transfer", s.handleManualTransfer).Methods(http.MethodPost)

	s.router.HandleFunc("/v1/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// Handler exposes the CORS-wrapped router, for use by httptest and by Start.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start launches the HTTP server and the WebSocket hub's broadcast loop.
// hubStop, closed by the caller, ends the hub's Run loop on shutdown.
func (s *Server) Start(hubStop <-chan struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go s.hub.Run(hubStop)
	s.logger.Info("api server starting", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	breakerState := s.arb.BreakerState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"equity":        s.arb.Equity().String(),
		"breaker_state": breakerState.Kind,
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

// signalRequest is the wire shape of an ingress intent signal, per §6.1.
type signalRequest struct {
	SignalID          string `json:"signal_id"`
	PhaseID           string `json:"phase_id"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	RequestedNotional string `json:"requested_notional"`
	Hedge             bool   `json:"hedge,omitempty"`
	TimestampMs       int64  `json:"timestamp_ms"`
	Nonce             string `json:"nonce"`
	Signature         string `json:"signature"`
}

type signalResponse struct {
	Approved           bool   `json:"approved"`
	AuthorisedNotional string `json:"authorised_notional"`
	Reason             string `json:"reason"`
	DecisionID         string `json:"decision_id"`
}

// handleSubmitSignal implements §6.1's ingress contract: malformed payloads
// get 4xx, authentication failures 401, a full intake queue 429, and a
// breaker-tripped rejection 503; everything else that reaches a decision
// (approved or vetoed on risk grounds) replies 2xx.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "reading request body")
		return
	}

	var req signalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "invalid JSON")
		return
	}
	if req.SignalID == "" || req.Symbol == "" || req.Nonce == "" || req.Signature == "" || req.TimestampMs == 0 {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "missing required field")
		return
	}
	phase := types.PhaseID(req.PhaseID)
	if !phase.Valid() {
		writeError(w, http.StatusBadRequest, string(types.ReasonUnknownPhase), "unrecognised phase_id")
		return
	}
	side := types.Side(req.Side)
	if side != types.SideBuy && side != types.SideSell {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "side must be BUY or SELL")
		return
	}
	requested, err := decimal.NewFromString(req.RequestedNotional)
	if err != nil || requested.IsNegative() {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "invalid requested_notional")
		return
	}

	now := time.Now().UnixMilli()
	skew := time.Duration(abs64(now-req.TimestampMs)) * time.Millisecond
	if skew > s.cfg.SignatureTolerance {
		writeError(w, http.StatusUnauthorized, string(types.ReasonAuthFailure), "timestamp outside tolerance")
		return
	}
	canonicalBody, err := canonicalizeSignedPayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(types.ReasonMalformedSignal), "invalid JSON")
		return
	}
	if !utils.VerifyHMAC(s.cfg.HMACSecret, req.TimestampMs, req.Nonce, canonicalBody, req.Signature) {
		writeError(w, http.StatusUnauthorized, string(types.ReasonAuthFailure), "signature verification failed")
		return
	}
	fresh, err := s.arb.CheckNonce(req.PhaseID, req.Nonce)
	if err != nil {
		s.logger.Error("nonce check", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "nonce check failed")
		return
	}
	if !fresh {
		writeError(w, http.StatusUnauthorized, string(types.ReasonAuthFailure), "nonce replay")
		return
	}

	signal := types.IntentSignal{
		SignalID:          req.SignalID,
		PhaseID:           phase,
		Symbol:            req.Symbol,
		Side:              side,
		RequestedNotional: requested,
		Hedge:             req.Hedge,
		TimestampMs:       req.TimestampMs,
		Nonce:             req.Nonce,
		Signature:         req.Signature,
	}
	if err := s.arb.Submit(signal); err != nil {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
		return
	}

	s.replyWithDecision(w, r.Context(), req.SignalID)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	signalID := mux.Vars(r)["signal_id"]
	row, found, err := s.arb.Decision(signalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no decision for signal_id")
		return
	}
	s.writeDecision(w, row)
}

// replyWithDecision polls for the persisted decision across the pipeline's
// latency budget before giving up and replying 202 with the signal still
// pending — the caller should then poll GET /v1/decisions/{signal_id}.
func (s *Server) replyWithDecision(w http.ResponseWriter, ctx context.Context, signalID string) {
	deadline := time.Now().Add(s.cfg.DecisionPollFor)
	ticker := time.NewTicker(s.cfg.DecisionPollEvery)
	defer ticker.Stop()

	for {
		row, found, err := s.arb.Decision(signalID)
		if err == nil && found {
			s.writeDecision(w, row)
			return
		}
		if time.Now().After(deadline) {
			writeJSON(w, http.StatusAccepted, signalResponse{
				Approved:           false,
				AuthorisedNotional: "0",
				Reason:             "PENDING",
				DecisionID:         "dec_" + signalID,
			})
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// writeDecision renders a persisted decision, choosing 503 when the reason
// is breaker-sourced (§6.1's "503 for breaker-tripped") and 200 otherwise —
// a risk-vetoed decision is still a completed decision, not a server error.
func (s *Server) writeDecision(w http.ResponseWriter, row store.DecisionRow) {
	status := http.StatusOK
	if !row.Approved && breakerReasonCode(row.Reason) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, signalResponse{
		Approved:           row.Approved,
		AuthorisedNotional: row.Authorised.String(),
		Reason:             row.Reason,
		DecisionID:         "dec_" + row.SignalID,
	})
}

func breakerReasonCode(reason string) bool {
	switch reason {
	case string(types.ReasonBreakerDailyDD), string(types.ReasonBreakerMinEquity), string(types.ReasonCooldown):
		return true
	default:
		return false
	}
}

// operatorAuthorised checks the X-Operator-Token header against the
// configured operator token, per §6.5's "authenticated commands".
func (s *Server) operatorAuthorised(r *http.Request) bool {
	return s.cfg.OperatorToken != "" && r.Header.Get("X-Operator-Token") == s.cfg.OperatorToken
}

type breakerResetRequest struct {
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if !s.operatorAuthorised(r) {
		writeError(w, http.StatusUnauthorized, string(types.ReasonAuthFailure), "operator token invalid")
		return
	}
	var req breakerResetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8*1024)).Decode(&req); err != nil || req.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "operator_id required")
		return
	}
	if err := s.arb.ResetBreaker(req.OperatorID); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type manualTransferRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

// handleManualTransfer services treasury.manual_transfer (§6.5); a
// safe→risky request is always rejected by the treasury manager itself,
// regardless of operator intent.
func (s *Server) handleManualTransfer(w http.ResponseWriter, r *http.Request) {
	if !s.operatorAuthorised(r) {
		writeError(w, http.StatusUnauthorized, string(types.ReasonAuthFailure), "operator token invalid")
		return
	}
	var req manualTransferRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8*1024)).Decode(&req); err != nil || req.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "operator_id required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "invalid amount")
		return
	}
	if err := s.arb.ManualTransfer(r.Context(), req.From, req.To, amount); err != nil {
		writeError(w, http.StatusBadRequest, "TRANSFER_REJECTED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(s.hub, conn)
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]string{"reason": reason, "error": message})
}

// canonicalizeSignedPayload reconstructs the byte sequence the caller signed:
// the request body with the "signature" field stripped, per §6.1's
// "HMAC-SHA256 hex of canonicalised timestamp_ms|nonce|payload_json", where
// payload_json never includes the signature that authenticates it. Signers
// (e.g. server_test.go's signedSignal) build the payload as a map, sign it,
// then add "signature" and re-marshal the same map; round-tripping through a
// map here and dropping that one key reproduces exactly those original
// bytes, since encoding/json always emits map keys in sorted order.
func canonicalizeSignedPayload(body []byte) ([]byte, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	delete(fields, "signature")
	return json.Marshal(fields)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
