// main.go - Pool client daemon.
//
// ghostpoold drives confidential deposit and withdraw requests against the
// pool program on behalf of local callers. It owns the wallet signer, the
// credential cipher, and the request orchestrator, and exposes a small HTTP
// surface:
//
//	POST /v1/deposit   submit a deposit under a secret
//	POST /v1/withdraw  submit a withdrawal proving knowledge of a secret
//	GET  /healthz      component health
//	GET  /metrics      Prometheus metrics
//
// Usage:
//
//	go run ./cmd/ghostpoold -config ghostpoold.json
//
// The daemon runs against an in-process ledger simulator. Pointing it at a
// live RPC endpoint only requires a LedgerClient implementation for that
// endpoint.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ghostpool/internal/ghostpool"
	"ghostpool/internal/transactions/deposit"
	"ghostpool/internal/transactions/withdraw"
)

const version = "0.3.0"

type server struct {
	log      zerolog.Logger
	config   *Config
	protocol *ghostpool.ProtocolConfig

	orch    *ghostpool.Orchestrator
	deriver *ghostpool.AddressDeriver
	owner   ghostpool.Address

	networkPublicKey [32]byte

	health   *HealthChecker
	metrics  *Metrics
	limiter  *ClientRateLimiter
	registry *prometheus.Registry
}

func main() {
	configPath := flag.String("config", "ghostpoold.json", "path to daemon config")
	protocolPath := flag.String("protocol", "", "path to protocol config (defaults built in)")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load config")
	}

	logger, logCloser, err := NewLogger(config.LogLevel, config.LogFile)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logCloser.Close()

	logger.Info().Str("version", version).Str("listen", config.ListenAddr).Msg("ghostpoold starting")

	// The cipher self-test must pass before any credential is produced.
	// A daemon that cannot encrypt must not come up at all.
	if err := ghostpool.InitCredentialCipher(); err != nil {
		logger.Fatal().Err(err).Msg("credential cipher initialization failed")
	}

	protoPath := config.ProtocolConfigPath
	if *protocolPath != "" {
		protoPath = *protocolPath
	}
	protocol, err := ghostpool.LoadProtocolConfig(protoPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load protocol config")
	}

	srv, err := newServer(logger, config, protocol)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	httpServer := &http.Server{
		Addr:         config.ListenAddr,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // requests block on callback confirmation
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()
	logger.Info().Str("pool_program", protocol.PoolProgram.String()).Msg("ghostpoold ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func newServer(logger zerolog.Logger, config *Config, protocol *ghostpool.ProtocolConfig) (*server, error) {
	owner, err := ownerAddress(config)
	if err != nil {
		return nil, err
	}

	deriver := ghostpool.NewAddressDeriver(protocol)

	// Simulated ledger with the pool account pre-created, plus a stand-in
	// network key. A live deployment swaps both for the real endpoint.
	pool, bump, err := deriver.PoolAddress(owner)
	if err != nil {
		return nil, err
	}
	ledger := ghostpool.NewMockLedger(pool, &ghostpool.PoolState{Bump: bump, Owner: owner})
	ledger.SetCallbackDelay(1)

	networkKey, err := ghostpool.GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}

	policy := ghostpool.SimulationAdvisory
	if config.SimulationPolicy == "gating" {
		policy = ghostpool.SimulationGating
	}
	orch := ghostpool.NewOrchestrator(ledger, ghostpool.NewMockSigner(owner), logger, ghostpool.OrchestratorOptions{
		SimulationPolicy: policy,
		PollInterval:     config.PollInterval(),
		MaxRetries:       uint64(config.MaxRetries),
	})

	registry := prometheus.NewRegistry()
	srv := &server{
		log:              logger,
		config:           config,
		protocol:         protocol,
		orch:             orch,
		deriver:          deriver,
		owner:            owner,
		networkPublicKey: networkKey.PublicKey(),
		health:           NewHealthChecker(version),
		metrics:          NewMetrics(registry),
		limiter:          NewClientRateLimiter(config.RateLimitRPS, config.RateLimitBurst),
		registry:         registry,
	}

	srv.health.RegisterComponent("cipher", ghostpool.InitCredentialCipher)
	srv.health.RegisterComponent("protocol_config", protocol.Validate)
	srv.health.RegisterComponent("ledger", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := ledger.AccountData(ctx, pool)
		return err
	})
	return srv, nil
}

// ownerAddress resolves the pool owner identity from config, or draws a
// fresh one for throwaway local runs.
func ownerAddress(config *Config) (ghostpool.Address, error) {
	if config.PoolOwner != "" {
		return ghostpool.AddressFromBase58(config.PoolOwner)
	}
	var owner ghostpool.Address
	if _, err := rand.Read(owner[:]); err != nil {
		return ghostpool.Address{}, err
	}
	return owner, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/deposit", s.rateLimited(s.handleDeposit))
	mux.HandleFunc("POST /v1/withdraw", s.rateLimited(s.handleWithdraw))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

type requestBody struct {
	Secret string `json:"secret"`
	Amount uint64 `json:"amount"`
}

type requestResponse struct {
	Signature         string `json:"signature"`
	Outcome           string `json:"outcome"`
	ComputationOffset uint64 `json:"computation_offset"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !s.limiter.Allow(client) {
			s.metrics.RequestRejected.WithLabelValues("rate_limited").Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

func (s *server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.metrics.RequestRejected.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.metrics.ActiveRequests.Inc()
	defer s.metrics.ActiveRequests.Dec()

	result, err := deposit.Run(r.Context(), s.orch, s.deriver, deposit.Params{
		Secret:           body.Secret,
		Amount:           body.Amount,
		Owner:            s.owner,
		NetworkPublicKey: s.networkPublicKey,
		CallbackTimeout:  s.config.CallbackTimeout(),
	})
	s.writeResult(w, "deposit", err, resultOf(result))
}

func (s *server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.metrics.RequestRejected.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.metrics.ActiveRequests.Inc()
	defer s.metrics.ActiveRequests.Dec()

	result, err := withdraw.Run(r.Context(), s.orch, s.deriver, withdraw.Params{
		Secret:           body.Secret,
		Amount:           body.Amount,
		Owner:            s.owner,
		NetworkPublicKey: s.networkPublicKey,
		CallbackTimeout:  s.config.CallbackTimeout(),
	})
	s.writeResult(w, "withdraw", err, withdrawResultOf(result))
}

type flowResult struct {
	receipt           *ghostpool.Receipt
	outcome           ghostpool.CallbackOutcome
	computationOffset uint64
}

func resultOf(r *deposit.Result) *flowResult {
	if r == nil {
		return nil
	}
	return &flowResult{receipt: r.Receipt, outcome: r.Outcome, computationOffset: r.ComputationOffset}
}

func withdrawResultOf(r *withdraw.Result) *flowResult {
	if r == nil {
		return nil
	}
	return &flowResult{receipt: r.Receipt, outcome: r.Outcome, computationOffset: r.ComputationOffset}
}

func resultFields(r *flowResult) requestResponse {
	if r == nil {
		return requestResponse{Outcome: ghostpool.OutcomeUnknown.String()}
	}
	resp := requestResponse{
		Outcome:           r.outcome.String(),
		ComputationOffset: r.computationOffset,
	}
	if r.receipt != nil {
		resp.Signature = r.receipt.Signature
	}
	return resp
}

func (s *server) writeResult(w http.ResponseWriter, kind string, err error, result *flowResult) {
	resp := resultFields(result)
	if err != nil {
		s.metrics.ObserveRequest(kind, err, time.Time{})

		var verr *ghostpool.ValidationError
		var terr *ghostpool.TimeoutError
		switch {
		case errors.As(err, &verr):
			s.metrics.RequestRejected.WithLabelValues("validation").Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.As(err, &terr):
			// The side effect may still land. Surface the offset so the
			// caller can re-poll.
			s.metrics.CallbackTimeouts.Inc()
			s.log.Warn().Uint64("computation_offset", terr.ComputationOffset).Str("kind", kind).Msg("callback timeout")
			writeJSON(w, http.StatusAccepted, resp)
		default:
			s.metrics.RequestErrors.WithLabelValues(stageOf(err)).Inc()
			s.log.Error().Err(err).Str("kind", kind).Msg("request failed")
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		}
		return
	}

	var submittedAt time.Time
	if result != nil && result.receipt != nil {
		submittedAt = result.receipt.SubmittedAt
	}
	s.metrics.ObserveRequest(kind, nil, submittedAt)
	writeJSON(w, http.StatusOK, resp)
}

func stageOf(err error) string {
	var nerr *ghostpool.NetworkError
	var perr *ghostpool.ProtocolError
	var cerr *ghostpool.CryptoError
	switch {
	case errors.As(err, &nerr):
		return string(nerr.Stage)
	case errors.As(err, &perr):
		return string(perr.Stage)
	case errors.As(err, &cerr):
		return string(cerr.Stage)
	default:
		return "unknown"
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
