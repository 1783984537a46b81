// Package main is the entry point for the Brain server: the
// strategy-arbitration core that turns independent per-phase trading
// signals into capital-allocated, risk-checked execution decisions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/allocation"
	"github.com/benedict-anokye-davies/brain/internal/api"
	"github.com/benedict-anokye-davies/brain/internal/arbiter"
	"github.com/benedict-anokye-davies/brain/internal/breaker"
	"github.com/benedict-anokye-davies/brain/internal/config"
	"github.com/benedict-anokye-davies/brain/internal/egress"
	"github.com/benedict-anokye-davies/brain/internal/events"
	"github.com/benedict-anokye-davies/brain/internal/metrics"
	"github.com/benedict-anokye-davies/brain/internal/performance"
	"github.com/benedict-anokye-davies/brain/internal/positions"
	"github.com/benedict-anokye-davies/brain/internal/risk"
	"github.com/benedict-anokye-davies/brain/internal/store"
	"github.com/benedict-anokye-davies/brain/internal/treasury"
	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	host := flag.String("host", "", "Server host override")
	port := flag.Int("port", 0, "Server port override")
	dataDir := flag.String("data", "", "Data directory override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting brain",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dataDir", cfg.DataDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(logger.Named("store"), cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer st.Close()

	posStore := positions.NewStore(logger.Named("positions"))

	riskCfg := types.DefaultRiskConfig()
	corr := risk.NewCorrelationEngine(logger.Named("correlation"), riskCfg.CorrelationWindow, riskCfg.CorrelationRecompute, riskCfg.CorrelationStaleAfter)
	guardian := risk.NewGuardian(logger.Named("guardian"), riskCfg, corr)

	allocCfg := types.DefaultAllocationConfig()
	allocEngine := allocation.NewEngine(logger.Named("allocation"), allocCfg)

	perfCfg := types.DefaultPerformanceConfig()
	perfTracker := performance.NewTracker(logger.Named("performance"), perfCfg)

	egressClient := egress.NewClient(logger.Named("egress"), cfg.ExecutionBaseURL, []byte(cfg.HMACSecret), cfg.EgressTimeout)

	breakerCfg := types.DefaultBreakerConfig()
	initialBreaker := types.BreakerState{Kind: types.BreakerNormal, Since: time.Now()}
	if breakerSnap, found, err := st.LoadBreaker(); err != nil {
		logger.Fatal("failed to load breaker state", zap.Error(err))
	} else if found {
		since, _ := time.Parse(time.RFC3339Nano, breakerSnap.Since)
		until, _ := time.Parse(time.RFC3339Nano, breakerSnap.Until)
		initialBreaker = types.BreakerState{
			Kind:   types.BreakerStateKind(breakerSnap.Kind),
			Reason: breakerSnap.Reason,
			Since:  since,
			Until:  until,
		}
	}
	circuitBreaker := breaker.NewBreaker(logger.Named("breaker"), breakerCfg, egressClient, initialBreaker)

	treasuryCfg := types.DefaultTreasuryConfig()
	treasurySnap, found, err := st.LoadTreasury()
	if err != nil {
		logger.Fatal("failed to load treasury state", zap.Error(err))
	}
	initialTreasury := types.TreasuryState{ReserveFloor: treasuryCfg.ReserveFloor}
	if found {
		initialTreasury = types.TreasuryState{
			RiskyBalance:  treasurySnap.RiskyBalance,
			SafeBalance:   treasurySnap.SafeBalance,
			TotalSwept:    treasurySnap.TotalSwept,
			HighWatermark: treasurySnap.HighWatermark,
			ReserveFloor:  treasuryCfg.ReserveFloor,
		}
	}
	treasuryMgr := treasury.NewManager(logger.Named("treasury"), treasuryCfg, egressClient, initialTreasury)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	bus := events.NewEventBus(logger.Named("events"), events.DefaultConfig())

	arbiterCfg := types.DefaultArbiterConfig()
	arb := arbiter.NewArbiter(logger.Named("arbiter"), arbiterCfg, riskCfg, arbiter.Deps{
		Allocation:  allocEngine,
		Performance: perfTracker,
		Guardian:    guardian,
		Correlation: corr,
		Treasury:    treasuryMgr,
		Breaker:     circuitBreaker,
		Positions:   posStore,
		Egress:      egressClient,
		Store:       st,
		Metrics:     metricsRegistry,
		Bus:         bus,
	})

	if err := arb.Recover(ctx); err != nil {
		logger.Warn("startup recovery incomplete", zap.Error(err))
	}
	if err := arb.Start(ctx); err != nil {
		logger.Fatal("failed to start arbiter", zap.Error(err))
	}

	hub := api.NewHub(logger.Named("ws-hub"))
	hub.SubscribeEventBus(bus)
	hubStop := make(chan struct{})

	apiCfg := api.Config{
		Server:             types.ServerConfig{Host: cfg.Host, Port: cfg.Port},
		HMACSecret:         []byte(cfg.HMACSecret),
		OperatorToken:      cfg.OperatorToken,
		SignatureTolerance: arbiterCfg.SignatureTolerance,
		DecisionPollEvery:  5 * time.Millisecond,
		DecisionPollFor:    arbiterCfg.LatencyBudget,
	}
	server := api.NewServer(logger.Named("api"), apiCfg, arb, hub, reg)

	go func() {
		if err := server.Start(hubStop); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("brain started",
		zap.String("http", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/v1/ws", cfg.Host, cfg.Port)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	close(hubStop)
	cancel()

	if err := arb.Stop(); err != nil {
		logger.Error("error stopping arbiter", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("brain stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
