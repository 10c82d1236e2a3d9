package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"strategyavs/internal/analysis"
	"strategyavs/internal/attestation"
	"strategyavs/internal/chain"
	"strategyavs/internal/config"
	"strategyavs/internal/db"
	"strategyavs/internal/handler"
	"strategyavs/internal/logger"
	"strategyavs/internal/operator"
	gormrepository "strategyavs/internal/repository/gorm"
	"strategyavs/internal/scoring"
	"strategyavs/internal/simulator"
	"strategyavs/internal/submitter"
	"strategyavs/internal/watcher"
)

func main() {
	cfgPath := os.Getenv("AVS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AVS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateOperator(); err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	signer, err := attestation.NewSigner(cfg.Operator.PrivateKey)
	if err != nil {
		logger.Fatal("signer init failed", zap.Error(err))
	}
	logger.Info("operator identity", zap.String("address", signer.Address().Hex()))

	var store *gormrepository.Store
	var dbConn *db.DB
	if strings.TrimSpace(cfg.DB.DSN) != "" {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Warn("no db configured, pipeline journal disabled")
	}

	gatewayHTTP := &http.Client{Timeout: cfg.Gateway.Timeout}
	gatewayClient := chain.NewClient(gatewayHTTP, cfg.Gateway.BaseURL)

	advisor := analysis.NewOpenAIAdvisor(cfg.Analysis)
	analysisSvc := analysis.NewService(cfg.Analysis, advisor, logger)

	pipeline := &operator.Pipeline{
		Simulator: &simulator.Simulator{
			Client:  gatewayClient,
			Timeout: cfg.Operator.SimulateTimeout,
			Logger:  logger,
		},
		Analysis: analysisSvc,
		Scoring:  scoring.New(cfg.Scoring),
		Signer:   signer,
		Submitter: &submitter.Submitter{
			Client:            gatewayClient,
			ConfirmationDepth: cfg.Gateway.ConfirmationDepth,
			PollEvery:         cfg.Gateway.ConfirmPollEvery,
			ConfirmTimeout:    cfg.Gateway.ConfirmTimeout,
			Logger:            logger,
		},
		Logger:            logger,
		MaxSubmitAttempts: cfg.Operator.SubmitMaxAttempts,
		SubmitBackoffBase: cfg.Operator.SubmitBackoffBase,
	}
	if store != nil {
		pipeline.Repo = store
	}

	streamURL := cfg.Gateway.StreamURL
	if strings.TrimSpace(streamURL) == "" {
		streamURL = strings.Replace(strings.TrimRight(cfg.Gateway.BaseURL, "/"), "http", "ws", 1) + "/ws/strategies"
	}
	eventWatcher := &watcher.Watcher{
		Stream: chain.NewStrategyStream(chain.StrategyStreamOptions{
			URL:    streamURL,
			Logger: logger,
		}),
		Pipeline: pipeline,
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := eventWatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event watcher stopped", zap.Error(err))
		}
	}()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)
	if store != nil {
		runHandler := &handler.V1RunHandler{Repo: store}
		runHandler.Register(engine)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
