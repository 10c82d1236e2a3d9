package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"strategyavs/internal/config"
	"strategyavs/internal/consensus"
	cronrunner "strategyavs/internal/cron"
	"strategyavs/internal/db"
	"strategyavs/internal/handler"
	"strategyavs/internal/logger"
	gormrepository "strategyavs/internal/repository/gorm"
	"strategyavs/internal/roster"
	"strategyavs/internal/scoring"
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
	if err := cfg.ValidateAggregator(); err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
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
	store := gormrepository.New(dbConn.Gorm)

	rosterProvider, err := roster.New(cfg.Roster, nil, logger)
	if err != nil {
		logger.Fatal("roster init failed", zap.Error(err))
	}

	aggregator := &consensus.Aggregator{
		Repo:           store,
		Scoring:        scoring.New(cfg.Scoring),
		QuorumFraction: cfg.Consensus.QuorumFraction,
		PollTimeout:    cfg.Consensus.PollTimeout,
		Logger:         logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	sweepEvery := cfg.Consensus.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Second
	}
	if _, err := cronRunner.Add("@every "+sweepEvery.String(), func(ctx context.Context) {
		aggregator.SweepTimeouts(ctx)
	}); err != nil {
		logger.Warn("cron register timeout sweep failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	consensusHandler := &handler.V1ConsensusHandler{
		Repo:       store,
		Aggregator: aggregator,
		Roster:     rosterProvider,
	}
	consensusHandler.Register(engine)
	attestationHandler := &handler.V1AttestationHandler{Repo: store}
	attestationHandler.Register(engine)

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
