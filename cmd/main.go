package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/backend"
	"github.com/trislit/BNB-Balloon-Pump-sub000/config"
	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/dispatcher"
	"github.com/trislit/BNB-Balloon-Pump-sub000/handlers"
	"github.com/trislit/BNB-Balloon-Pump-sub000/ledger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/metrics"
	"github.com/trislit/BNB-Balloon-Pump-sub000/queue"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
	"github.com/trislit/BNB-Balloon-Pump-sub000/routers"
	"github.com/trislit/BNB-Balloon-Pump-sub000/validation"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting balloon pump server...")

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(cfg.LevelDBPath)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	// Repositories
	requestRepo := repository.NewRequestRepository(ldb)
	roundRepo := repository.NewRoundRepository(ldb)
	balanceRepo := repository.NewBalanceRepository(ldb)

	// Settlement engine
	policy := ledger.Policy{
		Threshold:      cfg.Threshold,
		FeeBps:         cfg.FeeBps,
		HardCapRatio:   cfg.HardCapRatio,
		PopBasePct:     cfg.PopBasePct,
		PopMaxPct:      cfg.PopMaxPct,
		WinnerBaseBps:  cfg.WinnerBaseBps,
		WinnerSlopeBps: cfg.WinnerSlopeBps,
		SecondBps:      cfg.SecondBps,
		ThirdBps:       cfg.ThirdBps,
		DevAddress:     cfg.DevAddress,
		BurnAddress:    cfg.BurnAddress,
	}
	engine := ledger.NewLedger(roundRepo, balanceRepo, policy)
	if _, err := engine.Bootstrap(); err != nil {
		logger.Logger.Fatal("Failed to bootstrap round", zap.Error(err))
	}

	// Execution backend, selected once at startup
	var be backend.Backend
	switch cfg.BackendMode {
	case "chain":
		be = backend.NewChainRelay(cfg.BackendURL, cfg.BackendTimeout)
	default:
		be = backend.NewSimLedger()
	}
	logger.Logger.Info("Execution backend selected", zap.String("backend", be.Name()))

	// Queue, gate, dispatcher, worker
	m := metrics.New()
	q := queue.New(requestRepo, m, cfg.MaxRetries, cfg.RetryDelay)
	gate := validation.NewGate(requestRepo, balanceRepo, cfg.MaxRequestsPerMinute)
	disp := dispatcher.New(gate, engine, be, m, cfg.BackendTimeout)
	worker := queue.NewWorker(q, disp, cfg.Concurrency, cfg.PollInterval, cfg.BatchPause)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := worker.Start(rootCtx); err != nil {
		logger.Logger.Fatal("Failed to start queue worker", zap.Error(err))
	}

	// HTTP handlers and router
	h := handlers.NewHandler(q, engine, roundRepo, balanceRepo)
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, m)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.ServerPort))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Logger.Warn("Queue worker did not stop cleanly", zap.Error(err))
	}
}
