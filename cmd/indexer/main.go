package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/ordinals-indexer/internal/adaptive"
	"github.com/rawblock/ordinals-indexer/internal/api"
	"github.com/rawblock/ordinals-indexer/internal/cache"
	"github.com/rawblock/ordinals-indexer/internal/config"
	"github.com/rawblock/ordinals-indexer/internal/db"
	"github.com/rawblock/ordinals-indexer/internal/ord"
	"github.com/rawblock/ordinals-indexer/internal/pattern"
	"github.com/rawblock/ordinals-indexer/internal/pipeline"
	"github.com/rawblock/ordinals-indexer/internal/scanner"
	"github.com/rawblock/ordinals-indexer/internal/transfer"
	"github.com/rawblock/ordinals-indexer/internal/txapi"
	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/internal/validate"
)

// shutdownGrace caps how long in-flight work gets after a signal before the
// process exits anyway.
const shutdownGrace = 30 * time.Second

func main() {
	log.Println("Starting RawBlock Ordinals Indexer (Microservice: btc-ordinals-indexer)...")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Storage ─────────────────────────────────────────────────────────
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("FATAL: opening database at %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	wallets := db.NewWalletBatcher(store, db.DefaultBatchSize)

	// ─── Upstream endpoints ──────────────────────────────────────────────
	probeClient := &http.Client{Timeout: 15 * time.Second}

	ordEndpoints := upstream.NewEndpoints("ordinals",
		cfg.OrdinalsLocalCandidates, cfg.OrdinalsExternalFallback,
		cfg.UseLocalAPIsOnly, ord.Smoke(probeClient))
	if err := ordEndpoints.Select(ctx); err != nil {
		log.Fatalf("FATAL: no usable Ordinals endpoint: %v", err)
	}

	txEndpoints := upstream.NewEndpoints("tx",
		cfg.TxLocalCandidates, cfg.TxExternalFallback,
		cfg.UseLocalAPIsOnly, txapi.Smoke(probeClient))
	if err := txEndpoints.Select(ctx); err != nil {
		log.Fatalf("FATAL: no usable tx endpoint: %v", err)
	}

	// ─── Adaptive controllers and cache ──────────────────────────────────
	limiter := adaptive.NewManager(cfg.ConcurrencyMin, cfg.ConcurrencyMax, cfg.ConcurrencyInitial)
	go limiter.Run(ctx)

	batches := adaptive.NewBatchSizer(cfg.BatchMin, cfg.BatchMax, cfg.BatchInitial)

	previewCache := cache.New(
		cache.WithTTL(cfg.CacheTTL),
		cache.WithPressureThreshold(cfg.CachePressureThreshold),
		cache.WithEmergencyMB(cfg.CacheEmergencyMB),
	)
	go previewCache.Run(ctx)

	// ─── Clients, validators, pipeline ───────────────────────────────────
	ordClient := ord.New(ordEndpoints, previewCache, limiter)
	txClient := txapi.New(txEndpoints, limiter)

	validator := validate.New(store, wallets, ordClient, txClient)
	patterns := pattern.New(txClient, store)

	wsHub := api.NewHub()
	go wsHub.Run()

	pipe := pipeline.New(ordClient, txClient, store, validator, limiter, batches, wallets).
		WithPatterns(patterns).
		WithEvents(wsHub.Publish)

	tracker := transfer.New(store, ordClient, limiter)

	scan := scanner.New(txClient, store, pipe, tracker, scanner.Config{
		StartBlock:       cfg.StartBlock,
		RetryDelayBlocks: cfg.RetryBlockDelay,
		ProcessTimeout:   cfg.ProcessTimeout,
	})

	scanErr := make(chan error, 1)
	go func() { scanErr <- scan.Run(ctx) }()

	// ─── HTTP API ────────────────────────────────────────────────────────
	router := api.SetupRouter(store, wsHub, scan)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("Indexer API listening on :%s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// ─── Shutdown ────────────────────────────────────────────────────────
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	scannerDone := false
	select {
	case sig := <-sigs:
		log.Printf("Received %s, shutting down after the current block...", sig)
		scan.Stop()
	case err := <-scanErr:
		scannerDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Scanner stopped: %v", err)
		}
	}

	graceCtx, graceCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer graceCancel()

	// The in-flight block keeps its context; cancellation is the hard stop
	// once the grace window runs out.
	if !scannerDone {
		select {
		case err := <-scanErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Scanner stopped: %v", err)
			}
		case <-graceCtx.Done():
			log.Printf("Shutdown grace elapsed, aborting the in-flight block")
			cancel()
			<-scanErr
		}
	}

	cancel()

	if err := server.Shutdown(graceCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := wallets.Flush(graceCtx); err != nil {
		log.Printf("Final wallet flush: %v", err)
	}
	wsHub.Close()
	log.Println("Shutdown complete")
}
