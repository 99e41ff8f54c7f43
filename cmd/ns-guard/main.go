package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetSentry/internal/ai"
	"NetSentry/internal/alerter"
	"NetSentry/internal/config"
	"NetSentry/internal/metrics"
	"NetSentry/internal/model"
	"NetSentry/internal/notification"
	"NetSentry/internal/pipeline"
	"NetSentry/internal/probe"
	"NetSentry/internal/storage"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	log.Println("Starting ns-guard...")

	// 1. Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Connect the history store, falling back to JSONL files on disk
	deps := pipeline.Deps{}
	switch {
	case cfg.ClickHouse.Enabled:
		history, err := storage.NewHistoryStore(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer history.Close()
		deps.AlertStore = history
		deps.SnapshotStore = history
	case cfg.FileStore.Enabled:
		files, err := storage.NewFileStore(cfg.FileStore.Dir)
		if err != nil {
			log.Fatalf("Failed to open file store: %v", err)
		}
		defer files.Close()
		deps.AlertStore = files
		deps.SnapshotStore = files
		log.Printf("ClickHouse is disabled; persisting to JSONL files under %s", cfg.FileStore.Dir)
	}

	// 3. Wire the alert broadcasters: live store, alert bus, digest alerter
	if cfg.Redis.Enabled {
		live, err := storage.NewLiveStore(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer live.Close()
		deps.Broadcasters = append(deps.Broadcasters, live)
	}

	alertPub, err := probe.NewAlertPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer alertPub.Close()
	deps.Broadcasters = append(deps.Broadcasters, alertPub)

	var digest *alerter.Alerter
	if cfg.Alerter.Enabled {
		var analyzer model.Analyzer
		if cfg.Alerter.AIAnalysis {
			analyzer, err = ai.NewDigestAnalyzer(&cfg.AI)
			if err != nil {
				log.Fatalf("Failed to create AI analyzer: %v", err)
			}
		}
		digest, err = alerter.NewAlerter(&cfg.Alerter, notification.NewEmailNotifier(cfg.SMTP), analyzer)
		if err != nil {
			log.Fatalf("Failed to create alerter: %v", err)
		}
		deps.Broadcasters = append(deps.Broadcasters, digest)
		go digest.Start()
	}

	// 4. Build and start the detection pipeline
	pl, err := pipeline.New(cfg, deps)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	pl.Start()

	// 5. Subscribe to the packet stream
	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	if err := sub.Start(func(pkt *model.PacketInfo) {
		pl.Enqueue(pkt)
	}); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	// 6. Expose Prometheus metrics
	metricsServer := &http.Server{
		Addr:    cfg.Metrics.ListenAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		log.Printf("Metrics server starting on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", metricsServer.Addr, err)
		}
	}()

	// 7. Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping...")

	// Stop the intake first so the pipeline can drain, then flush the digest.
	sub.Close()
	pl.Stop()
	if digest != nil {
		digest.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(ctx)
	log.Println("Shutdown complete.")
}
