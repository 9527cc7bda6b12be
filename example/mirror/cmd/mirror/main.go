package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kroma-labs/courier/example/mirror/internal/config"
	"github.com/kroma-labs/courier/example/mirror/internal/mirror"
	"github.com/kroma-labs/courier/example/mirror/internal/telemetry"

	"go.opentelemetry.io/otel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := mirror.NewPool()

	// 1. Setup OpenTelemetry (Tracing + Metrics)
	shutdownTracing, shutdownMetrics, err := telemetry.Setup(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to setup OTel: %v", err)
	}
	defer func() {
		shutdownTracing(context.Background())
		shutdownMetrics(context.Background())
	}()

	// 2. Start Prometheus Metrics Server
	metricsServer := &http.Server{Addr: config.MetricsPort, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("Starting Prometheus metrics server on %s", config.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	// 3. Build the mirror client
	m, err := mirror.New(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to create mirror: %v", err)
	}

	// 4. Follow the change feed in the background
	go func() {
		err := m.TailEvents(ctx, func(event string) {
			log.Printf("📡 %s", event)
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("Event feed stopped: %v", err)
		}
	}()

	// 5. Sync the manifest in a loop
	tracer := otel.Tracer("example-app")
	ticker := time.NewTicker(time.Duration(config.SyncInterval) * time.Second)
	defer ticker.Stop()

	fmt.Println("✅ Mirror example app started!")
	fmt.Println("📊 Prometheus metrics: http://localhost:2112/metrics")
	fmt.Println("Press Ctrl+C to stop...")

	for {
		select {
		case <-ticker.C:
			ctx, span := tracer.Start(ctx, "mirror-sync")

			manifest, err := m.FetchManifest(ctx)
			if err != nil {
				log.Printf("Failed to fetch manifest: %v", err)
				span.End()
				continue
			}
			if _, err := m.Sync(ctx, manifest); err != nil {
				log.Printf("Sync finished with errors: %v", err)
			}

			span.End()
			stats := m.Stats()
			log.Printf("✓ Pool %s: %d requests, %d active", stats.Name, stats.Total, stats.Active)

		case <-ctx.Done():
			fmt.Println("\n🛑 Shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Metrics server shutdown error: %v", err)
			}
			return
		}
	}
}
