package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kroma-labs/hedging-go/example/hedging/internal/backend"
	"github.com/kroma-labs/hedging-go/example/hedging/internal/config"
	"github.com/kroma-labs/hedging-go/example/hedging/internal/telemetry"
	"github.com/kroma-labs/hedging-go/hedging"
)

func main() {
	ctx := context.Background()

	// 1. Setup OpenTelemetry (Tracing + Metrics)
	shutdownTracing, shutdownMetrics, err := telemetry.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup OTel: %v", err)
	}
	defer func() {
		shutdownTracing(ctx)
		shutdownMetrics(ctx)
	}()

	// 2. Start Prometheus Metrics Server
	metricsServer := &http.Server{Addr: config.MetricsPort}
	go func() {
		log.Printf("Starting Prometheus metrics server on %s", config.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	// 3. Start the demo backend with its latency tail
	upstream := backend.New()
	go func() {
		log.Printf("Starting demo backend on %s", config.BackendAddr)
		if err := upstream.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Backend failed: %v", err)
		}
	}()
	defer upstream.Shutdown(ctx)

	// 4. Build the hedging client: adaptive timing learns the backend's
	// real latency, the budget keeps duplicate load bounded.
	client, err := hedging.New(
		hedging.WithBaseURL("http://"+config.BackendAddr),
		hedging.WithServiceName(config.ServiceName),
		hedging.WithHedgeConfig(hedging.HedgeConfig{
			TargetSLO:          time.Duration(config.TargetSLOMillis) * time.Millisecond,
			HedgeAt:            config.HedgeAtFraction,
			MaxHedges:          1,
			Adaptive:           true,
			AdaptivePercentile: 0.95,
		}),
		hedging.WithBudget(hedging.BudgetConfig{HedgesPerSecond: 20, Burst: 5}),
		hedging.WithDebug(),
	)
	if err != nil {
		log.Fatalf("Failed to build hedging client: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(config.RequestInterval) * time.Millisecond)
	defer ticker.Stop()

	fmt.Println("✅ Hedging example app started!")
	fmt.Println("📊 Prometheus metrics: http://localhost:2112/metrics")
	fmt.Println("Press Ctrl+C to stop...")

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			resp, err := client.Get(ctx, "/search?q=tail+latency")
			if err != nil {
				log.Printf("Request failed: %v", err)
				continue
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			log.Printf("Got %s in %v: %s", resp.Status, time.Since(start).Round(time.Millisecond), body)

		case <-sigChan:
			fmt.Println("\nShutting down...")
			metricsServer.Shutdown(ctx)
			return
		}
	}
}
