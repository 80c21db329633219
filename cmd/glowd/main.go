package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowfx/glowpipe/pkg/config"
	"github.com/glowfx/glowpipe/pkg/dashboard"
	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/gpu/cudart"
	"github.com/glowfx/glowpipe/pkg/service"
	"google.golang.org/grpc"
)

func main() {
	cfg := config.Load()
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Printf("⚡ glowd starting on port %d", cfg.ListenPort)
	log.Printf("   Metrics on port %d, dashboard on port %d", cfg.MetricsPort, cfg.DashboardPort)
	log.Printf("   Plan: %s | workers=%d fixed_batch=%d", cfg.PlanPath, cfg.NumWorkers, cfg.FixedBatch)
	log.Printf("   Batch: max_frames=%d, max_wait=%v", cfg.MaxBatchFrames, cfg.MaxWaitTime)

	memLimit := cfg.MemoryLimit
	if cfg.UseCudart == "true" || cfg.UseCudart == "auto" {
		if rt, err := cudart.Load(); err == nil {
			if info, err := rt.GetMemInfo(0); err == nil {
				memLimit = int64(info.TotalBytes)
				log.Printf("📊 CUDA runtime: %d device(s), %d MiB total", rt.DeviceCount(), info.TotalBytes>>20)
			}
			rt.Unload()
		} else if cfg.UseCudart == "true" {
			log.Fatalf("❌ CUDA runtime required but unavailable: %v", err)
		}
	}

	dev, err := gpu.Open(gpu.Options{
		Name:                cfg.DeviceName,
		MemoryLimit:         memLimit,
		DisableGraphCapture: !cfg.GraphCapture,
	})
	if err != nil {
		log.Fatalf("❌ Failed to open device: %v", err)
	}

	eng, err := engine.NewRuntime().LoadPlan(cfg.PlanPath)
	if err != nil {
		log.Fatalf("❌ Failed to load plan: %v", err)
	}

	svc := service.New(cfg, dev, eng)
	svc.StartBatcher()

	grpcServer := grpc.NewServer()
	svc.RegisterGRPC(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		log.Fatalf("❌ Failed to listen on port %d: %v", cfg.ListenPort, err)
	}

	// Metrics HTTP server
	go func() {
		mux := http.NewServeMux()
		svc.RegisterHTTP(mux)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("📊 Metrics endpoint on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("❌ Metrics server failed: %v", err)
		}
	}()

	// Dashboard: WebSocket state push
	bc := dashboard.NewBroadcaster()
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", bc.HandleWS)
		addr := fmt.Sprintf(":%d", cfg.DashboardPort)
		log.Printf("📺 Dashboard WebSocket on %s/ws", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("❌ Dashboard server failed: %v", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			b := svc.Batcher()
			bc.Broadcast(&dashboard.PipelineState{
				EngineName:      eng.Name(),
				Classes:         eng.Classes(),
				NumWorkers:      cfg.NumWorkers,
				GraphWorkers:    int(b.GraphWorkers.Load()),
				QueueDepth:      svc.Queue().Depth(),
				QueuedFrames:    svc.Queue().FrameDepth(),
				TotalJobs:       b.TotalJobs.Load(),
				TotalFrames:     b.TotalFrames.Load(),
				TotalFailures:   b.TotalFailures.Load(),
				AvgLatencyMs:    b.AvgLatencyMs.Load(),
				LastBatchFrames: int(b.LastBatchSize.Load()),
				DeviceMemoryMB:  float64(dev.MemoryUsed()) / (1 << 20),
				PinnedMemoryMB:  float64(dev.PinnedUsed()) / (1 << 20),
			})
		}
	}()

	// Start gRPC in background
	go func() {
		log.Printf("🚀 gRPC server listening on %s", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("❌ gRPC server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down glowd...")
	grpcServer.GracefulStop()
	svc.Stop()
	dev.Close()
	log.Println("✅ glowd stopped")
}
