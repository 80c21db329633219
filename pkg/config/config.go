package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the glow pipeline daemon.
type Config struct {
	// Service
	ListenPort    int
	MetricsPort   int
	DashboardPort int

	// Engine
	PlanPath string

	// Pipeline
	NumWorkers   int
	FixedBatch   int
	WarmupRuns   int
	GraphCapture bool

	// Batching
	MaxBatchFrames int
	MaxWaitTime    time.Duration

	// Effect tuning
	KeyLevel     int
	KeyScale     int
	DefaultScale float64
	Delta        int

	// Device
	DeviceName  string
	MemoryLimit int64
	UseCudart   string // "auto", "true", "false"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		ListenPort:    envInt("GLOW_PORT", 50051),
		MetricsPort:   envInt("METRICS_PORT", 9090),
		DashboardPort: envInt("DASHBOARD_PORT", 8080),

		PlanPath: envStr("PLAN_PATH", "models/segmentation.plan"),

		NumWorkers:   envInt("NUM_WORKERS", 2),
		FixedBatch:   envInt("FIXED_BATCH", 0),
		WarmupRuns:   envInt("WARMUP_RUNS", 1),
		GraphCapture: envBool("GRAPH_CAPTURE", true),

		MaxBatchFrames: envInt("MAX_BATCH_FRAMES", 32),
		MaxWaitTime:    time.Duration(envInt("MAX_WAIT_MS", 50)) * time.Millisecond,

		KeyLevel:     envInt("KEY_LEVEL", 96),
		KeyScale:     envInt("KEY_SCALE", 384),
		DefaultScale: float64(envInt("DEFAULT_SCALE", 8)),
		Delta:        envInt("KEY_DELTA", 10),

		DeviceName:  envStr("DEVICE_NAME", "sim-0"),
		MemoryLimit: int64(envInt("DEVICE_MEMORY_MB", 8192)) << 20,
		UseCudart:   envStr("USE_CUDART", "auto"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
