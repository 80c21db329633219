package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ListenPort != 50051 {
		t.Errorf("ListenPort = %d, want 50051", cfg.ListenPort)
	}
	if cfg.NumWorkers != 2 || cfg.FixedBatch != 0 {
		t.Errorf("workers=%d fixed=%d, want 2/0", cfg.NumWorkers, cfg.FixedBatch)
	}
	if !cfg.GraphCapture {
		t.Error("GraphCapture disabled by default")
	}
	if cfg.MaxWaitTime != 50*time.Millisecond {
		t.Errorf("MaxWaitTime = %v, want 50ms", cfg.MaxWaitTime)
	}
	if cfg.KeyLevel != 96 || cfg.KeyScale != 384 || cfg.DefaultScale != 8 {
		t.Errorf("tuning = %d/%d/%v", cfg.KeyLevel, cfg.KeyScale, cfg.DefaultScale)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NUM_WORKERS", "6")
	t.Setenv("FIXED_BATCH", "4")
	t.Setenv("GRAPH_CAPTURE", "false")
	t.Setenv("MAX_WAIT_MS", "120")
	t.Setenv("PLAN_PATH", "/tmp/custom.plan")
	t.Setenv("DEVICE_MEMORY_MB", "256")

	cfg := Load()
	if cfg.NumWorkers != 6 || cfg.FixedBatch != 4 {
		t.Errorf("workers=%d fixed=%d, want 6/4", cfg.NumWorkers, cfg.FixedBatch)
	}
	if cfg.GraphCapture {
		t.Error("GRAPH_CAPTURE=false not honored")
	}
	if cfg.MaxWaitTime != 120*time.Millisecond {
		t.Errorf("MaxWaitTime = %v, want 120ms", cfg.MaxWaitTime)
	}
	if cfg.PlanPath != "/tmp/custom.plan" {
		t.Errorf("PlanPath = %q", cfg.PlanPath)
	}
	if cfg.MemoryLimit != 256<<20 {
		t.Errorf("MemoryLimit = %d, want %d", cfg.MemoryLimit, 256<<20)
	}

	// Garbage values fall back to defaults.
	t.Setenv("NUM_WORKERS", "lots")
	if got := Load().NumWorkers; got != 2 {
		t.Errorf("garbage NUM_WORKERS parsed as %d", got)
	}
}
