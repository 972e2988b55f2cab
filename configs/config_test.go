package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"QUEUE_BATCH_SIZE", "PUBLISH_MODE", "DRY_RUN", "ADAPTER_TIMEOUT", "R2_PUBLIC_BASE_URL", "LISTEN_ADDR"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()

	if cfg.Queue.BatchSize != 20 || cfg.Queue.LegacyBatchSize != 10 || cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Queue.AdapterTimeout != 60*time.Second || cfg.Queue.StaleProcessingAfter != 15*time.Minute {
		t.Fatalf("timeouts = %+v", cfg.Queue)
	}
	if cfg.LegacyMode() || cfg.Queue.DryRun {
		t.Fatal("legacy mode or dry run on by default")
	}
	if cfg.ListenAddr != ":3000" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.EnhancedPrefix() != "" {
		t.Fatalf("enhanced prefix without R2 = %q", cfg.EnhancedPrefix())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("QUEUE_BATCH_SIZE", "5")
	t.Setenv("QUEUE_WORKERS", "-2")
	t.Setenv("PUBLISH_MODE", "legacy")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("ADAPTER_TIMEOUT", "90s")
	t.Setenv("SLOT_MIN_SPACING", "not-a-duration")
	t.Setenv("R2_PUBLIC_BASE_URL", "https://cdn.example.com/")

	cfg := LoadConfig()
	if cfg.Queue.BatchSize != 5 {
		t.Fatalf("batch size = %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.Workers != 4 {
		t.Fatalf("negative workers should fall back to the default, got %d", cfg.Queue.Workers)
	}
	if !cfg.LegacyMode() || !cfg.Queue.DryRun {
		t.Fatal("mode or dry run override ignored")
	}
	if cfg.Queue.AdapterTimeout != 90*time.Second {
		t.Fatalf("adapter timeout = %v", cfg.Queue.AdapterTimeout)
	}
	if cfg.Scheduler.MinSpacing != 2*time.Hour {
		t.Fatalf("bad duration should fall back, got %v", cfg.Scheduler.MinSpacing)
	}
	if got := cfg.EnhancedPrefix(); got != "https://cdn.example.com/enhanced/" {
		t.Fatalf("enhanced prefix = %q", got)
	}
}
