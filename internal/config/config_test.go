package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected http addr %q", cfg.HTTP.Addr)
	}
	if cfg.Billing.Markup != 1.2 {
		t.Errorf("unexpected markup %v", cfg.Billing.Markup)
	}
	if cfg.Billing.RunAt != "00:10" {
		t.Errorf("unexpected run_at %q", cfg.Billing.RunAt)
	}
	if cfg.Billing.LockTTL != 10*time.Minute {
		t.Errorf("unexpected lock ttl %v", cfg.Billing.LockTTL)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "127.0.0.1:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.CDRSink.BatchWait != 300*time.Millisecond {
		t.Errorf("unexpected batch wait %v", cfg.CDRSink.BatchWait)
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("billing:\n  markup: 1.35\n  run_at: \"02:30\"\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Billing.Markup != 1.35 {
		t.Errorf("unexpected markup %v", cfg.Billing.Markup)
	}
	if cfg.Billing.RunAt != "02:30" {
		t.Errorf("unexpected run_at %q", cfg.Billing.RunAt)
	}
	// Untouched keys keep their defaults.
	if cfg.Billing.LockKey != "callbill:billing:lock" {
		t.Errorf("unexpected lock key %q", cfg.Billing.LockKey)
	}
}
