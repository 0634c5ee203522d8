package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8086 {
		t.Fatalf("expected default server port 8086, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 20*time.Second {
		t.Fatalf("expected 20s shutdown timeout, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.RFQ.DefaultVendorLimit != 5 {
		t.Fatalf("expected default vendor limit 5, got %d", cfg.RFQ.DefaultVendorLimit)
	}
	if cfg.NATS.URL != "" || cfg.Redis.Addr != "" || cfg.SendGrid.APIKey != "" {
		t.Fatalf("optional integrations must default to disabled")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_HOST", "pg.internal")
	t.Setenv("RFQ_DEFAULT_VENDOR_LIMIT", "8")
	t.Setenv("REDIS_DISPATCH_TTL", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Host != "pg.internal" {
		t.Fatalf("expected env override for database host, got %q", cfg.Database.Host)
	}
	if cfg.RFQ.DefaultVendorLimit != 8 {
		t.Fatalf("expected vendor limit 8, got %d", cfg.RFQ.DefaultVendorLimit)
	}
	if cfg.Redis.DispatchTTL != 45*time.Second {
		t.Fatalf("expected 45s dispatch ttl, got %s", cfg.Redis.DispatchTTL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := []byte("server:\n  port: 9100\nrfq:\n  dispatch_concurrency: 2\n  broker_name: Acme Print\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Fatalf("expected port from file, got %d", cfg.Server.Port)
	}
	if cfg.RFQ.DispatchConcurrency != 2 {
		t.Fatalf("expected dispatch concurrency 2, got %d", cfg.RFQ.DispatchConcurrency)
	}
	if cfg.RFQ.BrokerName != "Acme Print" {
		t.Fatalf("unexpected broker name %q", cfg.RFQ.BrokerName)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same ports", func(c *Config) { c.GRPC.Port = c.Server.Port }},
		{"zero vendor limit", func(c *Config) { c.RFQ.DefaultVendorLimit = 0 }},
		{"zero concurrency", func(c *Config) { c.RFQ.DispatchConcurrency = 0 }},
		{"sendgrid without sender", func(c *Config) { c.SendGrid.APIKey = "key"; c.SendGrid.FromEmail = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Server: ServerConfig{Port: 8086},
				GRPC:   GRPCConfig{Port: 9086},
				RFQ:    RFQConfig{DefaultVendorLimit: 5, DispatchConcurrency: 4},
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
