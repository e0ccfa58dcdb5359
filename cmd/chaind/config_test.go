package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// inDir runs the test with the working directory set to dir.
func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) }) //nolint:errcheck
}

func TestLoadConfig_defaults(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, found, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if found {
		t.Error("expected no config file")
	}
	if cfg.HTTPPort != 8080 || cfg.GRPCPort != 9090 {
		t.Errorf("ports = %d/%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.Storage != "memory" || cfg.Admission != "arithmetic" {
		t.Errorf("storage=%q admission=%q", cfg.Storage, cfg.Admission)
	}
	if cfg.DeliveryInitial != time.Second || cfg.DeliveryMax != time.Minute {
		t.Errorf("backoff = %v..%v", cfg.DeliveryInitial, cfg.DeliveryMax)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.RateLimitRPS != 20 || cfg.SubmitRate != 2 {
		t.Errorf("rate limits = %v/%v", cfg.RateLimitRPS, cfg.SubmitRate)
	}
}

func TestLoadConfig_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
chaind:
  http_port: 18080
storage:
  driver: SQLite
  sqlite_path: /var/lib/primechain/chain.db
admission:
  mode: groth16
notify:
  webhooks:
    - url: https://example.test/hook
      secret: s3cret
    - name: audit
      url: https://audit.test/hook
`
	if err := os.WriteFile(filepath.Join(dir, "configs", "chaind.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	inDir(t, dir)
	t.Setenv("CHAIND_GRPC_PORT", "19090")
	t.Setenv("AUTH_TOKEN_SECRET", "from-env")

	cfg, found, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !found {
		t.Error("expected config file to be found")
	}
	if cfg.HTTPPort != 18080 {
		t.Errorf("http port = %d, want 18080", cfg.HTTPPort)
	}
	if cfg.GRPCPort != 19090 {
		t.Errorf("grpc port = %d, want env override 19090", cfg.GRPCPort)
	}
	if cfg.TokenSecret != "from-env" {
		t.Errorf("token secret = %q", cfg.TokenSecret)
	}
	if cfg.Storage != "sqlite" || cfg.SQLitePath != "/var/lib/primechain/chain.db" {
		t.Errorf("storage = %q at %q", cfg.Storage, cfg.SQLitePath)
	}
	if cfg.Admission != "groth16" {
		t.Errorf("admission = %q", cfg.Admission)
	}
	if len(cfg.Webhooks) != 2 {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
	if cfg.Webhooks[0].Name != "https://example.test/hook" || cfg.Webhooks[0].Secret != "s3cret" {
		t.Errorf("webhook[0] = %+v", cfg.Webhooks[0])
	}
	if cfg.Webhooks[1].Name != "audit" {
		t.Errorf("webhook[1] = %+v", cfg.Webhooks[1])
	}
}

func TestLoadConfig_rejectsUnknownModes(t *testing.T) {
	inDir(t, t.TempDir())

	t.Run("storage", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "redis")
		if _, _, err := loadConfig(viper.New()); err == nil {
			t.Error("expected error for unknown storage driver")
		}
	})
	t.Run("admission", func(t *testing.T) {
		t.Setenv("ADMISSION_MODE", "trust-me")
		if _, _, err := loadConfig(viper.New()); err == nil {
			t.Error("expected error for unknown admission mode")
		}
	})
}
