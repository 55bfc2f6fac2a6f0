package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidateWithToken(t *testing.T) {
	cfg := Defaults()
	cfg.Mapbox.Token = "pk.test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate once a token is set: %v", err)
	}
}

func TestDefaultsRequireMapboxToken(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure without a mapbox token")
	}
	if !strings.Contains(err.Error(), "mapbox: token is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAllocateModeSkipsTokenRequirement(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "allocate"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("allocate mode resolves nothing and needs no token: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "allocate"

[pricing]
freight_per_km = 0.03

[run]
lock_ttl = "10m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "allocate" {
		t.Errorf("mode = %q, want allocate", cfg.Mode)
	}
	if cfg.Pricing.FreightPerKm != 0.03 {
		t.Errorf("freight_per_km = %v, want 0.03", cfg.Pricing.FreightPerKm)
	}
	if cfg.Pricing.FreightMinimum != 1.50 {
		t.Errorf("freight_minimum = %v, want default 1.50", cfg.Pricing.FreightMinimum)
	}
	if cfg.Run.LockTTL.Duration != 10*time.Minute {
		t.Errorf("lock_ttl = %v, want 10m", cfg.Run.LockTTL.Duration)
	}
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
[mapbox]
token = "pk.from-file"
`)
	t.Setenv("GRAINALLOC_MAPBOX_TOKEN", "pk.from-env")
	t.Setenv("GRAINALLOC_RUN_RESOLVER_CONCURRENCY", "4")
	t.Setenv("GRAINALLOC_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mapbox.Token != "pk.from-env" {
		t.Errorf("token = %q, want env value", cfg.Mapbox.Token)
	}
	if cfg.Run.ResolverConcurrency != 4 {
		t.Errorf("resolver_concurrency = %d, want 4", cfg.Run.ResolverConcurrency)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("cors_origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Pricing.TaxRate = 1.5
	cfg.Run.ResolverConcurrency = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "redis: addr", "tax_rate", "resolver_concurrency"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateS3OnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Mapbox.Token = "pk.test"
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled s3 must not be validated: %v", err)
	}

	cfg.S3.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected failure for enabled s3 without a bucket")
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.Mapbox.Token = "pk.secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"

	red := RedactedConfig(&cfg)
	for _, field := range []string{
		red.Postgres.Password,
		red.Redis.Password,
		red.Mapbox.Token,
		red.S3.SecretKey,
		red.Server.APIKey,
	} {
		if strings.Contains(field, "secret") {
			t.Errorf("secret leaked into redacted config: %q", field)
		}
	}
}
