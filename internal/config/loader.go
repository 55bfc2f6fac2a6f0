package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GRAINALLOC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GRAINALLOC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GRAINALLOC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GRAINALLOC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GRAINALLOC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GRAINALLOC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GRAINALLOC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GRAINALLOC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GRAINALLOC_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GRAINALLOC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GRAINALLOC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GRAINALLOC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GRAINALLOC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GRAINALLOC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GRAINALLOC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GRAINALLOC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GRAINALLOC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GRAINALLOC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "GRAINALLOC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "GRAINALLOC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GRAINALLOC_S3_REGION")
	setStr(&cfg.S3.Bucket, "GRAINALLOC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GRAINALLOC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GRAINALLOC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GRAINALLOC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GRAINALLOC_S3_FORCE_PATH_STYLE")

	// ── Mapbox ──
	setStr(&cfg.Mapbox.BaseURL, "GRAINALLOC_MAPBOX_BASE_URL")
	setStr(&cfg.Mapbox.Token, "GRAINALLOC_MAPBOX_TOKEN")
	setDuration(&cfg.Mapbox.Timeout, "GRAINALLOC_MAPBOX_TIMEOUT")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.FreightPerKm, "GRAINALLOC_PRICING_FREIGHT_PER_KM")
	setFloat64(&cfg.Pricing.FreightMinimum, "GRAINALLOC_PRICING_FREIGHT_MINIMUM")
	setFloat64(&cfg.Pricing.TaxRate, "GRAINALLOC_PRICING_TAX_RATE")

	// ── Run ──
	setInt(&cfg.Run.ResolverConcurrency, "GRAINALLOC_RUN_RESOLVER_CONCURRENCY")
	setDuration(&cfg.Run.LockTTL, "GRAINALLOC_RUN_LOCK_TTL")
	setBool(&cfg.Run.ArchiveEnabled, "GRAINALLOC_RUN_ARCHIVE_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GRAINALLOC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GRAINALLOC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GRAINALLOC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "GRAINALLOC_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "GRAINALLOC_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "GRAINALLOC_MODE")
	setStr(&cfg.LogLevel, "GRAINALLOC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
