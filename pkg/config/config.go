package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds companion server configuration.
type Config struct {
	Port       string
	LogLevel   string
	DataDir    string
	Production bool

	// SigningSeedHex, when set, derives the signing key instead of the key file.
	SigningSeedHex string
	KeyFile        string

	DefaultProvider   string
	CodingProvider    string
	ProseProvider     string
	FallbackProviders []string
	ProvidersFile     string
	ProviderTimeout   time.Duration
	PlanTTL           time.Duration

	DatabaseURL string
	Ledger      string // "sql" | "none"

	Archive ArchiveConfig

	NATSURL   string
	RedisAddr string

	RateLimitRPS   float64
	RateLimitBurst int

	JWTSecret      string
	RiskPolicyFile string

	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
}

// ArchiveConfig selects where signed plans are archived.
type ArchiveConfig struct {
	Type       string // "fs" | "s3" | "gcs" | "none"
	Prefix     string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	GCSBucket  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	dataDir := getenv("EZRA_DATA_DIR", "data")
	return &Config{
		Port:       getenv("PORT", "3000"),
		LogLevel:   strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		DataDir:    dataDir,
		Production: envBool("EZRA_PRODUCTION"),

		SigningSeedHex: os.Getenv("EZRA_SIGNING_SEED"),
		KeyFile:        getenv("EZRA_KEY_FILE", filepath.Join(dataDir, "companion.key")),

		DefaultProvider:   getenv("EZRA_DEFAULT_PROVIDER", "openai"),
		CodingProvider:    getenv("EZRA_CODING_PROVIDER", "openai"),
		ProseProvider:     getenv("EZRA_PROSE_PROVIDER", "anthropic"),
		FallbackProviders: splitList(os.Getenv("EZRA_FALLBACK_PROVIDERS")),
		ProvidersFile:     os.Getenv("EZRA_PROVIDERS_FILE"),
		ProviderTimeout:   envDuration("EZRA_PROVIDER_TIMEOUT", 60*time.Second),
		PlanTTL:           envDuration("EZRA_PLAN_TTL", 24*time.Hour),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Ledger:      strings.ToLower(getenv("EZRA_LEDGER", "sql")),

		Archive: ArchiveConfig{
			Type:       strings.ToLower(getenv("EZRA_ARCHIVE_TYPE", "fs")),
			Prefix:     getenv("EZRA_ARCHIVE_PREFIX", "plans/"),
			S3Bucket:   os.Getenv("EZRA_ARCHIVE_S3_BUCKET"),
			S3Region:   getenv("EZRA_ARCHIVE_S3_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("EZRA_ARCHIVE_S3_ENDPOINT"),
			GCSBucket:  os.Getenv("EZRA_ARCHIVE_GCS_BUCKET"),
		},

		NATSURL:   os.Getenv("EZRA_NATS_URL"),
		RedisAddr: os.Getenv("EZRA_REDIS_ADDR"),

		RateLimitRPS:   envFloat("EZRA_RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("EZRA_RATE_LIMIT_BURST", 20),

		JWTSecret:      os.Getenv("EZRA_JWT_SECRET"),
		RiskPolicyFile: os.Getenv("EZRA_RISK_POLICY_FILE"),

		OTelEnabled:  envBool("OTEL_ENABLED"),
		OTelEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelInsecure: envBool("OTEL_INSECURE"),
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.SigningSeedHex != "" {
		if _, err := hex.DecodeString(c.SigningSeedHex); err != nil {
			return fmt.Errorf("EZRA_SIGNING_SEED must be hex: %w", err)
		}
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("EZRA_PROVIDER_TIMEOUT must not be negative")
	}
	if c.PlanTTL <= 0 {
		return fmt.Errorf("EZRA_PLAN_TTL must be positive")
	}
	switch c.Ledger {
	case "sql", "none":
	default:
		return fmt.Errorf("invalid EZRA_LEDGER %q", c.Ledger)
	}
	switch c.Archive.Type {
	case "fs", "none":
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("EZRA_ARCHIVE_S3_BUCKET is required for s3 archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("EZRA_ARCHIVE_GCS_BUCKET is required for gcs archive")
		}
	default:
		return fmt.Errorf("invalid EZRA_ARCHIVE_TYPE %q", c.Archive.Type)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
