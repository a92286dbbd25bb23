package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger modes.
const (
	LedgerEmbedded = "embedded"
	LedgerHTTP     = "http"
)

// Development-only secrets. FromEnv refuses them outside development.
const (
	devSigningKey     = "dev-secret-key-change-in-production"
	devVaultMasterKey = "bWVkdmF1bHQtZGV2LW1hc3Rlci1rZXktMzItYnl0ZXM=" // 32 bytes
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	JWTSigningKey  string
	JWTIssuer      string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	TrustedProxies []string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Vault    VaultConfig
}

// DatabaseConfig selects Postgres-backed stores when URL is set.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs the CreateRequest idempotency keys when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit sink when Brokers is set.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

// LedgerConfig selects the ledger node and the per-call timeouts.
type LedgerConfig struct {
	Mode          string
	URL           string
	DataDir       string
	Timeout       time.Duration
	VerifyTimeout time.Duration
}

// VaultConfig holds the master key that wraps every record key.
type VaultConfig struct {
	MasterKey []byte
}

// IsDevelopment reports whether development defaults are allowed.
func (s Server) IsDevelopment() bool {
	return s.Environment == "development" || s.Environment == "test"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           getEnv("MEDVAULT_ADDR", ":8080"),
		Environment:    getEnv("MEDVAULT_ENV", "development"),
		JWTSigningKey:  getEnv("JWT_SIGNING_KEY", devSigningKey),
		JWTIssuer:      getEnv("JWT_ISSUER", "medvault"),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("KAFKA_BROKERS"),
			AuditTopic: getEnv("AUDIT_TOPIC", "medvault.audit"),
		},
		Ledger: LedgerConfig{
			Mode:    getEnv("LEDGER_MODE", LedgerEmbedded),
			URL:     os.Getenv("LEDGER_URL"),
			DataDir: getEnv("LEDGER_DATA_DIR", "./data/ledger"),
		},
	}

	var err error
	durations := []struct {
		env  string
		def  time.Duration
		dest *time.Duration
	}{
		{"TOKEN_TTL", 15 * time.Minute, &cfg.TokenTTL},
		{"REQUEST_TIMEOUT", 30 * time.Second, &cfg.RequestTimeout},
		{"IDEMPOTENCY_TTL", 24 * time.Hour, &cfg.IdempotencyTTL},
		{"LEDGER_TIMEOUT", 5 * time.Second, &cfg.Ledger.Timeout},
		{"VERIFY_TIMEOUT", 5 * time.Second, &cfg.Ledger.VerifyTimeout},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.env, d.def); err != nil {
			return Server{}, err
		}
	}
	if cfg.Database.MaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return Server{}, err
	}

	cfg.Vault.MasterKey, err = base64.StdEncoding.DecodeString(getEnv("VAULT_MASTER_KEY", devVaultMasterKey))
	if err != nil {
		return Server{}, fmt.Errorf("VAULT_MASTER_KEY: decode base64: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	if len(s.Vault.MasterKey) != 32 {
		return fmt.Errorf("VAULT_MASTER_KEY must decode to 32 bytes, got %d", len(s.Vault.MasterKey))
	}
	switch s.Ledger.Mode {
	case LedgerEmbedded:
	case LedgerHTTP:
		if s.Ledger.URL == "" {
			return fmt.Errorf("LEDGER_URL is required when LEDGER_MODE=%s", LedgerHTTP)
		}
	default:
		return fmt.Errorf("LEDGER_MODE must be %q or %q, got %q", LedgerEmbedded, LedgerHTTP, s.Ledger.Mode)
	}
	if !s.IsDevelopment() {
		if s.JWTSigningKey == devSigningKey {
			return fmt.Errorf("JWT_SIGNING_KEY must be set outside development")
		}
		if os.Getenv("VAULT_MASTER_KEY") == "" {
			return fmt.Errorf("VAULT_MASTER_KEY must be set outside development")
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LedgerNode configures cmd/ledgerd.
type LedgerNode struct {
	Addr    string
	DataDir string
}

// LedgerNodeFromEnv reads the ledger node settings.
func LedgerNodeFromEnv() LedgerNode {
	return LedgerNode{
		Addr:    getEnv("LEDGERD_ADDR", ":8090"),
		DataDir: getEnv("LEDGER_DATA_DIR", "./data/ledger"),
	}
}
