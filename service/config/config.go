package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Clusters accepted by SOLANA_CLUSTER. The cluster selects the explorer
// link suffix and is recorded alongside every durable reference.
const (
	ClusterDevnet      = "devnet"
	ClusterTestnet     = "testnet"
	ClusterMainnetBeta = "mainnet-beta"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// Solana configuration
	SolanaRPCURL      string
	SolanaCluster     string
	SolanaKeypairPath string

	// Metadata upload gateway (durable storage for share token metadata)
	MetadataUploadURL string

	// NATS configuration (optional; transfer events disabled when empty)
	NATSURL string

	// Temporal configuration (reconciliation worker)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all
// required fields. A .env file in the working directory is applied first if
// present. Returns an error if any required configuration is missing or
// invalid.
func Load() (*Config, error) {
	// Best effort; the file is optional and real env vars win.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaCluster = getEnvOrDefault("SOLANA_CLUSTER", ClusterDevnet)
	if !validCluster(cfg.SolanaCluster) {
		errs = append(errs, fmt.Errorf("SOLANA_CLUSTER must be one of devnet, testnet, mainnet-beta (got %q)", cfg.SolanaCluster))
	}

	cfg.SolanaKeypairPath = os.Getenv("SOLANA_KEYPAIR_PATH")
	if cfg.SolanaKeypairPath == "" {
		errs = append(errs, fmt.Errorf("SOLANA_KEYPAIR_PATH is required"))
	}

	cfg.MetadataUploadURL = os.Getenv("METADATA_UPLOAD_URL")
	if cfg.MetadataUploadURL == "" {
		errs = append(errs, fmt.Errorf("METADATA_UPLOAD_URL is required"))
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "tracelot-reconcile")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if !validCluster(c.SolanaCluster) {
		errs = append(errs, fmt.Errorf("SolanaCluster must be one of devnet, testnet, mainnet-beta"))
	}

	if c.SolanaKeypairPath == "" {
		errs = append(errs, fmt.Errorf("SolanaKeypairPath is required"))
	}

	if c.MetadataUploadURL == "" {
		errs = append(errs, fmt.Errorf("MetadataUploadURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validCluster(cluster string) bool {
	switch cluster {
	case ClusterDevnet, ClusterTestnet, ClusterMainnetBeta:
		return true
	}
	return false
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
