package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerAddr:        ":8080",
		LogLevel:          "info",
		DatabaseURL:       "postgres://localhost:5432/tracelot",
		SolanaRPCURL:      "https://api.devnet.solana.com",
		SolanaCluster:     ClusterDevnet,
		SolanaKeypairPath: "/tmp/id.json",
		MetadataUploadURL: "https://uploads.example.com/v1/json",
		TemporalHost:      "localhost:7233",
		TemporalNamespace: "default",
		TemporalTaskQueue: "tracelot-reconcile",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DatabaseURL is required",
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.SolanaRPCURL = "" },
			wantErr: "SolanaRPCURL is required",
		},
		{
			name:    "bad cluster",
			mutate:  func(c *Config) { c.SolanaCluster = "localnet" },
			wantErr: "SolanaCluster",
		},
		{
			name:    "missing keypair path",
			mutate:  func(c *Config) { c.SolanaKeypairPath = "" },
			wantErr: "SolanaKeypairPath is required",
		},
		{
			name:    "missing upload url",
			mutate:  func(c *Config) { c.MetadataUploadURL = "" },
			wantErr: "MetadataUploadURL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/tracelot")
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("SOLANA_CLUSTER", "testnet")
	t.Setenv("SOLANA_KEYPAIR_PATH", "/tmp/id.json")
	t.Setenv("METADATA_UPLOAD_URL", "https://uploads.example.com/v1/json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "testnet", cfg.SolanaCluster)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "tracelot-reconcile", cfg.TemporalTaskQueue)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("SOLANA_KEYPAIR_PATH", "")
	t.Setenv("METADATA_UPLOAD_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}
