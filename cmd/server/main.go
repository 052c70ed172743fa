package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tracelot/tracelot/service/config"
	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/fractional"
	"github.com/tracelot/tracelot/service/metadata"
	"github.com/tracelot/tracelot/service/metrics"
	natspkg "github.com/tracelot/tracelot/service/nats"
	"github.com/tracelot/tracelot/service/server"
	"github.com/tracelot/tracelot/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"cluster", cfg.SolanaCluster,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics(nil)

	// Initialize Solana client with the service authority keypair
	signer, err := solana.LoadSigner(cfg.SolanaKeypairPath)
	if err != nil {
		logger.Error("failed to load signer keypair", "error", err)
		os.Exit(1)
	}
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	ledger := solana.NewClient(solanaRPC, signer, cfg.SolanaCluster, cfg.SolanaRPCURL, m, logger)
	logger.Info("initialized solana RPC client",
		"url", cfg.SolanaRPCURL,
		"authority", ledger.Signer().String(),
	)

	uploader := metadata.NewHTTPUploader(cfg.MetadataUploadURL, logger)

	// NATS is optional; without it transfer events are simply not published
	var publisher fractional.Publisher
	if cfg.NATSURL != "" {
		js, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer js.Close()
		publisher = js
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, transfer events will not be published")
	}

	svc := fractional.NewService(ledger, store, uploader, publisher, m, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, store, svc, &mintVerifier{ledger}, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// mintVerifier adapts the solana client to the server's Verifier interface,
// which works with base58 strings from stored records.
type mintVerifier struct {
	ledger *solana.Client
}

func (v *mintVerifier) MintExistsByAddress(ctx context.Context, address string) (bool, error) {
	mint, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return false, nil
	}
	return v.ledger.MintExists(ctx, mint)
}

func (v *mintVerifier) Cluster() string {
	return v.ledger.Cluster()
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
