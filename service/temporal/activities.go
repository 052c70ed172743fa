package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/metrics"
	"github.com/tracelot/tracelot/service/solana"
)

// ReconcileTransfersInput contains the input parameters for a reconciliation run.
type ReconcileTransfersInput struct {
	LookbackHours int   `json:"lookback_hours"` // how far back to scan, defaults to 24
	Limit         int32 `json:"limit"`          // max transfers per run, defaults to 500
}

// ReconcileTransfersResult summarizes one reconciliation run.
type ReconcileTransfersResult struct {
	Checked           int       `json:"checked"`
	Confirmed         int       `json:"confirmed"`
	Missing           int       `json:"missing"`
	Failed            int       `json:"failed"`
	MissingSignatures []string  `json:"missing_signatures,omitempty"`
	FailedSignatures  []string  `json:"failed_signatures,omitempty"`
	ReconcileTime     time.Time `json:"reconcile_time"`
	Error             *string   `json:"error,omitempty"`
}

// ListRecentTransfersInput contains parameters for the ListRecentTransfers activity.
type ListRecentTransfersInput struct {
	Since time.Time `json:"since"`
	Limit int32     `json:"limit"`
}

// ListRecentTransfersResult carries the signatures of persisted transfers.
type ListRecentTransfersResult struct {
	Signatures []string `json:"signatures"`
}

// RecordReconcileOutcomeInput carries the run summary for metrics recording.
type RecordReconcileOutcomeInput struct {
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// VerifySignaturesInput contains parameters for the VerifySignatures activity.
type VerifySignaturesInput struct {
	Signatures []string `json:"signatures"`
}

// VerifySignaturesResult contains the per-batch verification outcome.
type VerifySignaturesResult struct {
	Confirmed int      `json:"confirmed"`
	Missing   []string `json:"missing"`
	Failed    []string `json:"failed"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ListShareTransfersSince(ctx context.Context, since time.Time, limit int32) ([]*db.ShareTransfer, error)
}

// LedgerInterface defines the chain operations needed by activities.
// This allows for easy mocking in tests.
type LedgerInterface interface {
	VerifySignatures(ctx context.Context, signatures []solanago.Signature) ([]solana.SignatureStatus, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store   StoreInterface
	ledger  LedgerInterface
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(store StoreInterface, ledger LedgerInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:   store,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
}

// ListRecentTransfers fetches signatures of transfers persisted since the
// given time, oldest first.
func (a *Activities) ListRecentTransfers(ctx context.Context, input ListRecentTransfersInput) (*ListRecentTransfersResult, error) {
	a.logger.DebugContext(ctx, "listing recent transfers",
		"since", input.Since,
		"limit", input.Limit,
	)

	transfers, err := a.store.ListShareTransfersSince(ctx, input.Since, input.Limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list recent transfers", "error", err)
		return nil, fmt.Errorf("failed to list recent transfers: %w", err)
	}

	signatures := make([]string, len(transfers))
	for i, t := range transfers {
		signatures[i] = t.Signature
	}

	a.logger.InfoContext(ctx, "listed recent transfers", "count", len(signatures))
	return &ListRecentTransfersResult{Signatures: signatures}, nil
}

// VerifySignatures checks one batch of transfer signatures against the chain.
// Signatures the chain has no record of are reported as missing; signatures
// recorded with a transaction error are reported as failed.
func (a *Activities) VerifySignatures(ctx context.Context, input VerifySignaturesInput) (*VerifySignaturesResult, error) {
	result := &VerifySignaturesResult{}
	if len(input.Signatures) == 0 {
		return result, nil
	}

	sigs := make([]solanago.Signature, 0, len(input.Signatures))
	for _, raw := range input.Signatures {
		sig, err := solanago.SignatureFromBase58(raw)
		if err != nil {
			// A signature we persisted but cannot parse is a data problem,
			// not a chain problem. Count it as failed and keep going.
			a.logger.ErrorContext(ctx, "unparseable persisted signature", "signature", raw, "error", err)
			result.Failed = append(result.Failed, raw)
			continue
		}
		sigs = append(sigs, sig)
	}

	statuses, err := a.ledger.VerifySignatures(ctx, sigs)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to verify signatures", "count", len(sigs), "error", err)
		return nil, fmt.Errorf("failed to verify signatures: %w", err)
	}

	for _, st := range statuses {
		switch {
		case !st.Found:
			result.Missing = append(result.Missing, st.Signature.String())
		case st.Failed:
			result.Failed = append(result.Failed, st.Signature.String())
		default:
			result.Confirmed++
		}
	}

	if a.metrics != nil {
		for i := 0; i < result.Confirmed; i++ {
			a.metrics.RecordSignatureCheck("confirmed")
		}
		for range result.Missing {
			a.metrics.RecordSignatureCheck("missing")
		}
		for range result.Failed {
			a.metrics.RecordSignatureCheck("failed")
		}
	}

	a.logger.InfoContext(ctx, "verified signature batch",
		"checked", len(input.Signatures),
		"confirmed", result.Confirmed,
		"missing", len(result.Missing),
		"failed", len(result.Failed),
	)

	return result, nil
}

// RecordReconcileOutcome records a finished run's status and duration. The
// workflow measures the duration itself so the metric covers the whole run,
// not a single activity.
func (a *Activities) RecordReconcileOutcome(ctx context.Context, input RecordReconcileOutcomeInput) error {
	if a.metrics != nil {
		a.metrics.RecordReconcileRun(input.Status, input.DurationSeconds)
	}
	return nil
}
