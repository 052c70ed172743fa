package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// GetSignatureStatuses caps requests at 256 signatures, so batches stay
// under that.
const verifyBatchSize = 256

const (
	defaultLookbackHours = 24
	defaultTransferLimit = 500
)

// ReconcileTransfersWorkflow audits recently persisted share transfers
// against the chain. It is triggered by a Temporal schedule at a configured
// interval.
//
// The workflow performs these steps:
// 1. List transfer signatures persisted in the lookback window (ListRecentTransfers activity)
// 2. Verify each batch of signatures against the chain (VerifySignatures activity)
// 3. Return a summary; missing or failed signatures are logged for operators
func ReconcileTransfersWorkflow(ctx workflow.Context, input ReconcileTransfersInput) (*ReconcileTransfersResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReconcileTransfersWorkflow started",
		"lookback_hours", input.LookbackHours,
		"limit", input.Limit,
	)
	runStart := workflow.Now(ctx)

	lookback := input.LookbackHours
	if lookback <= 0 {
		lookback = defaultLookbackHours
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultTransferLimit
	}

	result := &ReconcileTransfersResult{
		ReconcileTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// A failed recording never fails the run itself.
	recordOutcome := func(status string) {
		err := workflow.ExecuteActivity(ctx, a.RecordReconcileOutcome, RecordReconcileOutcomeInput{
			Status:          status,
			DurationSeconds: workflow.Now(ctx).Sub(runStart).Seconds(),
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("failed to record reconcile outcome", "error", err)
		}
	}

	// Step 1: List transfers persisted in the lookback window
	since := workflow.Now(ctx).Add(-time.Duration(lookback) * time.Hour)
	var listResult *ListRecentTransfersResult
	err := workflow.ExecuteActivity(ctx, a.ListRecentTransfers, ListRecentTransfersInput{
		Since: since,
		Limit: limit,
	}).Get(ctx, &listResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to list recent transfers: %v", err)
		result.Error = &errMsg
		recordOutcome("error")
		return result, fmt.Errorf("failed to list recent transfers: %w", err)
	}

	result.Checked = len(listResult.Signatures)
	if result.Checked == 0 {
		logger.Info("no transfers to reconcile")
		recordOutcome("success")
		return result, nil
	}

	// Step 2: Verify signatures in batches
	for start := 0; start < len(listResult.Signatures); start += verifyBatchSize {
		end := start + verifyBatchSize
		if end > len(listResult.Signatures) {
			end = len(listResult.Signatures)
		}
		batch := listResult.Signatures[start:end]

		var verifyResult *VerifySignaturesResult
		err := workflow.ExecuteActivity(ctx, a.VerifySignatures, VerifySignaturesInput{
			Signatures: batch,
		}).Get(ctx, &verifyResult)
		if err != nil {
			errMsg := fmt.Sprintf("failed to verify signatures: %v", err)
			result.Error = &errMsg
			recordOutcome("error")
			return result, fmt.Errorf("failed to verify signatures: %w", err)
		}

		result.Confirmed += verifyResult.Confirmed
		result.Missing += len(verifyResult.Missing)
		result.Failed += len(verifyResult.Failed)
		result.MissingSignatures = append(result.MissingSignatures, verifyResult.Missing...)
		result.FailedSignatures = append(result.FailedSignatures, verifyResult.Failed...)
	}

	// Divergence between the database and the chain needs operator attention.
	if result.Missing > 0 || result.Failed > 0 {
		logger.Warn("persisted transfers diverge from chain state",
			"missing", result.Missing,
			"failed", result.Failed,
			"missing_signatures", result.MissingSignatures,
			"failed_signatures", result.FailedSignatures,
		)
	}

	recordOutcome("success")

	logger.Info("ReconcileTransfersWorkflow completed",
		"checked", result.Checked,
		"confirmed", result.Confirmed,
		"missing", result.Missing,
		"failed", result.Failed,
	)

	return result, nil
}
