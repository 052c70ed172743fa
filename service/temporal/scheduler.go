package temporal

import (
	"context"
	"time"
)

// Scheduler manages the Temporal schedule for transfer reconciliation.
type Scheduler interface {
	// CreateReconcileSchedule creates the schedule that triggers
	// ReconcileTransfersWorkflow on the given interval.
	CreateReconcileSchedule(ctx context.Context, interval time.Duration, input ReconcileTransfersInput) error

	// DeleteReconcileSchedule deletes the reconciliation schedule.
	DeleteReconcileSchedule(ctx context.Context) error
}

// reconcileScheduleID is the fixed Temporal schedule ID. There is one
// reconciliation schedule per deployment.
const reconcileScheduleID = "reconcile-share-transfers"
