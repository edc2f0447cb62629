package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ifarmer/ifarmer-api/internal/identity"
	jobmetrics "github.com/ifarmer/ifarmer-api/internal/jobs"
)

const reconcileJobName = "identity_reconcile"

// Reconciler applies a desired identity state. *identity.Provisioner satisfies it.
type Reconciler interface {
	Provision(ctx context.Context, state identity.DesiredState) (identity.Report, error)
}

// IdentityReconcileJob re-runs provisioning so roles and seed accounts
// removed out of band are restored.
type IdentityReconcileJob struct {
	Reconciler Reconciler
	State      func() (identity.DesiredState, error)
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewIdentityReconcileJob constructs the job handler.
func NewIdentityReconcileJob(reconciler Reconciler, state func() (identity.DesiredState, error), logger *slog.Logger, metrics *jobmetrics.Metrics) *IdentityReconcileJob {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IdentityReconcileJob{Reconciler: reconciler, State: state, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation run.
func (j *IdentityReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reconciler == nil || j.State == nil {
		return errors.New("identity reconcile: dependencies not configured")
	}
	var payload ReconcilePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("identity reconcile: decode payload: %w", asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(reconcileJobName)
	state, err := j.State()
	if err != nil {
		// Configuration will not fix itself between retries.
		j.Logger.Error("identity reconcile: load desired state", slog.Any("error", err))
		return tracker.End(fmt.Errorf("identity reconcile: %v: %w", err, asynq.SkipRetry))
	}

	report, err := j.Reconciler.Provision(ctx, state)
	if err != nil {
		j.Logger.Error("identity reconcile failed",
			slog.String("reason", payload.Reason),
			slog.Any("error", err),
		)
		return tracker.End(err)
	}
	j.Metrics.AddProvisioned("role", report.RolesCreated)
	j.Metrics.AddProvisioned("user", report.UsersCreated)
	j.Metrics.AddProvisioned("association", report.Associations)

	j.Logger.Info("identity reconciled",
		slog.String("run_id", report.RunID),
		slog.String("reason", payload.Reason),
		slog.Int("roles_created", report.RolesCreated),
		slog.Int("users_created", report.UsersCreated),
		slog.Int("associations", report.Associations),
	)
	return tracker.End(nil)
}
