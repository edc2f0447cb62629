package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdentityReconcile re-applies the desired identity state.
	TaskIdentityReconcile = "identity:reconcile"
)

// ReconcilePayload records why a reconciliation was requested.
type ReconcilePayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewIdentityReconcileTask constructs an Asynq task. Overlapping runs are
// suppressed for the unique window.
func NewIdentityReconcileTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "schedule"
	}
	body, err := json.Marshal(ReconcilePayload{Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdentityReconcile, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}
