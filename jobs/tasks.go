package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/recycleops/recycleops/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge removes expired session audit rows.
	TaskSessionPurge = "sessions:purge"
)

// SessionPurgePayload bounds a purge run. Before defaults to the task's
// processing time when zero.
type SessionPurgePayload struct {
	Before time.Time `json:"before,omitempty"`
}

// NewSessionPurgeTask constructs the purge task.
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}

// NewSessionPurgeHandler returns the handler that deletes session rows whose
// expiry has passed. Revoked tokens age out of the denylist on their own via
// Redis TTLs, so only the relational audit table needs sweeping.
func NewSessionPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_purge")
		var payload SessionPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		before := payload.Before
		if before.IsZero() {
			before = time.Now().UTC()
		}
		tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
		if err != nil {
			logger.Error("session purge", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("session purge", slog.Int64("deleted", tag.RowsAffected()))
		return tracker.End(nil)
	}
}
