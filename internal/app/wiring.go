package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-admin/internal/observability"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/internal/users"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

// EmailEnqueuer submits e-mail tasks to the job queue.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// StoreBindings lists the side channels fed by store events. Nil fields are
// skipped.
type StoreBindings struct {
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	Audit          *shared.AuditLogger
	Mail           EmailEnqueuer
	EnqueueTimeout time.Duration
}

// OperationNotifier counts store notifications by operation and outcome.
func OperationNotifier(metrics *observability.Metrics) users.Notifier {
	return users.NotifierFunc(func(_ context.Context, n users.Notification) {
		metrics.CountOperation(n.Op, n.Kind)
	})
}

// BindStore subscribes metrics, audit and password-change notices to store
// events. The returned func detaches them.
func BindStore(store *users.Store, b StoreBindings) func() {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := b.EnqueueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	stats := store.Stats()
	b.Metrics.SetUserCounts(stats.Total, stats.Admins)
	b.Metrics.SetBusy(stats.Busy)

	return store.Subscribe(func(ev users.Event) {
		b.Metrics.CountEvent(string(ev.Type))
		if ev.Type == users.EventBusyChanged {
			b.Metrics.SetBusy(ev.Busy)
			return
		}
		stats := store.Stats()
		b.Metrics.SetUserCounts(stats.Total, stats.Admins)

		ctx := context.Background()
		if b.Audit != nil {
			if err := b.Audit.Record(ctx, shared.AuditLog{
				Action:   string(ev.Type),
				Entity:   "user",
				EntityID: ev.UserID,
			}); err != nil {
				logger.Warn("audit store event", slog.String("type", string(ev.Type)), slog.Any("error", err))
			}
		}

		if ev.Type != users.EventPasswordChanged || b.Mail == nil {
			return
		}
		user, ok := store.User(ev.UserID)
		if !ok || user.Email == "" {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		info, err := b.Mail.EnqueueSendEmail(ctx, jobs.PasswordChangedNotice(user.Name, user.Email))
		if err != nil {
			logger.Warn("enqueue password notice", slog.String("user_id", user.ID), slog.Any("error", err))
			return
		}
		logger.Info("password notice enqueued", slog.String("user_id", user.ID), slog.String("task_id", info.ID))
	})
}
