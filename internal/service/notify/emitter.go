package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/model"
	"pamsync/internal/store"
	"pamsync/pkg/trace"
)

const aggregateNotification = "notification"

// Emitter writes notification rows and their outbox event inside the caller's transaction.
type Emitter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEmitter(logger *zap.Logger) *Emitter {
	return &Emitter{logger: logger, now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Emit persists n and enqueues notification.created.
func (e *Emitter) Emit(ctx context.Context, tx store.Tx, n model.Notification) (model.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = e.now()

	if err := tx.InsertNotification(ctx, n); err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	payload := mqcontracts.NotificationCreatedPayload{
		NotificationID: n.ID.String(),
		OrgID:          n.OrgID.String(),
		UserID:         n.UserID.String(),
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
		TraceID:        trace.FromContext(ctx),
	}
	if n.TaskID != nil {
		payload.TaskID = n.TaskID.String()
	}
	if err := tx.EnqueueEvent(ctx, aggregateNotification, n.ID, mqcontracts.RoutingNotificationCreated, payload); err != nil {
		return model.Notification{}, fmt.Errorf("enqueue notification event: %w", err)
	}

	e.logger.Debug("Notification emitted",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
	)
	return n, nil
}
