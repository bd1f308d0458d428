package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/store"
	"pamsync/pkg/outbox"
)

// ListNotifications returns a user's notifications, newest first. limit 0 means no limit.
func (r *Repository) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `
        SELECT id, org_id, user_id, task_id, type, title, message, is_read, created_at, read_at
        FROM notifications
        WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
        ORDER BY created_at DESC
        LIMIT NULLIF($3::int, 0)
    `
	rows, err := r.db.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		r.logger.Error("Failed to query notifications", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, err
	}
	defer rows.Close()

	list := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.OrgID, &n.UserID, &n.TaskID, &typ, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkNotificationRead keeps the first read_at when called twice.
func (r *Repository) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	query := `
        UPDATE notifications
        SET is_read = TRUE, read_at = COALESCE(read_at, $3)
        WHERE id = $1 AND user_id = $2
    `
	tag, err := r.db.Exec(ctx, query, id, userID, at)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.Error(err), zap.String("notification_id", id.String()))
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertNotification(ctx context.Context, n model.Notification) error {
	query := `
        INSERT INTO notifications (id, org_id, user_id, task_id, type, title, message, is_read, created_at, read_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := t.tx.Exec(ctx, query,
		n.ID, n.OrgID, n.UserID, n.TaskID, string(n.Type), n.Title, n.Message, n.IsRead, n.CreatedAt, n.ReadAt,
	)
	return err
}

func (t *txRepo) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID uuid.UUID, routingKey string, payload any) error {
	return outbox.InsertEventInTx(ctx, t.tx, t.outbox, aggregateType, &aggregateID, routingKey, payload)
}
