package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pamsync/internal/model"
	"pamsync/internal/store"
)

var ErrNotificationNotFound = errors.New("notification not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Inbox is the read side of a user's notifications.
type Inbox struct {
	store store.Store
	now   func() time.Time
}

func NewInbox(st store.Store) *Inbox {
	return &Inbox{store: st, now: time.Now}
}

// List returns the user's notifications, newest first.
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return i.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkRead is idempotent; other users' notifications are reported as not found.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	err := i.store.MarkNotificationRead(ctx, userID, id, i.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}
