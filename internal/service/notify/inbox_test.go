package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/store"
	"pamsync/internal/store/memory"
)

func TestInbox_ListAndMarkRead(t *testing.T) {
	st := memory.New()
	user := uuid.New()
	em := NewEmitter(zap.NewNop())
	ctx := context.Background()

	var first model.Notification
	err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		first, err = em.Emit(ctx, tx, model.Notification{UserID: user, Type: model.NotificationTaskAssigned, Title: "a"})
		if err != nil {
			return err
		}
		_, err = em.Emit(ctx, tx, model.Notification{UserID: user, Type: model.NotificationTaskAssigned, Title: "b"})
		return err
	})
	if err != nil {
		t.Fatalf("InTx() err=%v", err)
	}

	inbox := NewInbox(st)
	if err := inbox.MarkRead(ctx, user, first.ID); err != nil {
		t.Fatalf("MarkRead() err=%v, want nil", err)
	}
	if err := inbox.MarkRead(ctx, user, first.ID); err != nil {
		t.Fatalf("second MarkRead() err=%v, want nil", err)
	}

	unread, err := inbox.List(ctx, user, true, 0)
	if err != nil || len(unread) != 1 || unread[0].Title != "b" {
		t.Fatalf("List(unread)=%+v err=%v, want only b", unread, err)
	}
	all, _ := inbox.List(ctx, user, false, 0)
	if len(all) != 2 {
		t.Fatalf("List(all)=%d, want 2", len(all))
	}

	if err := inbox.MarkRead(ctx, uuid.New(), first.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("MarkRead(other user) err=%v, want %v", err, ErrNotificationNotFound)
	}
}
