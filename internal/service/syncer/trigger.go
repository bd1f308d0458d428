package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TriggerKind string

const (
	TriggerManual        TriggerKind = "manual"
	TriggerScheduled     TriggerKind = "scheduled"
	TriggerExternalEvent TriggerKind = "external_event"
)

// SyncTrigger says what started a sync.
type SyncTrigger interface {
	Kind() TriggerKind
}

// Manual is an explicit request from an HTTP caller or the CLI.
type Manual struct {
	RequestedBy uuid.UUID
}

func (Manual) Kind() TriggerKind { return TriggerManual }

// Scheduled polls every Interval.
type Scheduled struct {
	Interval time.Duration
}

func (Scheduled) Kind() TriggerKind { return TriggerScheduled }

// Run calls fire once immediately and then on every tick until ctx is done.
func (s Scheduled) Run(ctx context.Context, fire func(ctx context.Context)) {
	if s.Interval <= 0 {
		return
	}
	fire(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}

// OnExternalEvent is a sync requested over the message bus.
type OnExternalEvent struct {
	RequestID string
}

func (OnExternalEvent) Kind() TriggerKind { return TriggerExternalEvent }
