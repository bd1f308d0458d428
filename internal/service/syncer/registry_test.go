package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestRegistry_SyncUnknownOrg(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if _, err := r.Sync(context.Background(), uuid.New(), SyncRequest{}); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("Sync() err=%v, want %v", err, ErrUnknownSource)
	}
}

func TestRegistry_SyncAll(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	a := newFixture(t, goodDoc)
	b := newFixture(t, "")
	b.fetcher.err = errors.New("timeout")
	r.Register(a.orchestrator(t))
	r.Register(b.orchestrator(t))

	results := r.SyncAll(context.Background(), SyncRequest{Trigger: Scheduled{}})
	if len(results) != 2 {
		t.Fatalf("results=%d, want 2", len(results))
	}
	byOrg := map[uuid.UUID]SyncResult{}
	for _, res := range results {
		byOrg[res.OrgID] = res
		if res.Trigger != TriggerScheduled {
			t.Fatalf("Trigger=%s, want scheduled", res.Trigger)
		}
	}
	if byOrg[a.org].Outcome != OutcomeImported {
		t.Fatalf("org a=%s, want imported", byOrg[a.org].Outcome)
	}
	if byOrg[b.org].Outcome != OutcomeFailed {
		t.Fatalf("org b=%s, want failed", byOrg[b.org].Outcome)
	}

	res, err := r.Sync(context.Background(), a.org, SyncRequest{})
	if err != nil || res.Outcome != OutcomeThrottled {
		t.Fatalf("Sync()=%s err=%v, want throttled", res.Outcome, err)
	}
}
