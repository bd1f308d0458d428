package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownSource = errors.New("no sync source configured for organization")

// Registry holds one orchestrator per organization.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[uuid.UUID]*Orchestrator
	logger        *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{orchestrators: make(map[uuid.UUID]*Orchestrator), logger: logger}
}

func (r *Registry) Register(o *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orchestrators[o.Source().OrgID] = o
}

func (r *Registry) Get(orgID uuid.UUID) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orchestrators[orgID]
	return o, ok
}

// Sync runs the orchestrator of orgID.
func (r *Registry) Sync(ctx context.Context, orgID uuid.UUID, req SyncRequest) (SyncResult, error) {
	o, ok := r.Get(orgID)
	if !ok {
		return SyncResult{}, ErrUnknownSource
	}
	return o.Sync(ctx, req), nil
}

// SyncAll runs every source one after the other, ordered by org id.
func (r *Registry) SyncAll(ctx context.Context, req SyncRequest) []SyncResult {
	r.mu.RLock()
	list := make([]*Orchestrator, 0, len(r.orchestrators))
	for _, o := range r.orchestrators {
		list = append(list, o)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Source().OrgID.String() < list[j].Source().OrgID.String()
	})

	results := make([]SyncResult, 0, len(list))
	for _, o := range list {
		if ctx.Err() != nil {
			break
		}
		results = append(results, o.Sync(ctx, req))
	}
	return results
}

// RunScheduled polls every source on s.Interval until ctx is done.
func (r *Registry) RunScheduled(ctx context.Context, s Scheduled) {
	r.logger.Info("Starting scheduled sync", zap.Duration("interval", s.Interval))
	s.Run(ctx, func(ctx context.Context) {
		for _, res := range r.SyncAll(ctx, SyncRequest{Trigger: s}) {
			if res.Outcome == OutcomeFailed {
				r.logger.Warn("Scheduled sync failed",
					zap.String("org_id", res.OrgID.String()),
					zap.Strings("errors", res.Errors),
				)
			}
		}
	})
	r.logger.Info("Scheduled sync stopped")
}
