package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/service/syncer"
	"pamsync/pkg/logger"
	"pamsync/pkg/trace"
)

const syncRequestedHandlerName = "pam_sync_requested"

// Syncer runs one organization's sync.
type Syncer interface {
	Sync(ctx context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error)
}

// OnceGuard drops redelivered events.
type OnceGuard interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
}

type SyncRequestedHandler struct {
	syncer Syncer
	once   OnceGuard
	logger *zap.Logger
}

func NewSyncRequestedHandler(s Syncer, once OnceGuard, logger *zap.Logger) *SyncRequestedHandler {
	return &SyncRequestedHandler{syncer: s, once: once, logger: logger}
}

// Handle runs a sync for pam.sync.requested. A failed sync is reported
// through pam.sync.completed, so only undecodable messages return an error.
func (h *SyncRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.SyncRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal SyncRequestedPayload", zap.Error(err))
		return err
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger)

	orgID, err := uuid.Parse(p.OrgID)
	if err != nil {
		log.Error("Invalid org_id in sync request", zap.String("org_id", p.OrgID), zap.Error(err))
		return fmt.Errorf("invalid org_id %q: %w", p.OrgID, err)
	}

	if p.RequestID != "" && h.once != nil && !h.once.AcquireOnce(ctx, syncRequestedHandlerName, p.RequestID) {
		return nil
	}

	log.Info("Handling pam.sync.requested event",
		zap.String("org_id", p.OrgID),
		zap.String("request_id", p.RequestID),
		zap.Bool("force", p.Force),
	)

	res, err := h.syncer.Sync(ctx, orgID, syncer.SyncRequest{
		Force:   p.Force,
		Trigger: syncer.OnExternalEvent{RequestID: p.RequestID},
	})
	if errors.Is(err, syncer.ErrUnknownSource) {
		log.Warn("Sync requested for organization without source", zap.String("org_id", p.OrgID))
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("Sync request handled",
		zap.String("org_id", p.OrgID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("tasks_created", res.TasksCreated),
	)
	return nil
}
