package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pamsync/internal/service/syncer"
	"pamsync/pkg/logger"
)

type SyncHandler struct {
	syncer Syncer
	logger *zap.Logger
}

func NewSyncHandler(s Syncer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncer: s, logger: logger}
}

// Sync handles POST /pam/sync?force=bool
// 同步在后台上下文中完成，客户端断开不会中断
func (h *SyncHandler) Sync(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	force := false
	if raw := c.Query("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "force must be a boolean"})
			return
		}
		force = v
	}

	res, err := h.syncer.Sync(c.Request.Context(), actor.OrgID, syncer.SyncRequest{
		Force:   force,
		Trigger: syncer.Manual{RequestedBy: actor.AccountID},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Info("Manual sync finished",
		zap.String("org_id", actor.OrgID.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("tasks_created", res.TasksCreated),
	)
	c.JSON(http.StatusOK, res)
}
