package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pamsync/internal/model"
	"pamsync/internal/service/lifecycle"
	"pamsync/internal/service/notify"
	"pamsync/internal/service/syncer"
)

// ActorKey is the gin context key the auth middleware stores the caller under.
const ActorKey = "actor"

// Syncer triggers one organization's sync.
type Syncer interface {
	Sync(ctx context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error)
}

// TaskService is the task lifecycle API.
type TaskService interface {
	GetTask(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) (lifecycle.TaskView, error)
	ListPeriod(ctx context.Context, actor lifecycle.Actor, period model.PeriodRef) ([]lifecycle.TaskView, error)
	ListEvidence(ctx context.Context, actor lifecycle.Actor, taskID uuid.UUID) ([]model.TaskEvidence, error)
	CreateTask(ctx context.Context, actor lifecycle.Actor, in lifecycle.NewTask) (lifecycle.TaskView, error)
	UpdateTask(ctx context.Context, actor lifecycle.Actor, id uuid.UUID, patch lifecycle.TaskPatch) (lifecycle.TaskView, error)
	DeleteTask(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) error
	Acknowledge(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) (lifecycle.TaskView, error)
	UploadEvidence(ctx context.Context, actor lifecycle.Actor, id uuid.UUID, up lifecycle.EvidenceUpload) (model.TaskEvidence, error)
	ApproveEvidence(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) (lifecycle.TaskView, error)
	RejectEvidence(ctx context.Context, actor lifecycle.Actor, id uuid.UUID, comment string) (lifecycle.TaskView, error)
}

// NotificationService is a user's inbox.
type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// getActor 读取 AuthMiddleware 写入的调用者
func getActor(c *gin.Context) (lifecycle.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return lifecycle.Actor{}, false
	}
	actor, ok := v.(lifecycle.Actor)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid actor"})
		return lifecycle.Actor{}, false
	}
	return actor, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrTaskNotFound),
		errors.Is(err, notify.ErrNotificationNotFound),
		errors.Is(err, syncer.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrTaskLocked):
		return http.StatusLocked
	case errors.Is(err, lifecycle.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// 不向客户端暴露存储层细节
		msg = "internal error"
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
