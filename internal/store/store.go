package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pamsync/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store is the read side plus the transaction entry point.
type Store interface {
	// InTx runs fn in one transaction; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetTask(ctx context.Context, id uuid.UUID) (model.Task, error)
	ListTasksByPeriod(ctx context.Context, orgID uuid.UUID, period model.PeriodRef) ([]model.Task, error)
	ListEvidence(ctx context.Context, taskID uuid.UUID) ([]model.TaskEvidence, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	FindAccountsByEmails(ctx context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error)
	Ping(ctx context.Context) error
}

// Tx is the write side, only reachable inside InTx.
type Tx interface {
	// UpsertWeekPlan creates the plan or overwrites importer and source label.
	UpsertWeekPlan(ctx context.Context, wp model.WeekPlan) (model.WeekPlan, error)
	// EnsureWeekPlan creates the plan and leaves an existing one untouched.
	EnsureWeekPlan(ctx context.Context, wp model.WeekPlan) (model.WeekPlan, error)
	DeleteTasksByWeekPlan(ctx context.Context, weekPlanID uuid.UUID) (int64, error)
	InsertTasks(ctx context.Context, tasks []model.Task) (int64, error)

	// GetTaskForUpdate locks the row until the transaction ends.
	GetTaskForUpdate(ctx context.Context, id uuid.UUID) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	InsertEvidence(ctx context.Context, ev model.TaskEvidence) error

	InsertNotification(ctx context.Context, n model.Notification) error
	// EnqueueEvent writes an outbox event committed together with the transaction.
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID uuid.UUID, routingKey string, payload any) error
}
