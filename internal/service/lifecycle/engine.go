package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/notify"
	"pamsync/internal/store"
	"pamsync/internal/validate"
	"pamsync/pkg/logger"
	"pamsync/pkg/metrics"
	"pamsync/pkg/rbac"
)

const manualSourceLabel = "manual"

// Engine enforces the task state machine:
//
//	PENDING --acknowledge--> IN_PROGRESS --upload--> IN_PROGRESS[evidence]
//	IN_PROGRESS[evidence] --approve--> DONE
//	IN_PROGRESS[evidence] --reject--> IN_PROGRESS
//
// OVERDUE is derived from the date and never stored. DONE tasks are locked.
type Engine struct {
	store    store.Store
	resolver *identity.Resolver
	emitter  *notify.Emitter
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

func NewEngine(st store.Store, resolver *identity.Resolver, emitter *notify.Emitter, loc *time.Location, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:    st,
		resolver: resolver,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
		loc:      loc,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Today is the current date in the configured time zone.
func (e *Engine) Today() time.Time {
	return e.now().In(e.loc)
}

func (e *Engine) view(t model.Task) TaskView {
	return TaskView{Task: t, EffectiveStatus: t.EffectiveStatus(e.Today())}
}

func authorize(actor Actor, permission string) error {
	if err := rbac.CheckPermission(actor.Role, permission); err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return nil
}

// GetTask returns one task of the actor's organization.
func (e *Engine) GetTask(ctx context.Context, actor Actor, id uuid.UUID) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskRead); err != nil {
		return TaskView{}, err
	}
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return TaskView{}, mapNotFound(err)
	}
	if t.OrgID != actor.OrgID {
		return TaskView{}, ErrTaskNotFound
	}
	return e.view(t), nil
}

// ListPeriod lists the tasks of one week with their effective status.
func (e *Engine) ListPeriod(ctx context.Context, actor Actor, period model.PeriodRef) ([]TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskRead); err != nil {
		return nil, err
	}
	tasks, err := e.store.ListTasksByPeriod(ctx, actor.OrgID, period)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, e.view(t))
	}
	return views, nil
}

// ListEvidence returns the evidence history of a task, oldest first.
func (e *Engine) ListEvidence(ctx context.Context, actor Actor, taskID uuid.UUID) ([]model.TaskEvidence, error) {
	if _, err := e.GetTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	ev, err := e.store.ListEvidence(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return ev, nil
}

// CreateTask adds a task to the period's week plan, creating the plan if needed.
func (e *Engine) CreateTask(ctx context.Context, actor Actor, in NewTask) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskManage); err != nil {
		return TaskView{}, err
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := validateNewTask(in); err != nil {
		return TaskView{}, err
	}

	resolution, err := e.resolver.Resolve(ctx, actor.OrgID, []string{in.Assignee})
	if err != nil {
		return TaskView{}, err
	}

	now := e.now()
	task := model.Task{
		ID:          uuid.New(),
		OrgID:       actor.OrgID,
		WeekYear:    in.Period.Year,
		WeekNumber:  in.Period.Week,
		Date:        model.DateOnly(in.Date),
		EndDate:     dateOnlyPtr(in.EndDate),
		Description: in.Description,
		Location:    strings.TrimSpace(in.Location),
		Contractor:  strings.TrimSpace(in.Contractor),
		Category:    strings.TrimSpace(in.Category),
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if strings.TrimSpace(in.Assignee) != "" {
		resolution.Assign(&task, in.Assignee)
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		wp, err := tx.EnsureWeekPlan(ctx, model.WeekPlan{
			ID:          uuid.New(),
			OrgID:       actor.OrgID,
			WeekYear:    in.Period.Year,
			WeekNumber:  in.Period.Week,
			ImporterID:  actor.AccountID,
			SourceLabel: manualSourceLabel,
		})
		if err != nil {
			return fmt.Errorf("ensure week plan: %w", err)
		}
		task.WeekPlanID = wp.ID
		if _, err := tx.InsertTasks(ctx, []model.Task{task}); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if task.AssigneeID != nil {
			if _, err := e.emitter.Emit(ctx, tx, notify.TaskAssigned(task)); err != nil {
				return err
			}
		}
		return nil
	})
	e.record(ctx, "create", task.ID, err)
	if err != nil {
		return TaskView{}, err
	}
	return e.view(task), nil
}

// UpdateTask edits a task. DONE tasks are locked.
func (e *Engine) UpdateTask(ctx context.Context, actor Actor, id uuid.UUID, patch TaskPatch) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskManage); err != nil {
		return TaskView{}, err
	}

	var resolution identity.Resolution
	if patch.Assignee != nil {
		var err error
		resolution, err = e.resolver.Resolve(ctx, actor.OrgID, []string{*patch.Assignee})
		if err != nil {
			return TaskView{}, err
		}
	}

	task, err := e.mutate(ctx, actor, id, "update", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if t.Status == model.StatusDone {
			return ErrTaskLocked
		}
		previous := t.AssigneeID
		if err := applyPatch(t, patch, resolution); err != nil {
			return err
		}
		t.UpdatedAt = e.now()
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if t.AssigneeID != nil && (previous == nil || *previous != *t.AssigneeID) {
			if _, err := e.emitter.Emit(ctx, tx, notify.TaskAssigned(*t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}
	return e.view(task), nil
}

// DeleteTask removes a task and its evidence. DONE tasks are locked.
func (e *Engine) DeleteTask(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := authorize(actor, rbac.PermissionTaskManage); err != nil {
		return err
	}
	_, err := e.mutate(ctx, actor, id, "delete", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if t.Status == model.StatusDone {
			return ErrTaskLocked
		}
		if err := tx.DeleteTask(ctx, t.ID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
	return err
}

// Acknowledge moves PENDING to IN_PROGRESS. Any other status is left as is.
func (e *Engine) Acknowledge(ctx context.Context, actor Actor, id uuid.UUID) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskWork); err != nil {
		return TaskView{}, err
	}
	task, err := e.mutate(ctx, actor, id, "acknowledge", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if err := requireAssignee(actor, *t); err != nil {
			return err
		}
		if t.Status != model.StatusPending {
			return errNoop
		}
		t.Status = model.StatusInProgress
		t.UpdatedAt = e.now()
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}
	return e.view(task), nil
}

// UploadEvidence attaches evidence to an IN_PROGRESS task. The status does not advance.
func (e *Engine) UploadEvidence(ctx context.Context, actor Actor, id uuid.UUID, up EvidenceUpload) (model.TaskEvidence, error) {
	if err := authorize(actor, rbac.PermissionTaskWork); err != nil {
		return model.TaskEvidence{}, err
	}
	up.FileRef = strings.TrimSpace(up.FileRef)
	if up.FileRef == "" {
		return model.TaskEvidence{}, fmt.Errorf("%w: file reference is required", ErrInvalidInput)
	}

	var ev model.TaskEvidence
	_, err := e.mutate(ctx, actor, id, "upload_evidence", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if err := requireAssignee(actor, *t); err != nil {
			return err
		}
		if t.Status != model.StatusInProgress {
			return fmt.Errorf("%w: cannot upload evidence to a %s task", ErrInvalidTransition, t.Status)
		}
		now := e.now()
		ev = model.TaskEvidence{
			ID:         uuid.New(),
			TaskID:     t.ID,
			UploaderID: actor.AccountID,
			FileRef:    up.FileRef,
			Note:       strings.TrimSpace(up.Note),
			UploadedAt: now,
		}
		if err := tx.InsertEvidence(ctx, ev); err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
		t.HasEvidence = true
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.TaskEvidence{}, err
	}
	return ev, nil
}

// ApproveEvidence closes the task.
func (e *Engine) ApproveEvidence(ctx context.Context, actor Actor, id uuid.UUID) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskReview); err != nil {
		return TaskView{}, err
	}
	task, err := e.mutate(ctx, actor, id, "approve", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if err := requireReviewable(*t); err != nil {
			return err
		}
		t.Status = model.StatusDone
		t.UpdatedAt = e.now()
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if t.AssigneeID != nil {
			if _, err := e.emitter.Emit(ctx, tx, notify.EvidenceApproved(*t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}
	return e.view(task), nil
}

// RejectEvidence clears the evidence flag and tells the assignee why.
func (e *Engine) RejectEvidence(ctx context.Context, actor Actor, id uuid.UUID, comment string) (TaskView, error) {
	if err := authorize(actor, rbac.PermissionTaskReview); err != nil {
		return TaskView{}, err
	}
	task, err := e.mutate(ctx, actor, id, "reject", func(ctx context.Context, tx store.Tx, t *model.Task) error {
		if err := requireReviewable(*t); err != nil {
			return err
		}
		t.HasEvidence = false
		t.UpdatedAt = e.now()
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if t.AssigneeID != nil {
			if _, err := e.emitter.Emit(ctx, tx, notify.EvidenceRejected(*t, comment)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}
	return e.view(task), nil
}

// errNoop aborts the transaction without reporting an error to the caller.
var errNoop = errors.New("no-op")

// mutate loads the task for update inside a transaction and runs fn on it.
func (e *Engine) mutate(ctx context.Context, actor Actor, id uuid.UUID, action string, fn func(ctx context.Context, tx store.Tx, t *model.Task) error) (model.Task, error) {
	var task model.Task
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.GetTaskForUpdate(ctx, id)
		if err != nil {
			return mapNotFound(err)
		}
		if t.OrgID != actor.OrgID {
			return ErrTaskNotFound
		}
		task = t
		return fn(ctx, tx, &task)
	})
	if errors.Is(err, errNoop) {
		metrics.IncrementTransition(action, "noop")
		return task, nil
	}
	e.record(ctx, action, id, err)
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (e *Engine) record(ctx context.Context, action string, id uuid.UUID, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskNotFound):
		result = "not_found"
	case errors.Is(err, ErrInvalidTransition):
		result = "invalid_transition"
	case errors.Is(err, ErrTaskLocked):
		result = "locked"
	case errors.Is(err, ErrForbidden):
		result = "forbidden"
	case errors.Is(err, ErrInvalidInput):
		result = "invalid_input"
	default:
		result = "error"
	}
	metrics.IncrementTransition(action, result)

	log := logger.WithTrace(ctx, e.logger)
	if result == "error" {
		log.Error("Task action failed", zap.String("action", action), zap.String("task_id", id.String()), zap.Error(err))
		return
	}
	log.Info("Task action", zap.String("action", action), zap.String("task_id", id.String()), zap.String("result", result))
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}

func requireAssignee(actor Actor, t model.Task) error {
	if actor.IsAdmin() || t.IsAssignedTo(actor.AccountID) {
		return nil
	}
	return fmt.Errorf("%w: task is assigned to someone else", ErrForbidden)
}

func requireReviewable(t model.Task) error {
	if t.Status != model.StatusInProgress || !t.HasEvidence {
		return fmt.Errorf("%w: task has no evidence pending review", ErrInvalidTransition)
	}
	return nil
}

func validateNewTask(in NewTask) error {
	if in.Period.Week < validate.MinWeek || in.Period.Week > validate.MaxWeek {
		return fmt.Errorf("%w: week %d", ErrInvalidInput, in.Period.Week)
	}
	if in.Period.Year < validate.MinYear || in.Period.Year > validate.MaxYear {
		return fmt.Errorf("%w: year %d", ErrInvalidInput, in.Period.Year)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if in.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	return nil
}

func applyPatch(t *model.Task, p TaskPatch, resolution identity.Resolution) error {
	if p.Date != nil {
		if p.Date.IsZero() {
			return fmt.Errorf("%w: date is required", ErrInvalidInput)
		}
		t.Date = model.DateOnly(*p.Date)
	}
	if p.ClearEndDate {
		t.EndDate = nil
	} else if p.EndDate != nil {
		t.EndDate = dateOnlyPtr(p.EndDate)
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d == "" {
			return fmt.Errorf("%w: description is required", ErrInvalidInput)
		}
		t.Description = d
	}
	if p.Location != nil {
		t.Location = strings.TrimSpace(*p.Location)
	}
	if p.Contractor != nil {
		t.Contractor = strings.TrimSpace(*p.Contractor)
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Assignee != nil {
		if strings.TrimSpace(*p.Assignee) == "" {
			t.AssigneeID = nil
			t.AssigneeName = ""
		} else {
			resolution.Assign(t, *p.Assignee)
		}
	}
	return nil
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.DateOnly(*t)
	return &d
}
