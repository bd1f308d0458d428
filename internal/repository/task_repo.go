package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/store"
)

var taskColumns = []string{
	"id", "week_plan_id", "org_id", "week_year", "week_number",
	"date", "end_date", "assignee_id", "assignee_name",
	"description", "location", "contractor", "category",
	"status", "has_evidence", "created_at", "updated_at",
}

const selectTask = `
        SELECT id, week_plan_id, org_id, week_year, week_number,
               date, end_date, assignee_id, assignee_name,
               description, location, contractor, category,
               status, has_evidence, created_at, updated_at
        FROM tasks
`

func taskValues(t model.Task) []any {
	return []any{
		t.ID, t.WeekPlanID, t.OrgID, t.WeekYear, t.WeekNumber,
		t.Date, t.EndDate, t.AssigneeID, t.AssigneeName,
		t.Description, t.Location, t.Contractor, t.Category,
		string(t.Status), t.HasEvidence, t.CreatedAt, t.UpdatedAt,
	}
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	var status string
	err := row.Scan(
		&t.ID, &t.WeekPlanID, &t.OrgID, &t.WeekYear, &t.WeekNumber,
		&t.Date, &t.EndDate, &t.AssigneeID, &t.AssigneeName,
		&t.Description, &t.Location, &t.Contractor, &t.Category,
		&status, &t.HasEvidence, &t.CreatedAt, &t.UpdatedAt,
	)
	t.Status = model.TaskStatus(status)
	return t, err
}

func getTask(ctx context.Context, q querier, id uuid.UUID, lock bool) (model.Task, error) {
	query := selectTask + ` WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	t, err := scanTask(q.QueryRow(ctx, query, id))
	if err != nil {
		return model.Task{}, notFound(err)
	}
	return t, nil
}

// GetTask returns one task by id.
func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	return getTask(ctx, r.db, id, false)
}

// ListTasksByPeriod returns the tasks of one planning week ordered by date.
func (r *Repository) ListTasksByPeriod(ctx context.Context, orgID uuid.UUID, period model.PeriodRef) ([]model.Task, error) {
	r.logger.Debug("Listing tasks for period",
		zap.String("org_id", orgID.String()),
		zap.String("period", period.String()),
	)
	query := selectTask + `
        WHERE org_id = $1 AND week_year = $2 AND week_number = $3
        ORDER BY date, description
    `
	rows, err := r.db.Query(ctx, query, orgID, period.Year, period.Week)
	if err != nil {
		r.logger.Error("Failed to query tasks",
			zap.Error(err),
			zap.String("org_id", orgID.String()),
			zap.String("period", period.String()),
		)
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (t *txRepo) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (model.Task, error) {
	return getTask(ctx, t.tx, id, true)
}

// InsertTasks bulk loads a period's tasks with COPY.
func (t *txRepo) InsertTasks(ctx context.Context, tasks []model.Task) (int64, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"tasks"},
		taskColumns,
		pgx.CopyFromSlice(len(tasks), func(i int) ([]any, error) {
			return taskValues(tasks[i]), nil
		}),
	)
	if err != nil {
		t.logger.Error("Failed to copy tasks", zap.Error(err), zap.Int("count", len(tasks)))
		return 0, fmt.Errorf("failed to copy tasks: %w", err)
	}
	t.logger.Debug("Tasks copied", zap.Int64("count", n))
	return n, nil
}

func (t *txRepo) UpdateTask(ctx context.Context, task model.Task) error {
	query := `
        UPDATE tasks
        SET date = $2, end_date = $3, assignee_id = $4, assignee_name = $5,
            description = $6, location = $7, contractor = $8, category = $9,
            status = $10, has_evidence = $11, updated_at = $12
        WHERE id = $1
    `
	tag, err := t.tx.Exec(ctx, query,
		task.ID, task.Date, task.EndDate, task.AssigneeID, task.AssigneeName,
		task.Description, task.Location, task.Contractor, task.Category,
		string(task.Status), task.HasEvidence, task.UpdatedAt,
	)
	if err != nil {
		t.logger.Error("Failed to update task", zap.Error(err), zap.String("task_id", task.ID.String()))
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteTask removes the task; evidence goes with it via ON DELETE CASCADE.
func (t *txRepo) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteTasksByWeekPlan(ctx context.Context, weekPlanID uuid.UUID) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE week_plan_id = $1`, weekPlanID)
	if err != nil {
		t.logger.Error("Failed to delete period tasks", zap.Error(err), zap.String("week_plan_id", weekPlanID.String()))
		return 0, err
	}
	t.logger.Debug("Period tasks deleted",
		zap.String("week_plan_id", weekPlanID.String()),
		zap.Int64("count", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}
