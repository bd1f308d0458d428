package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/notify"
	"pamsync/internal/store"
	"pamsync/pkg/logger"
	"pamsync/pkg/metrics"
	"pamsync/pkg/otel"
)

// ErrPersistenceFailure: the transaction was rolled back, no task was created.
var ErrPersistenceFailure = errors.New("persistence failure")

// PeriodImport is the validated batch of one (org, year, week) period.
type PeriodImport struct {
	OrgID       uuid.UUID
	Period      model.PeriodRef
	Rows        []model.TaskImport
	ImporterID  uuid.UUID
	SourceLabel string
}

type Outcome struct {
	WeekPlan     model.WeekPlan
	TasksCreated int
	TasksRemoved int64
	Unresolved   []string
}

// Reconciler replaces the task set of a period with a fresh import.
// Manual edits to tasks of a re-imported period are lost; this is a replace, not a merge.
type Reconciler struct {
	store    store.Store
	resolver *identity.Resolver
	emitter  *notify.Emitter
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(st store.Store, resolver *identity.Resolver, emitter *notify.Emitter, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		resolver: resolver,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// ReconcilePeriod replaces one period's tasks atomically.
func (r *Reconciler) ReconcilePeriod(ctx context.Context, in PeriodImport) (Outcome, error) {
	for _, row := range in.Rows {
		if row.Period() != in.Period {
			return Outcome{}, fmt.Errorf("row %d belongs to %s, not %s", row.Row, row.Period(), in.Period)
		}
	}
	outs, err := r.reconcile(ctx, []PeriodImport{in})
	if err != nil {
		return Outcome{}, err
	}
	return outs[0], nil
}

// ReconcileBatch groups rows by period and replaces all of them in one transaction.
// Outcomes are ordered by period.
func (r *Reconciler) ReconcileBatch(ctx context.Context, orgID, importerID uuid.UUID, sourceLabel string, rows []model.TaskImport) ([]Outcome, error) {
	byPeriod := make(map[model.PeriodRef][]model.TaskImport)
	for _, row := range rows {
		byPeriod[row.Period()] = append(byPeriod[row.Period()], row)
	}

	imports := make([]PeriodImport, 0, len(byPeriod))
	for period, periodRows := range byPeriod {
		imports = append(imports, PeriodImport{
			OrgID:       orgID,
			Period:      period,
			Rows:        periodRows,
			ImporterID:  importerID,
			SourceLabel: sourceLabel,
		})
	}
	sort.Slice(imports, func(i, j int) bool { return imports[i].Period.Before(imports[j].Period) })

	return r.reconcile(ctx, imports)
}

func (r *Reconciler) reconcile(ctx context.Context, imports []PeriodImport) (outs []Outcome, err error) {
	ctx, span := otel.StartSpan(ctx, "reconcile.batch")
	defer func() { otel.EndSpan(span, err) }()
	log := logger.WithTrace(ctx, r.logger)

	if len(imports) == 0 {
		return nil, nil
	}
	orgID := imports[0].OrgID

	var refs []string
	for _, in := range imports {
		for _, row := range in.Rows {
			refs = append(refs, row.Identity)
		}
	}
	resolution, err := r.resolver.Resolve(ctx, orgID, refs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	err = r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		outs = make([]Outcome, 0, len(imports))
		for _, in := range imports {
			out, err := r.replacePeriod(ctx, tx, in, resolution)
			if err != nil {
				return fmt.Errorf("period %s: %w", in.Period, err)
			}
			outs = append(outs, out)
		}
		return nil
	})
	if err != nil {
		log.Error("Period reconciliation rolled back",
			zap.String("org_id", orgID.String()),
			zap.Int("periods", len(imports)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	total := 0
	for _, out := range outs {
		total += out.TasksCreated
		log.Info("Period reconciled",
			zap.String("org_id", orgID.String()),
			zap.String("period", out.WeekPlan.Period().String()),
			zap.Int("tasks_created", out.TasksCreated),
			zap.Int64("tasks_removed", out.TasksRemoved),
			zap.Int("unresolved", len(out.Unresolved)),
		)
	}
	metrics.AddTasksImported(orgID.String(), total)
	return outs, nil
}

func (r *Reconciler) replacePeriod(ctx context.Context, tx store.Tx, in PeriodImport, resolution identity.Resolution) (Outcome, error) {
	wp, err := tx.UpsertWeekPlan(ctx, model.WeekPlan{
		ID:          uuid.New(),
		OrgID:       in.OrgID,
		WeekYear:    in.Period.Year,
		WeekNumber:  in.Period.Week,
		ImporterID:  in.ImporterID,
		SourceLabel: in.SourceLabel,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert week plan: %w", err)
	}

	removed, err := tx.DeleteTasksByWeekPlan(ctx, wp.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("delete tasks: %w", err)
	}

	now := r.now()
	tasks := make([]model.Task, 0, len(in.Rows))
	perAssignee := make(map[uuid.UUID]int)
	unresolved := make(map[string]bool)
	for _, row := range in.Rows {
		t := model.Task{
			ID:          uuid.New(),
			WeekPlanID:  wp.ID,
			OrgID:       in.OrgID,
			WeekYear:    in.Period.Year,
			WeekNumber:  in.Period.Week,
			Date:        row.Date,
			EndDate:     row.EndDate,
			Description: row.Description,
			Location:    row.Location,
			Contractor:  row.Contractor,
			Category:    row.Category,
			Status:      model.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		resolution.Assign(&t, row.Identity)
		if t.AssigneeID != nil {
			perAssignee[*t.AssigneeID]++
		} else {
			unresolved[row.IdentityKey()] = true
		}
		tasks = append(tasks, t)
	}

	if _, err := tx.InsertTasks(ctx, tasks); err != nil {
		return Outcome{}, fmt.Errorf("insert tasks: %w", err)
	}

	assignees := make([]uuid.UUID, 0, len(perAssignee))
	for id := range perAssignee {
		assignees = append(assignees, id)
	}
	sort.Slice(assignees, func(i, j int) bool { return assignees[i].String() < assignees[j].String() })
	for _, id := range assignees {
		n := notify.PeriodAssigned(in.OrgID, id, in.Period, perAssignee[id])
		if _, err := r.emitter.Emit(ctx, tx, n); err != nil {
			return Outcome{}, err
		}
	}

	out := Outcome{WeekPlan: wp, TasksCreated: len(tasks), TasksRemoved: removed}
	for ref := range unresolved {
		out.Unresolved = append(out.Unresolved, ref)
	}
	sort.Strings(out.Unresolved)
	return out, nil
}
