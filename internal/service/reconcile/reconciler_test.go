package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/notify"
	"pamsync/internal/store"
	"pamsync/internal/store/memory"
)

var week10 = model.PeriodRef{Year: 2025, Week: 10}

type fixture struct {
	st    *memory.Store
	rec   *Reconciler
	org   uuid.UUID
	admin uuid.UUID
	ana   model.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	org := uuid.New()
	ana := st.AddAccount(model.Account{OrgID: org, Email: "ana@acme.com", DisplayName: "Ana"})
	log := zap.NewNop()
	rec := NewReconciler(st, identity.NewResolver(st, log), notify.NewEmitter(log), log)
	return &fixture{st: st, rec: rec, org: org, admin: uuid.New(), ana: ana}
}

func row(n int, day int, identity, desc string) model.TaskImport {
	return model.TaskImport{
		Row:         n,
		WeekYear:    2025,
		WeekNumber:  10,
		Date:        time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Identity:    identity,
		Description: desc,
	}
}

func (f *fixture) importWeek10(t *testing.T, rows ...model.TaskImport) Outcome {
	t.Helper()
	out, err := f.rec.ReconcilePeriod(context.Background(), PeriodImport{
		OrgID: f.org, Period: week10, Rows: rows, ImporterID: f.admin, SourceLabel: "sheet",
	})
	if err != nil {
		t.Fatalf("ReconcilePeriod() err=%v, want nil", err)
	}
	return out
}

func TestReconcilePeriod_CreatesPlanAndTasks(t *testing.T) {
	f := newFixture(t)
	out := f.importWeek10(t,
		row(2, 10, "ANA@acme.com", "Inspect pump"),
		row(3, 11, "ana@acme.com", "Check valves"),
		row(4, 12, "ghost@acme.com", "Walkdown"),
	)

	if out.TasksCreated != 3 || out.TasksRemoved != 0 {
		t.Fatalf("outcome=%+v, want 3 created 0 removed", out)
	}
	if len(out.Unresolved) != 1 || out.Unresolved[0] != "ghost@acme.com" {
		t.Fatalf("Unresolved=%v", out.Unresolved)
	}

	tasks := f.st.Tasks(f.org, week10)
	for _, task := range tasks {
		if task.Status != model.StatusPending || task.HasEvidence {
			t.Fatalf("task %q status=%s has_evidence=%v", task.Description, task.Status, task.HasEvidence)
		}
		if task.WeekPlanID != out.WeekPlan.ID {
			t.Fatalf("task not owned by the week plan")
		}
	}
	if tasks[2].AssigneeID != nil || tasks[2].AssigneeName != "ghost@acme.com" {
		t.Fatalf("unresolved task assignee=%v/%q", tasks[2].AssigneeID, tasks[2].AssigneeName)
	}
	if tasks[0].AssigneeID == nil || *tasks[0].AssigneeID != f.ana.ID {
		t.Fatalf("resolved task assignee=%v, want ana", tasks[0].AssigneeID)
	}

	// one summary notification per resolved assignee
	notes, _ := f.st.ListNotifications(context.Background(), f.ana.ID, false, 0)
	if len(notes) != 1 || notes[0].Type != model.NotificationTaskAssigned {
		t.Fatalf("notifications=%+v, want one task_assigned", notes)
	}
	if len(f.st.Events()) != 1 {
		t.Fatalf("outbox events=%d, want 1", len(f.st.Events()))
	}
}

func TestReconcilePeriod_ReplacesPreviousImport(t *testing.T) {
	f := newFixture(t)
	first := f.importWeek10(t, row(2, 10, "ana@acme.com", "Inspect pump"), row(3, 11, "ana@acme.com", "Check valves"))

	// a manual status change between imports is not preserved
	task := f.st.Tasks(f.org, week10)[0]
	err := f.st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		task.Status = model.StatusInProgress
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		t.Fatalf("UpdateTask() err=%v", err)
	}

	second, err := f.rec.ReconcilePeriod(context.Background(), PeriodImport{
		OrgID: f.org, Period: week10, ImporterID: uuid.New(), SourceLabel: "sheet v2",
		Rows: []model.TaskImport{row(2, 10, "ana@acme.com", "Inspect pump"), row(3, 11, "ana@acme.com", "Check valves")},
	})
	if err != nil {
		t.Fatalf("second ReconcilePeriod() err=%v", err)
	}

	if second.WeekPlan.ID != first.WeekPlan.ID {
		t.Fatalf("week plan duplicated: %s != %s", second.WeekPlan.ID, first.WeekPlan.ID)
	}
	if second.WeekPlan.SourceLabel != "sheet v2" {
		t.Fatalf("SourceLabel=%q, want metadata overwritten", second.WeekPlan.SourceLabel)
	}
	if second.TasksRemoved != 2 {
		t.Fatalf("TasksRemoved=%d, want 2", second.TasksRemoved)
	}
	if plans := f.st.WeekPlans(f.org); len(plans) != 1 {
		t.Fatalf("week plans=%d, want 1", len(plans))
	}
	for _, task := range f.st.Tasks(f.org, week10) {
		if task.Status != model.StatusPending {
			t.Fatalf("task %q status=%s, want PENDING after re-import", task.Description, task.Status)
		}
	}
}

func TestReconcilePeriod_FailureLeavesPreviousSet(t *testing.T) {
	f := newFixture(t)
	f.importWeek10(t, row(2, 10, "ana@acme.com", "Inspect pump"))
	before := f.st.Tasks(f.org, week10)

	f.st.Fail = func(op string) error {
		if op == "InsertTasks" {
			return errors.New("disk full")
		}
		return nil
	}
	_, err := f.rec.ReconcilePeriod(context.Background(), PeriodImport{
		OrgID: f.org, Period: week10, ImporterID: f.admin,
		Rows: []model.TaskImport{row(2, 10, "ana@acme.com", "Replaced")},
	})
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("ReconcilePeriod() err=%v, want ErrPersistenceFailure", err)
	}

	after := f.st.Tasks(f.org, week10)
	if len(after) != 1 || after[0].ID != before[0].ID {
		t.Fatalf("tasks after failed import=%+v, want previous set intact", after)
	}
}

func TestReconcilePeriod_RejectsForeignRows(t *testing.T) {
	f := newFixture(t)
	r := row(2, 10, "ana@acme.com", "x")
	r.WeekNumber = 11
	_, err := f.rec.ReconcilePeriod(context.Background(), PeriodImport{OrgID: f.org, Period: week10, Rows: []model.TaskImport{r}})
	if err == nil {
		t.Fatalf("ReconcilePeriod() err=nil, want period mismatch")
	}
}

func TestReconcileBatch_SpansPeriods(t *testing.T) {
	f := newFixture(t)
	r11 := row(3, 17, "ana@acme.com", "Next week")
	r11.WeekNumber = 11

	outs, err := f.rec.ReconcileBatch(context.Background(), f.org, f.admin, "sheet",
		[]model.TaskImport{r11, row(2, 10, "ana@acme.com", "This week")})
	if err != nil {
		t.Fatalf("ReconcileBatch() err=%v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("outcomes=%d, want 2", len(outs))
	}
	if outs[0].WeekPlan.WeekNumber != 10 || outs[1].WeekPlan.WeekNumber != 11 {
		t.Fatalf("outcomes not ordered by period: %d, %d", outs[0].WeekPlan.WeekNumber, outs[1].WeekPlan.WeekNumber)
	}
}
