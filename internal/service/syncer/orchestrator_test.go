package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/model"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/notify"
	"pamsync/internal/service/reconcile"
	"pamsync/internal/store/memory"
	"pamsync/internal/validate"
)

const header = "Semana,Año,Fecha,Email,Descripción\n"

const goodDoc = header +
	"10,2025,2025-03-03,ana@acme.com,Inspect pump\n" +
	"10,2025,2025-03-04,ana@acme.com,Check valves\n" +
	"10,2025,05/03/2025,bob@acme.com,Walkdown\n"

var week10 = model.PeriodRef{Year: 2025, Week: 10}

type fakeFetcher struct {
	mu    sync.Mutex
	doc   string
	err   error
	calls int
	// gate, when set, blocks Fetch until it is closed
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	doc, err, gate, entered := f.doc, f.err, f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	return doc, err
}

func (f *fakeFetcher) set(doc string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.err = doc, err
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []mqcontracts.SyncCompletedPayload
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	if routingKey != mqcontracts.RoutingSyncCompleted {
		return errors.New("unexpected routing key " + routingKey)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload.(mqcontracts.SyncCompletedPayload))
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	st      *memory.Store
	org     uuid.UUID
	fetcher *fakeFetcher
	state   *MemoryStateStore
	pub     *fakePublisher
	clock   *clock
}

func newFixture(t *testing.T, doc string) *fixture {
	t.Helper()
	st := memory.New()
	org := uuid.New()
	st.AddAccount(model.Account{OrgID: org, Email: "ana@acme.com", DisplayName: "Ana"})
	st.AddAccount(model.Account{OrgID: org, Email: "bob@acme.com", DisplayName: "Bob"})
	return &fixture{
		st:      st,
		org:     org,
		fetcher: &fakeFetcher{doc: doc},
		state:   NewMemoryStateStore(),
		pub:     &fakePublisher{},
		clock:   &clock{now: time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	v, err := validate.New([]string{"acme.com"})
	if err != nil {
		t.Fatalf("validate.New() err=%v", err)
	}
	log := zap.NewNop()
	rec := reconcile.NewReconciler(f.st, identity.NewResolver(f.st, log), notify.NewEmitter(log), log)
	opts = append([]Option{WithClock(f.clock.Now), WithPublisher(f.pub)}, opts...)
	return NewOrchestrator(
		Source{OrgID: f.org, URL: "https://sheets.example/export.csv", Label: "sheet", ImporterID: uuid.New()},
		f.fetcher, f.state, v, rec, log, opts...,
	)
}

func TestSync_ImportsThenUnchanged(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx := context.Background()

	first := o.Sync(ctx, SyncRequest{})
	if first.Outcome != OutcomeImported || !first.Success || first.TasksCreated != 3 {
		t.Fatalf("first sync=%+v, want imported with 3 tasks", first)
	}
	if first.Period == nil || *first.Period != week10 {
		t.Fatalf("Period=%v, want %v", first.Period, week10)
	}
	if first.Trigger != TriggerManual {
		t.Fatalf("Trigger=%s, want manual", first.Trigger)
	}

	f.clock.Advance(10 * time.Minute)
	second := o.Sync(ctx, SyncRequest{})
	if second.Outcome != OutcomeUnchanged || !second.Success || second.TasksCreated != 0 {
		t.Fatalf("second sync=%+v, want unchanged", second)
	}
	if got := len(f.st.Tasks(f.org, week10)); got != 3 {
		t.Fatalf("tasks after unchanged sync=%d, want 3", got)
	}

	st, _, _ := f.state.Get(ctx, f.org.String())
	if !st.LastSyncAt.Equal(f.clock.Now()) {
		t.Fatalf("LastSyncAt=%v, want %v", st.LastSyncAt, f.clock.Now())
	}
	if st.Fingerprint != Fingerprint(goodDoc) {
		t.Fatalf("Fingerprint changed on unchanged sync")
	}
}

func TestSync_ReimportReplacesPeriod(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx := context.Background()

	o.Sync(ctx, SyncRequest{})
	f.fetcher.set(header+"10,2025,2025-03-06,bob@acme.com,Only task\n", nil)
	f.clock.Advance(10 * time.Minute)

	res := o.Sync(ctx, SyncRequest{})
	if res.Outcome != OutcomeImported || res.TasksCreated != 1 {
		t.Fatalf("sync=%+v, want imported with 1 task", res)
	}
	tasks := f.st.Tasks(f.org, week10)
	if len(tasks) != 1 || tasks[0].Description != "Only task" {
		t.Fatalf("tasks=%+v, want only the re-imported one", tasks)
	}
	if plans := f.st.WeekPlans(f.org); len(plans) != 1 {
		t.Fatalf("week plans=%d, want 1", len(plans))
	}
}

func TestSync_Throttled(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx := context.Background()

	o.Sync(ctx, SyncRequest{})
	f.clock.Advance(time.Minute)

	res := o.Sync(ctx, SyncRequest{})
	if res.Outcome != OutcomeThrottled || !res.Success {
		t.Fatalf("sync=%+v, want throttled", res)
	}
	if f.fetcher.calls != 1 {
		t.Fatalf("fetch calls=%d, want 1", f.fetcher.calls)
	}
	if len(f.pub.payloads) != 1 {
		t.Fatalf("published=%d, want 1 (throttled is not announced)", len(f.pub.payloads))
	}
}

func TestSync_ForceBypassesThrottleAndFingerprint(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx := context.Background()

	o.Sync(ctx, SyncRequest{})
	before := f.st.Tasks(f.org, week10)
	f.clock.Advance(time.Second)

	res := o.Sync(ctx, SyncRequest{Force: true})
	if res.Outcome != OutcomeImported || res.TasksCreated != 3 {
		t.Fatalf("forced sync=%+v, want imported with 3 tasks", res)
	}
	after := f.st.Tasks(f.org, week10)
	if len(after) != 3 {
		t.Fatalf("tasks=%d, want 3 after forced re-import", len(after))
	}

	want := taskContents(before)
	got := taskContents(after)
	for key, n := range want {
		if got[key] != n {
			t.Fatalf("re-imported tasks=%v, want %v", got, want)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("re-imported tasks=%v, want %v", got, want)
	}

	oldIDs := make(map[uuid.UUID]bool, len(before))
	for _, task := range before {
		oldIDs[task.ID] = true
	}
	for _, task := range after {
		if oldIDs[task.ID] {
			t.Fatalf("task %s survived the replace, want fresh ids", task.ID)
		}
	}
}

// taskContents counts tasks by the fields an import sets.
func taskContents(tasks []model.Task) map[string]int {
	out := make(map[string]int, len(tasks))
	for _, task := range tasks {
		assignee := "-"
		if task.AssigneeID != nil {
			assignee = task.AssigneeID.String()
		}
		key := strings.Join([]string{task.Description, task.Date.Format(time.DateOnly), assignee, task.AssigneeName}, "|")
		out[key]++
	}
	return out
}

func TestSync_StrictPolicyRejectsBatchWithRowErrors(t *testing.T) {
	doc := goodDoc + "10,2025,2025-13-45,ana@acme.com,Bad date\n"
	f := newFixture(t, doc)
	o := f.orchestrator(t)

	res := o.Sync(context.Background(), SyncRequest{})
	if res.Outcome != OutcomeFailed || res.Success {
		t.Fatalf("sync=%+v, want failed", res)
	}
	if res.TasksCreated != 0 || len(f.st.Tasks(f.org, week10)) != 0 {
		t.Fatalf("tasks created under strict policy with row errors")
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 5:") {
		t.Fatalf("Errors=%v, want one error at row 5", res.Errors)
	}
	if _, ok, _ := f.state.Get(context.Background(), f.org.String()); ok {
		t.Fatalf("failed sync wrote sync state")
	}
}

func TestSync_SkipInvalidImportsValidRows(t *testing.T) {
	doc := goodDoc + "10,2025,2025-13-45,ana@acme.com,Bad date\n"
	f := newFixture(t, doc)
	o := f.orchestrator(t, WithPolicy(PolicySkipInvalid))

	res := o.Sync(context.Background(), SyncRequest{})
	if res.Outcome != OutcomeImported || !res.Success || res.TasksCreated != 3 {
		t.Fatalf("sync=%+v, want imported with 3 tasks", res)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 5:") {
		t.Fatalf("Errors=%v, want one error at row 5", res.Errors)
	}
}

func TestSync_NoValidRowsFails(t *testing.T) {
	f := newFixture(t, header+"10,2025,2025-03-03,ana@other.com,Foreign\n")
	o := f.orchestrator(t, WithPolicy(PolicySkipInvalid))

	res := o.Sync(context.Background(), SyncRequest{})
	if res.Outcome != OutcomeFailed {
		t.Fatalf("sync=%+v, want failed", res)
	}
	if len(f.pub.payloads) != 1 || f.pub.payloads[0].Success {
		t.Fatalf("payloads=%+v, want one failed completion", f.pub.payloads)
	}
}

func TestSync_MalformedDocumentFails(t *testing.T) {
	f := newFixture(t, "just,some,columns\n1,2,3\n")
	o := f.orchestrator(t)

	res := o.Sync(context.Background(), SyncRequest{})
	if res.Outcome != OutcomeFailed || len(res.Errors) == 0 {
		t.Fatalf("sync=%+v, want failed with error", res)
	}
}

func TestSync_FetchErrorWritesNoState(t *testing.T) {
	f := newFixture(t, "")
	f.fetcher.err = errors.New("connection refused")
	o := f.orchestrator(t)

	res := o.Sync(context.Background(), SyncRequest{})
	if res.Outcome != OutcomeFailed || res.Errors[0] != "connection refused" {
		t.Fatalf("sync=%+v, want failed with fetch error", res)
	}
	if _, ok, _ := f.state.Get(context.Background(), f.org.String()); ok {
		t.Fatalf("failed sync wrote sync state")
	}

	// a failed sync does not start the throttle window
	f.fetcher.set(goodDoc, nil)
	f.clock.Advance(time.Second)
	if res := o.Sync(context.Background(), SyncRequest{}); res.Outcome != OutcomeImported {
		t.Fatalf("retry after failure=%s, want imported", res.Outcome)
	}
}

func TestSync_PersistenceFailureKeepsPreviousTasks(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx := context.Background()
	o.Sync(ctx, SyncRequest{})
	before, _, _ := f.state.Get(ctx, f.org.String())

	f.fetcher.set(header+"10,2025,2025-03-06,bob@acme.com,Replacement\n", nil)
	f.st.Fail = func(op string) error {
		if op == "InsertTasks" {
			return errors.New("disk full")
		}
		return nil
	}
	f.clock.Advance(10 * time.Minute)

	res := o.Sync(ctx, SyncRequest{})
	if res.Outcome != OutcomeFailed {
		t.Fatalf("sync=%+v, want failed", res)
	}
	if got := len(f.st.Tasks(f.org, week10)); got != 3 {
		t.Fatalf("tasks=%d, want previous 3 kept", got)
	}
	after, _, _ := f.state.Get(ctx, f.org.String())
	if after != before {
		t.Fatalf("state=%+v, want unchanged %+v", after, before)
	}
}

func TestSync_ConcurrentCallIsInFlight(t *testing.T) {
	f := newFixture(t, goodDoc)
	f.fetcher.gate = make(chan struct{})
	f.fetcher.entered = make(chan struct{})
	o := f.orchestrator(t)

	done := make(chan SyncResult)
	go func() { done <- o.Sync(context.Background(), SyncRequest{}) }()
	<-f.fetcher.entered

	res := o.Sync(context.Background(), SyncRequest{Force: true})
	if res.Outcome != OutcomeInFlight || !res.Success {
		t.Fatalf("concurrent sync=%+v, want in_flight", res)
	}

	close(f.fetcher.gate)
	if first := <-done; first.Outcome != OutcomeImported {
		t.Fatalf("first sync=%s, want imported", first.Outcome)
	}
	if f.fetcher.calls != 1 {
		t.Fatalf("fetch calls=%d, want 1", f.fetcher.calls)
	}
}

func TestSync_CancelledCallerDoesNotAbort(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if res := o.Sync(ctx, SyncRequest{}); res.Outcome != OutcomeImported {
		t.Fatalf("sync=%+v, want imported despite cancelled caller", res)
	}
}

func TestSync_PublishesCompletion(t *testing.T) {
	f := newFixture(t, goodDoc)
	o := f.orchestrator(t)

	o.Sync(context.Background(), SyncRequest{Trigger: OnExternalEvent{RequestID: "req-1"}})
	if len(f.pub.payloads) != 1 {
		t.Fatalf("published=%d, want 1", len(f.pub.payloads))
	}
	p := f.pub.payloads[0]
	if p.Outcome != string(OutcomeImported) || p.Trigger != string(TriggerExternalEvent) || p.TasksCreated != 3 {
		t.Fatalf("payload=%+v", p)
	}
	if len(p.Periods) != 1 || p.Periods[0] != "2025-W10" {
		t.Fatalf("Periods=%v, want [2025-W10]", p.Periods)
	}
	if p.OrgID != f.org.String() || p.TraceID == "" {
		t.Fatalf("payload org/trace=%q/%q", p.OrgID, p.TraceID)
	}
}
