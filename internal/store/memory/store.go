package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pamsync/internal/model"
	"pamsync/internal/store"
)

type planKey struct {
	org  uuid.UUID
	year int
	week int
}

// Event is an outbox event recorded by EnqueueEvent.
type Event struct {
	AggregateType string
	AggregateID   uuid.UUID
	RoutingKey    string
	Payload       any
}

// Store keeps everything in maps. InTx holds the lock for the whole
// transaction and restores a snapshot when fn fails.
type Store struct {
	mu sync.Mutex

	accounts      map[uuid.UUID]model.Account
	plans         map[planKey]model.WeekPlan
	tasks         map[uuid.UUID]model.Task
	evidence      map[uuid.UUID][]model.TaskEvidence
	notifications map[uuid.UUID]model.Notification
	events        []Event

	// Fail, when set, is consulted before every write; a non-nil error aborts it.
	Fail func(op string) error
	now  func() time.Time
}

func New() *Store {
	return &Store{
		accounts:      make(map[uuid.UUID]model.Account),
		plans:         make(map[planKey]model.WeekPlan),
		tasks:         make(map[uuid.UUID]model.Task),
		evidence:      make(map[uuid.UUID][]model.TaskEvidence),
		notifications: make(map[uuid.UUID]model.Notification),
		now:           time.Now,
	}
}

// AddAccount seeds the directory.
func (s *Store) AddAccount(a model.Account) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.accounts[a.ID] = a
	return a
}

type snapshot struct {
	plans         map[planKey]model.WeekPlan
	tasks         map[uuid.UUID]model.Task
	evidence      map[uuid.UUID][]model.TaskEvidence
	notifications map[uuid.UUID]model.Notification
	events        []Event
}

func (s *Store) snapshot() snapshot {
	ev := make(map[uuid.UUID][]model.TaskEvidence, len(s.evidence))
	for k, v := range s.evidence {
		ev[k] = slices.Clone(v)
	}
	return snapshot{
		plans:         maps.Clone(s.plans),
		tasks:         maps.Clone(s.tasks),
		evidence:      ev,
		notifications: maps.Clone(s.notifications),
		events:        slices.Clone(s.events),
	}
}

func (s *Store) restore(snap snapshot) {
	s.plans = snap.plans
	s.tasks = snap.tasks
	s.evidence = snap.evidence
	s.notifications = snap.notifications
	s.events = snap.events
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTasksByPeriod(_ context.Context, orgID uuid.UUID, period model.PeriodRef) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Task{}
	for _, t := range s.tasks {
		if t.OrgID == orgID && t.Period() == period {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out, nil
}

// Tasks returns every task of the plan for period, ordered like ListTasksByPeriod.
func (s *Store) Tasks(orgID uuid.UUID, period model.PeriodRef) []model.Task {
	out, _ := s.ListTasksByPeriod(context.Background(), orgID, period)
	return out
}

// WeekPlans returns all plans of an org.
func (s *Store) WeekPlans(orgID uuid.UUID) []model.WeekPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WeekPlan
	for k, wp := range s.plans {
		if k.org == orgID {
			out = append(out, wp)
		}
	}
	return out
}

// Events returns a copy of the recorded outbox events.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) ListEvidence(_ context.Context, taskID uuid.UUID) ([]model.TaskEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.evidence[taskID])
	if out == nil {
		out = []model.TaskEvidence{}
	}
	return out, nil
}

func (s *Store) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Notification{}
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return store.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		s.notifications[id] = n
	}
	return nil
}

func (s *Store) FindAccountsByEmails(_ context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[strings.ToLower(e)] = true
	}
	var out []model.Account
	for _, a := range s.accounts {
		if a.OrgID == orgID && want[strings.ToLower(a.Email)] {
			out = append(out, a)
		}
	}
	return out, nil
}

func sortTasks(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].Date.Equal(tasks[j].Date) {
			return tasks[i].Date.Before(tasks[j].Date)
		}
		return tasks[i].Description < tasks[j].Description
	})
}

// tx operates on the store while InTx holds its lock.
type tx struct {
	s *Store
}

func (t *tx) fail(op string) error {
	if t.s.Fail == nil {
		return nil
	}
	if err := t.s.Fail(op); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) UpsertWeekPlan(_ context.Context, wp model.WeekPlan) (model.WeekPlan, error) {
	if err := t.fail("UpsertWeekPlan"); err != nil {
		return model.WeekPlan{}, err
	}
	now := t.s.now()
	key := planKey{wp.OrgID, wp.WeekYear, wp.WeekNumber}
	if existing, ok := t.s.plans[key]; ok {
		existing.ImporterID = wp.ImporterID
		existing.SourceLabel = wp.SourceLabel
		existing.UpdatedAt = now
		t.s.plans[key] = existing
		return existing, nil
	}
	if wp.ID == uuid.Nil {
		wp.ID = uuid.New()
	}
	wp.CreatedAt, wp.UpdatedAt = now, now
	t.s.plans[key] = wp
	return wp, nil
}

func (t *tx) EnsureWeekPlan(ctx context.Context, wp model.WeekPlan) (model.WeekPlan, error) {
	if existing, ok := t.s.plans[planKey{wp.OrgID, wp.WeekYear, wp.WeekNumber}]; ok {
		return existing, nil
	}
	return t.UpsertWeekPlan(ctx, wp)
}

func (t *tx) DeleteTasksByWeekPlan(_ context.Context, weekPlanID uuid.UUID) (int64, error) {
	if err := t.fail("DeleteTasksByWeekPlan"); err != nil {
		return 0, err
	}
	var n int64
	for id, task := range t.s.tasks {
		if task.WeekPlanID == weekPlanID {
			delete(t.s.tasks, id)
			delete(t.s.evidence, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertTasks(_ context.Context, tasks []model.Task) (int64, error) {
	if err := t.fail("InsertTasks"); err != nil {
		return 0, err
	}
	for _, task := range tasks {
		t.s.tasks[task.ID] = task
	}
	return int64(len(tasks)), nil
}

func (t *tx) GetTaskForUpdate(_ context.Context, id uuid.UUID) (model.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (t *tx) UpdateTask(_ context.Context, task model.Task) error {
	if err := t.fail("UpdateTask"); err != nil {
		return err
	}
	if _, ok := t.s.tasks[task.ID]; !ok {
		return store.ErrNotFound
	}
	t.s.tasks[task.ID] = task
	return nil
}

func (t *tx) DeleteTask(_ context.Context, id uuid.UUID) error {
	if err := t.fail("DeleteTask"); err != nil {
		return err
	}
	if _, ok := t.s.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.s.tasks, id)
	delete(t.s.evidence, id)
	return nil
}

func (t *tx) InsertEvidence(_ context.Context, ev model.TaskEvidence) error {
	if err := t.fail("InsertEvidence"); err != nil {
		return err
	}
	t.s.evidence[ev.TaskID] = append(t.s.evidence[ev.TaskID], ev)
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n model.Notification) error {
	if err := t.fail("InsertNotification"); err != nil {
		return err
	}
	t.s.notifications[n.ID] = n
	return nil
}

func (t *tx) EnqueueEvent(_ context.Context, aggregateType string, aggregateID uuid.UUID, routingKey string, payload any) error {
	if err := t.fail("EnqueueEvent"); err != nil {
		return err
	}
	t.s.events = append(t.s.events, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payload,
	})
	return nil
}
