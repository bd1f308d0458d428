package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/handler"
	"pamsync/internal/model"
	"pamsync/internal/service/identity"
	"pamsync/internal/service/lifecycle"
	"pamsync/internal/service/notify"
	"pamsync/internal/service/syncer"
	"pamsync/internal/store/memory"
	"pamsync/pkg/rbac"
	"pamsync/pkg/util"
)

const secret = "test-secret"

type fakeSyncer struct {
	fn func(ctx context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error)
}

func (f *fakeSyncer) Sync(ctx context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error) {
	return f.fn(ctx, orgID, req)
}

type fixture struct {
	router *Router
	sync   *fakeSyncer
	org    uuid.UUID
	admin  string
	worker string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	org := uuid.New()
	ana := st.AddAccount(model.Account{OrgID: org, Email: "ana@acme.com", DisplayName: "Ana", Role: rbac.RoleWorker})

	log := zap.NewNop()
	engine := lifecycle.NewEngine(st, identity.NewResolver(st, log), notify.NewEmitter(log), time.UTC, log).
		WithClock(func() time.Time { return time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC) })

	fs := &fakeSyncer{fn: func(ctx context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error) {
		return syncer.SyncResult{OrgID: orgID, Outcome: syncer.OutcomeUnchanged, Success: true}, nil
	}}

	router := NewRouter(
		handler.NewSyncHandler(fs, log),
		handler.NewTaskHandler(engine, log),
		handler.NewNotificationHandler(notify.NewInbox(st)),
		secret,
		map[string]Pinger{"db": PingFunc(func(context.Context) error { return nil })},
		log,
	)

	return &fixture{
		router: router,
		sync:   fs,
		org:    org,
		admin:  token(t, uuid.New(), org, rbac.RoleAdmin),
		worker: token(t, ana.ID, org, rbac.RoleWorker),
	}
}

func token(t *testing.T, user, org uuid.UUID, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(util.Claims{UserID: user, OrgID: org, Role: role}, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() err=%v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

type taskJSON struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	HasEvidence     bool   `json:"has_evidence"`
	AssigneeName    string `json:"assignee_name"`
}

func TestRouter_TaskLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/pam/tasks", f.admin, map[string]any{
		"year": 2025, "week": 10, "date": "2025-03-05",
		"assignee": "ana@acme.com", "description": "Inspect pump",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body)
	}
	created := decode[taskJSON](t, w)
	if created.Date != "2025-03-05" || created.Status != "PENDING" || created.AssigneeName != "Ana" {
		t.Fatalf("created=%+v", created)
	}
	base := "/pam/tasks/" + created.ID

	w = f.do(t, http.MethodGet, "/pam/weeks/2025/10/tasks", f.worker, nil)
	list := decode[struct{ Tasks []taskJSON }](t, w)
	if w.Code != http.StatusOK || len(list.Tasks) != 1 {
		t.Fatalf("list status=%d tasks=%d", w.Code, len(list.Tasks))
	}

	if w = f.do(t, http.MethodPost, base+"/evidence", f.worker, map[string]string{"file_ref": "s3://x"}); w.Code != http.StatusConflict {
		t.Fatalf("evidence on PENDING status=%d, want 409", w.Code)
	}
	if w = f.do(t, http.MethodPost, base+"/acknowledge", f.worker, nil); w.Code != http.StatusOK {
		t.Fatalf("acknowledge status=%d body=%s", w.Code, w.Body)
	}
	if w = f.do(t, http.MethodPost, base+"/approve", f.admin, nil); w.Code != http.StatusConflict {
		t.Fatalf("approve without evidence status=%d, want 409", w.Code)
	}
	if w = f.do(t, http.MethodPost, base+"/evidence", f.worker, map[string]string{"file_ref": "s3://x", "note": "done"}); w.Code != http.StatusCreated {
		t.Fatalf("evidence status=%d body=%s", w.Code, w.Body)
	}
	if w = f.do(t, http.MethodPost, base+"/approve", f.worker, nil); w.Code != http.StatusForbidden {
		t.Fatalf("worker approve status=%d, want 403", w.Code)
	}

	w = f.do(t, http.MethodPost, base+"/approve", f.admin, nil)
	if got := decode[taskJSON](t, w); w.Code != http.StatusOK || got.Status != "DONE" {
		t.Fatalf("approve status=%d task=%+v", w.Code, got)
	}

	if w = f.do(t, http.MethodPatch, base, f.admin, map[string]string{"description": "late edit"}); w.Code != http.StatusLocked {
		t.Fatalf("patch DONE status=%d, want 423", w.Code)
	}
	if w = f.do(t, http.MethodDelete, base, f.admin, nil); w.Code != http.StatusLocked {
		t.Fatalf("delete DONE status=%d, want 423", w.Code)
	}

	w = f.do(t, http.MethodGet, base+"/evidence", f.worker, nil)
	ev := decode[struct{ Evidence []model.TaskEvidence }](t, w)
	if len(ev.Evidence) != 1 || ev.Evidence[0].FileRef != "s3://x" {
		t.Fatalf("evidence=%+v", ev.Evidence)
	}

	w = f.do(t, http.MethodGet, "/notifications?unread=true", f.worker, nil)
	inbox := decode[struct{ Notifications []model.Notification }](t, w)
	if w.Code != http.StatusOK || len(inbox.Notifications) != 2 {
		t.Fatalf("notifications status=%d n=%d, want assigned+approved", w.Code, len(inbox.Notifications))
	}
	read := "/notifications/" + inbox.Notifications[0].ID.String() + "/read"
	if w = f.do(t, http.MethodPost, read, f.worker, nil); w.Code != http.StatusNoContent {
		t.Fatalf("mark read status=%d", w.Code)
	}
}

func TestRouter_InputErrors(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/pam/weeks/2025/10/tasks", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d, want 401", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/pam/weeks/2025/10/tasks", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d, want 401", w.Code)
	}
	w := f.do(t, http.MethodPost, "/pam/tasks", f.admin, map[string]any{
		"year": 2025, "week": 10, "date": "05/03/2025", "description": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status=%d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/pam/tasks/not-a-uuid", f.admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/pam/tasks/"+uuid.NewString()+"/acknowledge", f.worker, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown task status=%d, want 404", w.Code)
	}
}

func TestRouter_Sync(t *testing.T) {
	f := newFixture(t)

	var got syncer.SyncRequest
	f.sync.fn = func(_ context.Context, orgID uuid.UUID, req syncer.SyncRequest) (syncer.SyncResult, error) {
		got = req
		if orgID != f.org {
			return syncer.SyncResult{}, syncer.ErrUnknownSource
		}
		return syncer.SyncResult{OrgID: orgID, Outcome: syncer.OutcomeImported, Success: true, TasksCreated: 4}, nil
	}

	if w := f.do(t, http.MethodPost, "/pam/sync", f.worker, nil); w.Code != http.StatusForbidden {
		t.Fatalf("worker sync status=%d, want 403", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/pam/sync?force=maybe", f.admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad force status=%d, want 400", w.Code)
	}

	w := f.do(t, http.MethodPost, "/pam/sync?force=true", f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status=%d body=%s", w.Code, w.Body)
	}
	res := decode[syncer.SyncResult](t, w)
	if res.Outcome != syncer.OutcomeImported || res.TasksCreated != 4 {
		t.Fatalf("result=%+v", res)
	}
	if !got.Force || got.Trigger.Kind() != syncer.TriggerManual {
		t.Fatalf("request=%+v, want forced manual", got)
	}

	other := token(t, uuid.New(), uuid.New(), rbac.RoleAdmin)
	if w := f.do(t, http.MethodPost, "/pam/sync", other, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown org status=%d, want 404", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics=%d", w.Code)
	}

	gin.SetMode(gin.TestMode)
	down := NewRouter(nil, nil, nil, secret, map[string]Pinger{
		"mq": PingFunc(func(context.Context) error { return errors.New("down") }),
	}, zap.NewNop())
	w := httptest.NewRecorder()
	down.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "mq_not_ready") {
		t.Fatalf("readyz with mq down=%d %s, want 500 mq_not_ready", w.Code, w.Body)
	}
}
