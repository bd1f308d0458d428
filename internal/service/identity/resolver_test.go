package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
)

type fakeDirectory struct {
	fn func(ctx context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error)
}

func (f *fakeDirectory) FindAccountsByEmails(ctx context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error) {
	return f.fn(ctx, orgID, emails)
}

func TestResolver_Resolve(t *testing.T) {
	org := uuid.New()
	ana := model.Account{ID: uuid.New(), OrgID: org, Email: "Ana@Acme.com", DisplayName: "Ana Pérez"}
	calls := 0

	dir := &fakeDirectory{fn: func(_ context.Context, gotOrg uuid.UUID, emails []string) ([]model.Account, error) {
		calls++
		if gotOrg != org {
			t.Fatalf("org=%s, want %s", gotOrg, org)
		}
		if len(emails) != 2 {
			t.Fatalf("emails=%v, want 2 distinct lower-cased references", emails)
		}
		// another org's account must never leak in
		return []model.Account{ana, {ID: uuid.New(), OrgID: uuid.New(), Email: "bo@acme.com"}}, nil
	}}

	res, err := NewResolver(dir, zap.NewNop()).Resolve(context.Background(), org,
		[]string{"ana@acme.com", "ANA@ACME.COM", " bo@acme.com ", ""})
	if err != nil {
		t.Fatalf("Resolve() err=%v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("directory calls=%d, want 1", calls)
	}

	got, ok := res.Lookup("aNa@acme.COM")
	if !ok || got.ID != ana.ID {
		t.Fatalf("Lookup(mixed case)=%v,%v, want ana", got, ok)
	}
	if u := res.Unresolved(); len(u) != 1 || u[0] != "bo@acme.com" {
		t.Fatalf("Unresolved()=%v, want [bo@acme.com]", u)
	}

	var task model.Task
	res.Assign(&task, "Ana@acme.com")
	if task.AssigneeID == nil || *task.AssigneeID != ana.ID || task.AssigneeName != "Ana Pérez" {
		t.Fatalf("Assign(resolved)=%v/%q", task.AssigneeID, task.AssigneeName)
	}
	res.Assign(&task, "Bo@Acme.com")
	if task.AssigneeID != nil || task.AssigneeName != "Bo@Acme.com" {
		t.Fatalf("Assign(unresolved)=%v/%q, want nil id and raw reference", task.AssigneeID, task.AssigneeName)
	}
}

func TestResolver_DirectoryError(t *testing.T) {
	boom := errors.New("db down")
	dir := &fakeDirectory{fn: func(context.Context, uuid.UUID, []string) ([]model.Account, error) {
		return nil, boom
	}}
	_, err := NewResolver(dir, zap.NewNop()).Resolve(context.Background(), uuid.New(), []string{"a@acme.com"})
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() err=%v, want %v", err, boom)
	}
}

func TestResolver_EmptyInputSkipsDirectory(t *testing.T) {
	dir := &fakeDirectory{fn: func(context.Context, uuid.UUID, []string) ([]model.Account, error) {
		t.Fatalf("directory must not be queried for an empty batch")
		return nil, nil
	}}
	if _, err := NewResolver(dir, zap.NewNop()).Resolve(context.Background(), uuid.New(), nil); err != nil {
		t.Fatalf("Resolve() err=%v, want nil", err)
	}
}
