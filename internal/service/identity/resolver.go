package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/pkg/metrics"
)

// Directory is the org-scoped account lookup.
type Directory interface {
	FindAccountsByEmails(ctx context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error)
}

type Resolver struct {
	dir    Directory
	logger *zap.Logger
}

func NewResolver(dir Directory, logger *zap.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolution maps lower-cased references to accounts.
type Resolution struct {
	accounts   map[string]model.Account
	unresolved []string
}

// Lookup matches ref case-insensitively.
func (r Resolution) Lookup(ref string) (model.Account, bool) {
	a, ok := r.accounts[strings.ToLower(strings.TrimSpace(ref))]
	return a, ok
}

// Unresolved lists the references with no matching account, sorted.
func (r Resolution) Unresolved() []string {
	return r.unresolved
}

// Assign fills the assignee fields of t from ref. Unresolved references keep
// the raw text as the display name and leave the assignee id empty.
func (r Resolution) Assign(t *model.Task, ref string) {
	if a, ok := r.Lookup(ref); ok {
		id := a.ID
		t.AssigneeID = &id
		t.AssigneeName = a.Label()
		return
	}
	t.AssigneeID = nil
	t.AssigneeName = strings.TrimSpace(ref)
}

// Resolve looks up every distinct reference with a single directory query.
func (r *Resolver) Resolve(ctx context.Context, orgID uuid.UUID, refs []string) (Resolution, error) {
	distinct := make(map[string]struct{}, len(refs))
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		k := strings.ToLower(strings.TrimSpace(ref))
		if k == "" {
			continue
		}
		if _, dup := distinct[k]; dup {
			continue
		}
		distinct[k] = struct{}{}
		keys = append(keys, k)
	}

	res := Resolution{accounts: make(map[string]model.Account, len(keys))}
	if len(keys) == 0 {
		return res, nil
	}

	accounts, err := r.dir.FindAccountsByEmails(ctx, orgID, keys)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve identities: %w", err)
	}
	for _, a := range accounts {
		if a.OrgID != orgID {
			continue
		}
		res.accounts[strings.ToLower(a.Email)] = a
	}

	for _, k := range keys {
		if _, ok := res.accounts[k]; !ok {
			res.unresolved = append(res.unresolved, k)
		}
	}
	sort.Strings(res.unresolved)

	if n := len(res.unresolved); n > 0 {
		metrics.AddUnresolvedIdentities(n)
		r.logger.Debug("Identity references without account",
			zap.String("org_id", orgID.String()),
			zap.Strings("references", res.unresolved),
		)
	}
	return res, nil
}
