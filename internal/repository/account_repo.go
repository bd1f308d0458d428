package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
)

// FindAccountsByEmails matches case-insensitively within one organization.
func (r *Repository) FindAccountsByEmails(ctx context.Context, orgID uuid.UUID, emails []string) ([]model.Account, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(e))
	}

	query := `
        SELECT id, org_id, email, display_name, role
        FROM accounts
        WHERE org_id = $1 AND lower(email) = ANY($2)
    `
	r.logger.Debug("Resolving accounts by email",
		zap.String("org_id", orgID.String()),
		zap.Int("count", len(lowered)),
	)
	rows, err := r.db.Query(ctx, query, orgID, lowered)
	if err != nil {
		r.logger.Error("Failed to query accounts", zap.Error(err), zap.String("org_id", orgID.String()))
		return nil, err
	}
	defer rows.Close()

	var list []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Email, &a.DisplayName, &a.Role); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
