package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pamsync/internal/model"
)

const returningWeekPlan = `
        RETURNING id, org_id, week_year, week_number, importer_id, source_label, created_at, updated_at
`

// UpsertWeekPlan creates the plan or takes it over for the new importer.
func (t *txRepo) UpsertWeekPlan(ctx context.Context, wp model.WeekPlan) (model.WeekPlan, error) {
	query := `
        INSERT INTO week_plans (id, org_id, week_year, week_number, importer_id, source_label, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (org_id, week_year, week_number)
        DO UPDATE SET importer_id = EXCLUDED.importer_id,
                      source_label = EXCLUDED.source_label,
                      updated_at = NOW()
    ` + returningWeekPlan
	return t.writeWeekPlan(ctx, query, wp)
}

// EnsureWeekPlan is a no-op update on conflict so RETURNING still yields the row.
func (t *txRepo) EnsureWeekPlan(ctx context.Context, wp model.WeekPlan) (model.WeekPlan, error) {
	query := `
        INSERT INTO week_plans (id, org_id, week_year, week_number, importer_id, source_label, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (org_id, week_year, week_number)
        DO UPDATE SET org_id = week_plans.org_id
    ` + returningWeekPlan
	return t.writeWeekPlan(ctx, query, wp)
}

func (t *txRepo) writeWeekPlan(ctx context.Context, query string, wp model.WeekPlan) (model.WeekPlan, error) {
	if wp.ID == uuid.Nil {
		wp.ID = uuid.New()
	}
	var out model.WeekPlan
	err := t.tx.QueryRow(ctx, query,
		wp.ID, wp.OrgID, wp.WeekYear, wp.WeekNumber, wp.ImporterID, wp.SourceLabel,
	).Scan(
		&out.ID, &out.OrgID, &out.WeekYear, &out.WeekNumber,
		&out.ImporterID, &out.SourceLabel, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		t.logger.Error("Failed to write week plan",
			zap.Error(err),
			zap.String("org_id", wp.OrgID.String()),
			zap.String("period", wp.Period().String()),
		)
		return model.WeekPlan{}, err
	}
	return out, nil
}
