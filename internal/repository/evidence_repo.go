package repository

import (
	"context"

	"github.com/google/uuid"

	"pamsync/internal/model"
)

// ListEvidence returns the upload history of a task, oldest first.
func (r *Repository) ListEvidence(ctx context.Context, taskID uuid.UUID) ([]model.TaskEvidence, error) {
	query := `
        SELECT id, task_id, uploader_id, file_ref, note, uploaded_at
        FROM task_evidence
        WHERE task_id = $1
        ORDER BY uploaded_at
    `
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.TaskEvidence{}
	for rows.Next() {
		var ev model.TaskEvidence
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.UploaderID, &ev.FileRef, &ev.Note, &ev.UploadedAt); err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

func (t *txRepo) InsertEvidence(ctx context.Context, ev model.TaskEvidence) error {
	query := `
        INSERT INTO task_evidence (id, task_id, uploader_id, file_ref, note, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := t.tx.Exec(ctx, query, ev.ID, ev.TaskID, ev.UploaderID, ev.FileRef, ev.Note, ev.UploadedAt)
	return err
}
