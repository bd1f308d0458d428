package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskEvidence is append-only history; rows are never updated.
type TaskEvidence struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	UploaderID uuid.UUID `json:"uploader_id"`
	FileRef    string    `json:"file_ref"`
	Note       string    `json:"note,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}
