package models

import (
	"time"

	"github.com/google/uuid"
)

// Resource is a file the host shared with the session.
type Resource struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LessonID   uuid.UUID `db:"lesson_id" json:"lesson_id"`
	Title      string    `db:"title" json:"title"`
	FileRef    string    `db:"file_ref" json:"file_ref"`
	UploadedBy uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
