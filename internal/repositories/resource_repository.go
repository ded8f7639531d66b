package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tutorlane/liveclass/internal/models"
)

var ErrResourceNotFound = errors.New("resource not found")

type ResourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create a new resource row
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	const query = `
	INSERT INTO resources (
		id,
		lesson_id,
		title,
		file_ref,
		uploaded_by,
		created_at
	)
	VALUES ($1, $2, $3, $4, $5, NOW())
	RETURNING created_at
	`

	return r.db.QueryRowContext(
		ctx,
		query,
		resource.ID,
		resource.LessonID,
		resource.Title,
		resource.FileRef,
		resource.UploadedBy,
	).Scan(&resource.CreatedAt)
}

// ListByLessonID returns resources in upload order
func (r *ResourceRepository) ListByLessonID(ctx context.Context, lessonID uuid.UUID) ([]models.Resource, error) {
	const query = `
	SELECT
		id,
		lesson_id,
		title,
		file_ref,
		uploaded_by,
		created_at
	FROM resources
	WHERE lesson_id = $1
	ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := make([]models.Resource, 0)
	for rows.Next() {
		var res models.Resource
		if err := rows.Scan(
			&res.ID,
			&res.LessonID,
			&res.Title,
			&res.FileRef,
			&res.UploadedBy,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	return resources, rows.Err()
}

// Delete removes a resource row
func (r *ResourceRepository) Delete(ctx context.Context, lessonID, resourceID uuid.UUID) error {
	const query = `
	DELETE FROM resources
	WHERE lesson_id = $1 AND id = $2
	`

	res, err := r.db.ExecContext(ctx, query, lessonID, resourceID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrResourceNotFound
	}
	if err == sql.ErrNoRows {
		return ErrResourceNotFound
	}
	return err
}
