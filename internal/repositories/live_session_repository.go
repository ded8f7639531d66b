package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tutorlane/liveclass/internal/dtos"
	"github.com/tutorlane/liveclass/internal/models"
)

var ErrSessionNotFound = errors.New("live session not found")

type LiveSessionRepository struct {
	db *sql.DB
}

func NewLiveSessionRepository(db *sql.DB) *LiveSessionRepository {
	return &LiveSessionRepository{db: db}
}

// Get session by lesson ID
func (r *LiveSessionRepository) GetByLessonID(ctx context.Context, lessonID uuid.UUID) (*models.LiveSession, error) {
	const query = `
	SELECT
		lesson_id,
		host_user_id,
		title,
		scheduled_start,
		scheduled_end,
		effective_end_time,
		mic_locked,
		camera_locked,
		status,
		created_at,
		updated_at
	FROM live_sessions
	WHERE lesson_id = $1
	LIMIT 1
	`

	var session models.LiveSession

	err := r.db.QueryRowContext(ctx, query, lessonID).Scan(
		&session.LessonID,
		&session.HostUserID,
		&session.Title,
		&session.ScheduledStart,
		&session.ScheduledEnd,
		&session.EffectiveEndTime,
		&session.MicLocked,
		&session.CameraLocked,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &session, nil
}

// Create a new live session (exercised by seeding and tests; scheduling
// normally happens in the course platform)
func (r *LiveSessionRepository) Create(ctx context.Context, session *models.LiveSession) error {
	const query = `
	INSERT INTO live_sessions (
		lesson_id,
		host_user_id,
		title,
		scheduled_start,
		scheduled_end,
		effective_end_time,
		mic_locked,
		camera_locked,
		status,
		created_at,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $5, false, false, $6, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	return r.db.QueryRowContext(
		ctx,
		query,
		session.LessonID,
		session.HostUserID,
		session.Title,
		session.ScheduledStart,
		session.ScheduledEnd,
		models.LiveSessionStatusScheduled,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
}

// SetLock persists one lock flag. The column is chosen here, not
// interpolated from user input.
func (r *LiveSessionRepository) SetLock(ctx context.Context, lessonID uuid.UUID, target string, locked bool) error {
	const micQuery = `
	UPDATE live_sessions
	SET mic_locked = $1, updated_at = NOW()
	WHERE lesson_id = $2
	`
	const cameraQuery = `
	UPDATE live_sessions
	SET camera_locked = $1, updated_at = NOW()
	WHERE lesson_id = $2
	`

	var query string
	switch target {
	case dtos.LockTargetMic:
		query = micQuery
	case dtos.LockTargetCamera:
		query = cameraQuery
	default:
		return fmt.Errorf("unknown lock target %q", target)
	}

	res, err := r.db.ExecContext(ctx, query, locked, lessonID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ExtendEndTime pushes the effective end forward by the given number of
// minutes and returns the new value. GREATEST keeps the column monotonic
// even against a concurrent writer racing with a stale base value.
func (r *LiveSessionRepository) ExtendEndTime(ctx context.Context, lessonID uuid.UUID, minutes int) (*models.LiveSession, error) {
	const query = `
	UPDATE live_sessions
	SET
		effective_end_time = GREATEST(
			effective_end_time + make_interval(mins => $1),
			effective_end_time
		),
		updated_at = NOW()
	WHERE lesson_id = $2
	RETURNING
		lesson_id,
		host_user_id,
		title,
		scheduled_start,
		scheduled_end,
		effective_end_time,
		mic_locked,
		camera_locked,
		status,
		created_at,
		updated_at
	`

	var session models.LiveSession

	err := r.db.QueryRowContext(ctx, query, minutes, lessonID).Scan(
		&session.LessonID,
		&session.HostUserID,
		&session.Title,
		&session.ScheduledStart,
		&session.ScheduledEnd,
		&session.EffectiveEndTime,
		&session.MicLocked,
		&session.CameraLocked,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &session, nil
}

// Update session status
func (r *LiveSessionRepository) UpdateStatus(ctx context.Context, lessonID uuid.UUID, status models.LiveSessionStatus) error {
	const query = `
	UPDATE live_sessions
	SET status = $1, updated_at = NOW()
	WHERE lesson_id = $2
	`

	_, err := r.db.ExecContext(ctx, query, status, lessonID)
	return err
}
