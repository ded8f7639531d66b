package models

import (
	"time"

	"github.com/google/uuid"
)

type LiveSessionStatus string

const (
	LiveSessionStatusScheduled LiveSessionStatus = "scheduled"
	LiveSessionStatusActive    LiveSessionStatus = "active"
	LiveSessionStatusCompleted LiveSessionStatus = "completed"
)

// LiveSession is one lesson occurrence. HostUserID is the single participant
// with write authority over locks, extension and resources; everyone else
// joins as a plain participant.
type LiveSession struct {
	LessonID   uuid.UUID `db:"lesson_id"`
	HostUserID uuid.UUID `db:"host_user_id"`
	Title      string    `db:"title"`

	ScheduledStart time.Time `db:"scheduled_start"`
	ScheduledEnd   time.Time `db:"scheduled_end"`

	// EffectiveEndTime starts equal to ScheduledEnd and only ever moves
	// forward through extensions.
	EffectiveEndTime time.Time `db:"effective_end_time"`

	MicLocked    bool `db:"mic_locked"`
	CameraLocked bool `db:"camera_locked"`

	Status LiveSessionStatus `db:"status"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
