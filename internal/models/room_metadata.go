package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomMetadata is the durable room state snapshot. The store keeps one full
// snapshot per room; every update replaces it and is fanned out to all
// connected participants, the writer included. Late joiners read the current
// snapshot, so this channel has no delivery gap.
type RoomMetadata struct {
	LessonID         uuid.UUID `json:"lesson_id"`
	MicLocked        bool      `json:"mic_locked"`
	CameraLocked     bool      `json:"camera_locked"`
	EffectiveEndTime time.Time `json:"effective_end_time"`
	UpdatedAt        time.Time `json:"updated_at"`
}
