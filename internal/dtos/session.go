package dtos

import (
	"time"

	"github.com/tutorlane/liveclass/internal/models"
)

// Join response. IsHost is authoritative for the connecting participant:
// it is derived server-side and baked into the room token, never re-derived.
type JoinResponse struct {
	Token            string            `json:"token"`
	RoomAddress      string            `json:"room_address"`
	IsHost           bool              `json:"is_host"`
	EffectiveEndTime time.Time         `json:"effective_end_time"`
	Resources        []models.Resource `json:"resources"`
}

// WaitGate is the structured "too early" denial. It is a state, not a
// failure: the client shows a wait screen and may re-invoke join at will.
type WaitGate struct {
	Message string    `json:"message"`
	OpenAt  time.Time `json:"open_at"`
}

func (w *WaitGate) Error() string { return w.Message }

// WaitGateBody is the 403 wire shape for a too-early join.
type WaitGateBody struct {
	Error   string    `json:"error"` // always "too_early"
	Message string    `json:"message"`
	OpenAt  time.Time `json:"open_at"`
}

const ErrorTooEarly = "too_early"

// Lock targets
const (
	LockTargetMic    = "mic"
	LockTargetCamera = "camera"
)

type LockRequest struct {
	Target string `json:"target" binding:"required,oneof=mic camera"`
	Locked bool   `json:"locked"`
}

// DefaultExtendMinutes is applied when an extend request leaves minutes
// unset.
const DefaultExtendMinutes = 15

type ExtendRequest struct {
	Minutes int `json:"minutes" binding:"omitempty,min=1,max=60"`
}

type ExtendResponse struct {
	NewEndTime time.Time `json:"new_end_time"`
}
