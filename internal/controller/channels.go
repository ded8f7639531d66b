package controller

import (
	"context"

	"github.com/tutorlane/liveclass/internal/models"
)

// DurableStateChannel is the replayable half of the room runtime: the
// current metadata snapshot can be read at any time (late join included),
// and every update delivers a full replacement snapshot to all subscribers,
// the writer's own client included.
type DurableStateChannel interface {
	// Current reads the room's present snapshot.
	Current(ctx context.Context) (models.RoomMetadata, error)
	// OnChange registers a handler for replacement snapshots. Handlers
	// must treat each snapshot as idempotent state, not a delta.
	OnChange(handler func(models.RoomMetadata))
}

// EphemeralBus is the best-effort half: messages reach only the peers
// connected at send time, in order per sender, with no replay. It is a
// latency optimization, never the system of record.
type EphemeralBus interface {
	Publish(ctx context.Context, msg ControlMessage) error
	OnMessage(handler func(ControlMessage))
}
