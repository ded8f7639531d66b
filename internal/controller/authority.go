package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

// ErrTogglePending rejects a second toggle on a target whose previous write
// has not settled; the pending write's outcome decides the state first.
var ErrTogglePending = errors.New("a lock change for this target is still pending")

type LockTarget string

const (
	LockMic    LockTarget = "mic"
	LockCamera LockTarget = "camera"
)

// LockState is the client's view of both lock flags.
type LockState struct {
	MicLocked    bool
	CameraLocked bool
}

// LockBackend persists a lock flag. The durable store's change notification,
// not this call's return, is what converges every participant.
type LockBackend interface {
	SetLock(ctx context.Context, target LockTarget, locked bool) error
}

type lockPhase int

const (
	phaseIdle lockPhase = iota
	phasePending
)

type lockEntry struct {
	locked bool
	phase  lockPhase
	prev   bool // value to revert to if the pending write fails
}

// Authority is the host-only lock controller. Toggles flip the local value
// optimistically to hide backend latency, but the flip is not the system of
// record: a failed write reverts deterministically to the pre-toggle value,
// and the converged state always arrives through ApplyMetadata on the same
// durable-channel path every other participant uses.
type Authority struct {
	mu      sync.Mutex
	backend LockBackend
	isHost  bool
	log     zerolog.Logger

	locks map[LockTarget]*lockEntry

	// onChange observes every local state transition, optimistic flips
	// and reverts included.
	onChange func(LockState)
}

type AuthorityConfig struct {
	Initial  LockState // from the bootstrap metadata snapshot
	IsHost   bool
	Backend  LockBackend
	OnChange func(LockState)
	Log      zerolog.Logger
}

func NewAuthority(cfg AuthorityConfig) *Authority {
	return &Authority{
		backend: cfg.Backend,
		isHost:  cfg.IsHost,
		log:     cfg.Log.With().Str("component", "authority").Logger(),
		locks: map[LockTarget]*lockEntry{
			LockMic:    {locked: cfg.Initial.MicLocked},
			LockCamera: {locked: cfg.Initial.CameraLocked},
		},
		onChange: cfg.OnChange,
	}
}

// State returns the current local view.
func (a *Authority) State() LockState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// Toggle inverts the lock for target: optimistic local flip, then the
// backend write. On failure the flip is reverted to the pre-call value.
func (a *Authority) Toggle(ctx context.Context, target LockTarget) error {
	if !a.isHost {
		return ErrNotHost
	}

	a.mu.Lock()
	entry, ok := a.locks[target]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("unknown lock target %q", target)
	}
	if entry.phase == phasePending {
		a.mu.Unlock()
		return ErrTogglePending
	}

	entry.prev = entry.locked
	entry.locked = !entry.locked
	entry.phase = phasePending
	desired := entry.locked
	a.notifyLocked()
	a.mu.Unlock()

	if err := a.backend.SetLock(ctx, target, desired); err != nil {
		a.mu.Lock()
		if entry.phase == phasePending {
			entry.locked = entry.prev
			entry.phase = phaseIdle
			a.notifyLocked()
		}
		a.mu.Unlock()
		a.log.Warn().Err(err).Str("target", string(target)).Msg("lock write failed, reverted")
		return fmt.Errorf("persisting %s lock: %w", target, err)
	}

	a.mu.Lock()
	entry.phase = phaseIdle
	a.mu.Unlock()

	a.log.Info().Str("target", string(target)).Bool("locked", desired).Msg("lock toggled")
	return nil
}

// ApplyMetadata adopts a durable snapshot. This is the convergence path for
// every participant, the toggling host included; it overrides any local
// optimistic value and settles pending entries.
func (a *Authority) ApplyMetadata(meta models.RoomMetadata) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false
	if mic := a.locks[LockMic]; mic.locked != meta.MicLocked || mic.phase != phaseIdle {
		mic.locked = meta.MicLocked
		mic.phase = phaseIdle
		changed = true
	}
	if cam := a.locks[LockCamera]; cam.locked != meta.CameraLocked || cam.phase != phaseIdle {
		cam.locked = meta.CameraLocked
		cam.phase = phaseIdle
		changed = true
	}

	if changed {
		a.notifyLocked()
	}
}

func (a *Authority) stateLocked() LockState {
	return LockState{
		MicLocked:    a.locks[LockMic].locked,
		CameraLocked: a.locks[LockCamera].locked,
	}
}

// notifyLocked invokes the observer with the current state. Callers hold a.mu.
func (a *Authority) notifyLocked() {
	if a.onChange != nil {
		a.onChange(a.stateLocked())
	}
}
