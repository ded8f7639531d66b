package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

type fakeLockBackend struct {
	mu    sync.Mutex
	err   error
	calls []struct {
		target LockTarget
		locked bool
	}
}

func (b *fakeLockBackend) SetLock(_ context.Context, target LockTarget, locked bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, struct {
		target LockTarget
		locked bool
	}{target, locked})
	return b.err
}

func newAuthorityFixture(isHost bool) (*Authority, *fakeLockBackend, *[]LockState) {
	backend := &fakeLockBackend{}
	var transitions []LockState
	auth := NewAuthority(AuthorityConfig{
		IsHost:   isHost,
		Backend:  backend,
		OnChange: func(s LockState) { transitions = append(transitions, s) },
		Log:      zerolog.Nop(),
	})
	return auth, backend, &transitions
}

func TestAuthority_ToggleFlipsOptimistically(t *testing.T) {
	auth, backend, transitions := newAuthorityFixture(true)

	if err := auth.Toggle(context.Background(), LockMic); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if got := auth.State(); !got.MicLocked || got.CameraLocked {
		t.Fatalf("state after toggle = %+v, want mic locked only", got)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.calls) != 1 || backend.calls[0].target != LockMic || !backend.calls[0].locked {
		t.Fatalf("backend calls = %+v, want one mic lock", backend.calls)
	}

	// The optimistic flip itself is observable before any confirmation.
	if len(*transitions) == 0 || !(*transitions)[0].MicLocked {
		t.Fatalf("optimistic transition not observed: %+v", *transitions)
	}
}

func TestAuthority_FailedToggleRevertsToPreviousValue(t *testing.T) {
	auth, backend, transitions := newAuthorityFixture(true)
	backend.err = errors.New("backend down")

	err := auth.Toggle(context.Background(), LockCamera)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}

	if got := auth.State(); got.CameraLocked {
		t.Fatalf("camera lock not reverted after failed write: %+v", got)
	}

	// Both the flip and the revert are observed, in that order.
	if len(*transitions) != 2 || !(*transitions)[0].CameraLocked || (*transitions)[1].CameraLocked {
		t.Fatalf("transitions = %+v, want flip then revert", *transitions)
	}
}

func TestAuthority_ConvergesThroughMetadataPath(t *testing.T) {
	// The host's own view converges through the same snapshot path every
	// other participant uses; there is no special-cased self branch.
	auth, _, transitions := newAuthorityFixture(true)

	meta := models.RoomMetadata{
		LessonID:         uuid.New(),
		MicLocked:        true,
		CameraLocked:     true,
		EffectiveEndTime: time.Now().Add(time.Hour),
	}
	auth.ApplyMetadata(meta)

	if got := auth.State(); !got.MicLocked || !got.CameraLocked {
		t.Fatalf("state after snapshot = %+v, want both locked", got)
	}

	// Repeated identical snapshots are idempotent.
	before := len(*transitions)
	auth.ApplyMetadata(meta)
	if len(*transitions) != before {
		t.Error("identical snapshot produced a spurious transition")
	}
}

func TestAuthority_SnapshotOverridesOptimisticValue(t *testing.T) {
	auth, backend, _ := newAuthorityFixture(true)
	backend.err = errors.New("slow failure")

	// A snapshot arriving while a write is pending settles the entry;
	// the late failure must not revert past it.
	done := make(chan struct{})
	backend.mu.Lock()
	go func() {
		defer close(done)
		auth.Toggle(context.Background(), LockMic)
	}()

	// Wait for the optimistic flip, then converge via snapshot before the
	// backend write resolves.
	for i := 0; i < 1000; i++ {
		if auth.State().MicLocked {
			break
		}
		time.Sleep(time.Millisecond)
	}
	auth.ApplyMetadata(models.RoomMetadata{MicLocked: true})
	backend.mu.Unlock()
	<-done

	if got := auth.State(); !got.MicLocked {
		t.Fatalf("durable snapshot overridden by stale revert: %+v", got)
	}
}

func TestAuthority_SecondToggleWhilePendingRejected(t *testing.T) {
	auth, backend, _ := newAuthorityFixture(true)

	done := make(chan struct{})
	backend.mu.Lock()
	go func() {
		defer close(done)
		auth.Toggle(context.Background(), LockMic)
	}()

	for i := 0; i < 1000; i++ {
		if auth.State().MicLocked {
			break
		}
		time.Sleep(time.Millisecond)
	}
	err := auth.Toggle(context.Background(), LockMic)
	backend.mu.Unlock()
	<-done

	if !errors.Is(err, ErrTogglePending) {
		t.Fatalf("expected ErrTogglePending, got %v", err)
	}
}

func TestAuthority_NonHostDenied(t *testing.T) {
	auth, backend, _ := newAuthorityFixture(false)

	err := auth.Toggle(context.Background(), LockMic)
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.calls) != 0 {
		t.Error("backend must not be called for a non-host toggle")
	}
}

func TestAuthority_UnknownTargetRejected(t *testing.T) {
	auth, _, _ := newAuthorityFixture(true)

	if err := auth.Toggle(context.Background(), LockTarget("screen")); err == nil {
		t.Fatal("expected error for unknown lock target")
	}
}
