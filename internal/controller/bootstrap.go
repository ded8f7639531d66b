package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

// SessionHooks are the UI-facing callbacks and knobs for a session.
type SessionHooks struct {
	// OnWarning fires once per effective end value when the warning
	// threshold is reached.
	OnWarning func(remaining time.Duration)
	// OnEnded fires when the session reaches its effective end.
	OnEnded func()
	// OnLockChange observes every local lock transition, optimistic
	// flips and durable convergence alike.
	OnLockChange func(LockState)
	// OnRaiseHand fires when a peer raises a hand (host view).
	OnRaiseHand func(identity string)

	Clock Clock // nil means wall clock
	Log   zerolog.Logger
}

// Session is a connected live session: the bootstrap snapshot plus the
// three controllers that keep it current. The host capability is fixed at
// construction from the join response; nothing re-derives it afterwards.
type Session struct {
	LessonID uuid.UUID

	Authority *Authority
	Countdown *Countdown
	Resources *Resources

	isHost   bool
	identity string
	link     *RoomLink
	log      zerolog.Logger
}

// Bootstrap resolves a join into a connected session. A too-early denial
// surfaces as *dtos.WaitGate; the caller shows the wait state and may call
// Bootstrap again at will. Any other failure means the session is not
// entered.
func Bootstrap(ctx context.Context, backend *BackendClient, lessonID uuid.UUID, identity string, hooks SessionHooks) (*Session, error) {
	join, err := backend.Join(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	link, err := ConnectRoom(ctx, join.RoomAddress, join.Token, hooks.Log)
	if err != nil {
		return nil, err
	}

	sc := backend.Session(lessonID, join.Token)

	// Initial lock state comes from the durable snapshot; if it has not
	// arrived yet the first change notification converges us anyway.
	var initial LockState
	if meta, err := link.Current(ctx); err == nil {
		initial = LockState{MicLocked: meta.MicLocked, CameraLocked: meta.CameraLocked}
	}

	s := &Session{
		LessonID: lessonID,
		isHost:   join.IsHost,
		identity: identity,
		link:     link,
		log:      hooks.Log.With().Str("component", "session").Str("lesson", lessonID.String()).Logger(),
	}

	s.Authority = NewAuthority(AuthorityConfig{
		Initial:  initial,
		IsHost:   join.IsHost,
		Backend:  sc,
		OnChange: hooks.OnLockChange,
		Log:      hooks.Log,
	})

	s.Countdown = NewCountdown(CountdownConfig{
		End:       join.EffectiveEndTime,
		IsHost:    join.IsHost,
		Backend:   sc,
		Bus:       link,
		Clock:     hooks.Clock,
		OnWarning: hooks.OnWarning,
		OnEnded:   hooks.OnEnded,
		Log:       hooks.Log,
	})

	s.Resources = NewResources(join.Resources, join.IsHost, sc, hooks.Log)

	// The two listeners are independent; each update is idempotent on its
	// own slice of state, so their relative order does not matter.
	link.OnChange(s.applyMetadata)
	link.OnMessage(func(msg ControlMessage) {
		switch m := msg.(type) {
		case TimeExtended:
			s.Countdown.AdoptEnd(m.NewEndTime)
		case RaiseHand:
			if hooks.OnRaiseHand != nil {
				hooks.OnRaiseHand(m.ParticipantIdentity)
			}
		}
	})

	s.Countdown.Start()
	return s, nil
}

func (s *Session) applyMetadata(meta models.RoomMetadata) {
	s.Authority.ApplyMetadata(meta)
	s.Countdown.AdoptEnd(meta.EffectiveEndTime)
}

// IsHost reports the capability granted at bootstrap.
func (s *Session) IsHost() bool { return s.isHost }

// RaiseHand publishes a raise-hand event. Any participant may send one;
// only connected peers see it.
func (s *Session) RaiseHand(ctx context.Context) error {
	return s.link.Publish(ctx, RaiseHand{ParticipantIdentity: s.identity})
}

// Leave tears the session down: timers stopped, room disconnected. The UI
// navigates away afterwards.
func (s *Session) Leave() {
	s.Countdown.Stop()
	s.link.Close()
	s.log.Info().Msg("left session")
}

// Disconnected is closed once the room link drops.
func (s *Session) Disconnected() <-chan struct{} { return s.link.Done() }
