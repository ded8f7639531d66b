package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/dtos"
	"github.com/tutorlane/liveclass/internal/models"
	"github.com/tutorlane/liveclass/internal/roomstate"
	"github.com/tutorlane/liveclass/internal/tokens"
)

var (
	ErrNotHost      = errors.New("only the session host may perform this operation")
	ErrSessionEnded = errors.New("session has ended")
)

// SessionRepo is the slice of the live-session repository the service needs.
type SessionRepo interface {
	GetByLessonID(ctx context.Context, lessonID uuid.UUID) (*models.LiveSession, error)
	SetLock(ctx context.Context, lessonID uuid.UUID, target string, locked bool) error
	ExtendEndTime(ctx context.Context, lessonID uuid.UUID, minutes int) (*models.LiveSession, error)
	UpdateStatus(ctx context.Context, lessonID uuid.UUID, status models.LiveSessionStatus) error
}

// ResourceRepo is the resource persistence surface.
type ResourceRepo interface {
	ListByLessonID(ctx context.Context, lessonID uuid.UUID) ([]models.Resource, error)
}

// MetadataStore is the durable room state store. Writing a snapshot is what
// fans lock and end-time changes out to connected clients.
type MetadataStore interface {
	Snapshot(ctx context.Context, lessonID uuid.UUID) (*models.RoomMetadata, error)
	Write(ctx context.Context, meta *models.RoomMetadata) error
}

type SessionConfig struct {
	JWTSecret       string
	RoomAddress     string
	JoinEarlyBuffer time.Duration
	RoomTokenTTL    time.Duration
}

type SessionService struct {
	sessions  SessionRepo
	resources ResourceRepo
	store     MetadataStore
	cfg       SessionConfig
	log       zerolog.Logger

	// now is swappable for the admission-window tests
	now func() time.Time
}

func NewSessionService(sessions SessionRepo, resources ResourceRepo, store MetadataStore, cfg SessionConfig, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions:  sessions,
		resources: resources,
		store:     store,
		cfg:       cfg,
		log:       log.With().Str("component", "session-service").Logger(),
		now:       time.Now,
	}
}

// Bootstrap resolves a join request into a connectable session or a
// structured denial. It performs no writes beyond lazily seeding the room
// metadata snapshot, so re-invoking it is always safe.
func (s *SessionService) Bootstrap(ctx context.Context, lessonID, userID uuid.UUID, identity string) (*dtos.JoinResponse, error) {
	session, err := s.sessions.GetByLessonID(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	openAt := session.ScheduledStart.Add(-s.cfg.JoinEarlyBuffer)

	if now.Before(openAt) {
		return nil, &dtos.WaitGate{
			Message: fmt.Sprintf("this session opens at %s", openAt.Format(time.RFC3339)),
			OpenAt:  openAt,
		}
	}

	if !now.Before(session.EffectiveEndTime) {
		return nil, ErrSessionEnded
	}

	isHost := session.HostUserID == userID

	if err := s.ensureSnapshot(ctx, session); err != nil {
		return nil, fmt.Errorf("seeding room metadata: %w", err)
	}

	// First admitted join flips the session live.
	if session.Status == models.LiveSessionStatusScheduled {
		if err := s.sessions.UpdateStatus(ctx, lessonID, models.LiveSessionStatusActive); err != nil {
			s.log.Warn().Err(err).Str("lesson", lessonID.String()).Msg("could not mark session active")
		}
	}

	token, err := tokens.MintRoomToken(s.cfg.JWTSecret, userID, lessonID, identity, isHost, s.cfg.RoomTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting room token: %w", err)
	}

	resources, err := s.resources.ListByLessonID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	s.log.Info().
		Str("lesson", lessonID.String()).
		Str("user", userID.String()).
		Bool("is_host", isHost).
		Msg("join admitted")

	return &dtos.JoinResponse{
		Token:            token,
		RoomAddress:      s.cfg.RoomAddress,
		IsHost:           isHost,
		EffectiveEndTime: session.EffectiveEndTime,
		Resources:        resources,
	}, nil
}

// ToggleLock persists a lock flag, then writes the new full snapshot to the
// metadata store. The store notification is what propagates the change to
// every participant, the caller included; there is no direct reply path.
func (s *SessionService) ToggleLock(ctx context.Context, lessonID uuid.UUID, isHost bool, target string, locked bool) error {
	if !isHost {
		return ErrNotHost
	}

	if err := s.sessions.SetLock(ctx, lessonID, target, locked); err != nil {
		return err
	}

	session, err := s.sessions.GetByLessonID(ctx, lessonID)
	if err != nil {
		return err
	}

	if err := s.store.Write(ctx, snapshotOf(session, s.now())); err != nil {
		return fmt.Errorf("writing room metadata: %w", err)
	}

	s.log.Info().
		Str("lesson", lessonID.String()).
		Str("target", target).
		Bool("locked", locked).
		Msg("lock state persisted")
	return nil
}

// Extend pushes the effective end forward by exactly minutes from its
// pre-call value and returns the new end. The snapshot write carries the new
// end to connected clients on the durable path; reconnecting clients learn
// it from their next bootstrap.
func (s *SessionService) Extend(ctx context.Context, lessonID uuid.UUID, isHost bool, minutes int) (time.Time, error) {
	if !isHost {
		return time.Time{}, ErrNotHost
	}
	if minutes <= 0 {
		minutes = dtos.DefaultExtendMinutes
	}

	session, err := s.sessions.ExtendEndTime(ctx, lessonID, minutes)
	if err != nil {
		return time.Time{}, err
	}

	if err := s.store.Write(ctx, snapshotOf(session, s.now())); err != nil {
		return time.Time{}, fmt.Errorf("writing room metadata: %w", err)
	}

	s.log.Info().
		Str("lesson", lessonID.String()).
		Int("minutes", minutes).
		Time("new_end", session.EffectiveEndTime).
		Msg("session extended")
	return session.EffectiveEndTime, nil
}

// ensureSnapshot seeds the metadata store on first join so late joiners
// always have a snapshot to read.
func (s *SessionService) ensureSnapshot(ctx context.Context, session *models.LiveSession) error {
	_, err := s.store.Snapshot(ctx, session.LessonID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, roomstate.ErrSnapshotNotFound) {
		return err
	}
	return s.store.Write(ctx, snapshotOf(session, s.now()))
}

func snapshotOf(session *models.LiveSession, now time.Time) *models.RoomMetadata {
	return &models.RoomMetadata{
		LessonID:         session.LessonID,
		MicLocked:        session.MicLocked,
		CameraLocked:     session.CameraLocked,
		EffectiveEndTime: session.EffectiveEndTime,
		UpdatedAt:        now,
	}
}
