package roomstate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

var ErrSnapshotNotFound = errors.New("room metadata snapshot not found")

const (
	metaKeyPrefix = "room:meta:"
	notifyChannel = "room:notify"
)

// Store holds one full RoomMetadata snapshot per room. Writes replace the
// snapshot and publish it on a redis channel so every server instance can
// fan the change out to its connected clients, the writer's own included.
type Store struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewStore(client *redis.Client, log zerolog.Logger) *Store {
	return &Store{
		client: client,
		log:    log.With().Str("component", "roomstate").Logger(),
	}
}

// Snapshot reads the current metadata for a room. Late joiners call this, so
// the durable channel has no delivery gap.
func (s *Store) Snapshot(ctx context.Context, lessonID uuid.UUID) (*models.RoomMetadata, error) {
	data, err := s.client.Get(ctx, metaKeyPrefix+lessonID.String()).Result()
	if err == redis.Nil {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	var meta models.RoomMetadata
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Write replaces the snapshot and notifies subscribers.
func (s *Store) Write(ctx context.Context, meta *models.RoomMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, metaKeyPrefix+meta.LessonID.String(), data, 0).Err(); err != nil {
		return err
	}

	return s.client.Publish(ctx, notifyChannel, data).Err()
}

// Subscribe delivers every snapshot written to any room until ctx is
// cancelled. Malformed payloads are logged and skipped; one bad message must
// not stop the loop.
func (s *Store) Subscribe(ctx context.Context, handler func(models.RoomMetadata)) {
	sub := s.client.Subscribe(ctx, notifyChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var meta models.RoomMetadata
				if err := json.Unmarshal([]byte(msg.Payload), &meta); err != nil {
					s.log.Warn().Err(err).Msg("dropping malformed metadata notification")
					continue
				}
				handler(meta)
			}
		}
	}()
}
