package controller

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

// ResourceBackend is the persistence surface for shared files. Both
// directions are success-gated: the local list changes only after the
// backend confirms, so there is never an optimistic entry to unwind.
type ResourceBackend interface {
	UploadResource(ctx context.Context, title, filename string, file io.Reader) (*models.Resource, error)
	RemoveResource(ctx context.Context, resourceID uuid.UUID) error
}

// Resources maintains the host's ordered list of shared files. The initial
// list comes from bootstrap; uploads append, removals delete, and since
// uploads are host-only there is no concurrent writer to reconcile with.
type Resources struct {
	mu      sync.Mutex
	backend ResourceBackend
	isHost  bool
	log     zerolog.Logger

	list []models.Resource
}

func NewResources(initial []models.Resource, isHost bool, backend ResourceBackend, log zerolog.Logger) *Resources {
	list := make([]models.Resource, len(initial))
	copy(list, initial)
	return &Resources{
		backend: backend,
		isHost:  isHost,
		log:     log.With().Str("component", "resources").Logger(),
		list:    list,
	}
}

// List returns a copy of the current list in upload order.
func (r *Resources) List() []models.Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Resource, len(r.list))
	copy(out, r.list)
	return out
}

// Upload sends the file to the backend and appends the created resource on
// success. On failure the list is untouched.
func (r *Resources) Upload(ctx context.Context, title, filename string, file io.Reader) (*models.Resource, error) {
	if !r.isHost {
		return nil, ErrNotHost
	}

	created, err := r.backend.UploadResource(ctx, title, filename, file)
	if err != nil {
		return nil, fmt.Errorf("uploading resource: %w", err)
	}

	r.mu.Lock()
	r.list = append(r.list, *created)
	r.mu.Unlock()

	r.log.Info().Str("resource", created.ID.String()).Str("title", created.Title).Msg("resource uploaded")
	return created, nil
}

// Remove deletes the resource on the backend, then drops it locally. Every
// participant and future joiner converges on the next refresh, the same way
// uploads do; removal is not a client-local hide.
func (r *Resources) Remove(ctx context.Context, resourceID uuid.UUID) error {
	if !r.isHost {
		return ErrNotHost
	}

	if err := r.backend.RemoveResource(ctx, resourceID); err != nil {
		return fmt.Errorf("removing resource: %w", err)
	}

	r.mu.Lock()
	for i, res := range r.list {
		if res.ID == resourceID {
			r.list = append(r.list[:i], r.list[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.log.Info().Str("resource", resourceID.String()).Msg("resource removed")
	return nil
}
