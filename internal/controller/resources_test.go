package controller

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

type fakeResourceBackend struct {
	mu        sync.Mutex
	uploadErr error
	removeErr error
	removed   []uuid.UUID
}

func (b *fakeResourceBackend) UploadResource(_ context.Context, title, filename string, file io.Reader) (*models.Resource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	return &models.Resource{
		ID:      uuid.New(),
		Title:   title,
		FileRef: filename,
	}, nil
}

func (b *fakeResourceBackend) RemoveResource(_ context.Context, resourceID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removeErr != nil {
		return b.removeErr
	}
	b.removed = append(b.removed, resourceID)
	return nil
}

func seedResources(n int) []models.Resource {
	out := make([]models.Resource, n)
	for i := range out {
		out[i] = models.Resource{ID: uuid.New(), Title: "existing"}
	}
	return out
}

func TestResources_UploadAppendsOnSuccess(t *testing.T) {
	backend := &fakeResourceBackend{}
	res := NewResources(seedResources(2), true, backend, zerolog.Nop())

	created, err := res.Upload(context.Background(), "slides", "slides.pdf", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	list := res.List()
	if len(list) != 3 {
		t.Fatalf("list length = %d, want 3", len(list))
	}
	if list[2].ID != created.ID {
		t.Error("uploaded resource must append at the end, preserving order")
	}
}

func TestResources_FailedUploadLeavesListUnchanged(t *testing.T) {
	backend := &fakeResourceBackend{uploadErr: errors.New("backend down")}
	res := NewResources(seedResources(2), true, backend, zerolog.Nop())

	if _, err := res.Upload(context.Background(), "slides", "slides.pdf", strings.NewReader("data")); err == nil {
		t.Fatal("expected upload error")
	}
	if got := len(res.List()); got != 2 {
		t.Fatalf("list length = %d after failed upload, want 2", got)
	}
}

func TestResources_RemoveIsSuccessGated(t *testing.T) {
	initial := seedResources(3)
	backend := &fakeResourceBackend{}
	res := NewResources(initial, true, backend, zerolog.Nop())

	if err := res.Remove(context.Background(), initial[1].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	list := res.List()
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	for _, r := range list {
		if r.ID == initial[1].ID {
			t.Error("removed resource still present locally")
		}
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.removed) != 1 || backend.removed[0] != initial[1].ID {
		t.Fatalf("backend removals = %v, want the removed id", backend.removed)
	}
}

func TestResources_FailedRemoveKeepsResource(t *testing.T) {
	initial := seedResources(1)
	backend := &fakeResourceBackend{removeErr: errors.New("backend down")}
	res := NewResources(initial, true, backend, zerolog.Nop())

	if err := res.Remove(context.Background(), initial[0].ID); err == nil {
		t.Fatal("expected remove error")
	}
	if got := len(res.List()); got != 1 {
		t.Fatalf("list length = %d after failed remove, want 1", got)
	}
}

func TestResources_NonHostDenied(t *testing.T) {
	backend := &fakeResourceBackend{}
	res := NewResources(seedResources(1), false, backend, zerolog.Nop())

	if _, err := res.Upload(context.Background(), "x", "x.pdf", strings.NewReader("d")); !errors.Is(err, ErrNotHost) {
		t.Fatalf("upload: expected ErrNotHost, got %v", err)
	}
	if err := res.Remove(context.Background(), res.List()[0].ID); !errors.Is(err, ErrNotHost) {
		t.Fatalf("remove: expected ErrNotHost, got %v", err)
	}
}

func TestResources_ListReturnsCopy(t *testing.T) {
	res := NewResources(seedResources(2), true, &fakeResourceBackend{}, zerolog.Nop())

	list := res.List()
	list[0].Title = "mutated"
	if res.List()[0].Title == "mutated" {
		t.Error("List must return a copy, not the internal slice")
	}
}
