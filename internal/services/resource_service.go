package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
)

// ResourceWriter is the full resource persistence surface, upload and
// removal both success-gated against the database.
type ResourceWriter interface {
	Create(ctx context.Context, resource *models.Resource) error
	ListByLessonID(ctx context.Context, lessonID uuid.UUID) ([]models.Resource, error)
	Delete(ctx context.Context, lessonID, resourceID uuid.UUID) error
}

type ResourceService struct {
	repo ResourceWriter
	dir  string
	log  zerolog.Logger
}

func NewResourceService(repo ResourceWriter, dir string, log zerolog.Logger) *ResourceService {
	return &ResourceService{
		repo: repo,
		dir:  dir,
		log:  log.With().Str("component", "resource-service").Logger(),
	}
}

// Upload stores the file, then the row. Nothing is visible to anyone until
// both succeed; there is no optimistic insert to roll back.
func (s *ResourceService) Upload(ctx context.Context, lessonID, uploadedBy uuid.UUID, isHost bool, title, filename string, file io.Reader) (*models.Resource, error) {
	if !isHost {
		return nil, ErrNotHost
	}

	id := uuid.New()
	fileRef := fmt.Sprintf("%s/%s%s", lessonID, id, filepath.Ext(filename))

	if err := s.writeFile(fileRef, file); err != nil {
		return nil, fmt.Errorf("storing resource file: %w", err)
	}

	resource := &models.Resource{
		ID:         id,
		LessonID:   lessonID,
		Title:      title,
		FileRef:    fileRef,
		UploadedBy: uploadedBy,
	}

	if err := s.repo.Create(ctx, resource); err != nil {
		// The row is the source of truth; an orphaned file is only disk.
		if rmErr := os.Remove(filepath.Join(s.dir, filepath.FromSlash(fileRef))); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("file_ref", fileRef).Msg("could not clean up orphaned upload")
		}
		return nil, err
	}

	s.log.Info().
		Str("lesson", lessonID.String()).
		Str("resource", id.String()).
		Str("title", title).
		Msg("resource uploaded")
	return resource, nil
}

// Remove deletes the row first, so every future bootstrap converges, then
// the file. Removal used to be a client-local mutation only; persisting it
// is what makes all participants converge.
func (s *ResourceService) Remove(ctx context.Context, lessonID, resourceID uuid.UUID, isHost bool) error {
	if !isHost {
		return ErrNotHost
	}

	resources, err := s.repo.ListByLessonID(ctx, lessonID)
	if err != nil {
		return err
	}
	var fileRef string
	for _, res := range resources {
		if res.ID == resourceID {
			fileRef = res.FileRef
			break
		}
	}

	if err := s.repo.Delete(ctx, lessonID, resourceID); err != nil {
		return err
	}

	if fileRef != "" {
		if err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(fileRef))); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file_ref", fileRef).Msg("resource row deleted but file removal failed")
		}
	}

	s.log.Info().
		Str("lesson", lessonID.String()).
		Str("resource", resourceID.String()).
		Msg("resource removed")
	return nil
}

// List returns the session's resources in upload order.
func (s *ResourceService) List(ctx context.Context, lessonID uuid.UUID) ([]models.Resource, error) {
	return s.repo.ListByLessonID(ctx, lessonID)
}

// Open returns the stored file for download.
func (s *ResourceService) Open(fileRef string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, filepath.FromSlash(fileRef)))
}

func (s *ResourceService) writeFile(fileRef string, src io.Reader) error {
	path := filepath.Join(s.dir, filepath.FromSlash(fileRef))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return dst.Close()
}
