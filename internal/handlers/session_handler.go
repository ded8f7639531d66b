package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/dtos"
	"github.com/tutorlane/liveclass/internal/models"
	"github.com/tutorlane/liveclass/internal/middlewares"
	"github.com/tutorlane/liveclass/internal/repositories"
	"github.com/tutorlane/liveclass/internal/services"
)

type SessionHandler struct {
	sessionService  *services.SessionService
	resourceService *services.ResourceService
	log             zerolog.Logger
}

func NewSessionHandler(sessionService *services.SessionService, resourceService *services.ResourceService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService:  sessionService,
		resourceService: resourceService,
		log:             log.With().Str("component", "session-handler").Logger(),
	}
}

// Join handles GET /api/sessions/:lessonID/join
func (h *SessionHandler) Join(c *gin.Context) {
	lessonID, ok := lessonParam(c)
	if !ok {
		return
	}

	userID, ok := c.MustGet(middlewares.ContextUserID).(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user context"})
		return
	}
	identity := c.GetString(middlewares.ContextUserName)

	resp, err := h.sessionService.Bootstrap(c.Request.Context(), lessonID, userID, identity)
	if err != nil {
		var gate *dtos.WaitGate
		switch {
		case errors.As(err, &gate):
			c.JSON(http.StatusForbidden, dtos.WaitGateBody{
				Error:   dtos.ErrorTooEarly,
				Message: gate.Message,
				OpenAt:  gate.OpenAt,
			})
		case errors.Is(err, services.ErrSessionEnded):
			c.JSON(http.StatusGone, gin.H{"error": "session has ended"})
		case errors.Is(err, repositories.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			h.log.Error().Err(err).Str("lesson", lessonID.String()).Msg("join failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join session"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Lock handles POST /api/sessions/:lessonID/lock
func (h *SessionHandler) Lock(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	var req dtos.LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindError(err)})
		return
	}

	err := h.sessionService.ToggleLock(c.Request.Context(), auth.LessonID, auth.IsHost, req.Target, req.Locked)
	if err != nil {
		if errors.Is(err, services.ErrNotHost) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("lock update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update lock"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Extend handles POST /api/sessions/:lessonID/extend
func (h *SessionHandler) Extend(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	var req dtos.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindError(err)})
		return
	}

	newEnd, err := h.sessionService.Extend(c.Request.Context(), auth.LessonID, auth.IsHost, req.Minutes)
	if err != nil {
		if errors.Is(err, services.ErrNotHost) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("extension failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not extend session"})
		return
	}

	c.JSON(http.StatusOK, dtos.ExtendResponse{NewEndTime: newEnd})
}

// UploadResource handles POST /api/sessions/:lessonID/resources (multipart)
func (h *SessionHandler) UploadResource(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	resource, err := h.resourceService.Upload(
		c.Request.Context(), auth.LessonID, auth.UserID, auth.IsHost,
		title, fileHeader.Filename, file,
	)
	if err != nil {
		if errors.Is(err, services.ErrNotHost) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("resource upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not upload resource"})
		return
	}

	c.JSON(http.StatusCreated, resource)
}

// RemoveResource handles DELETE /api/sessions/:lessonID/resources/:resourceID
func (h *SessionHandler) RemoveResource(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	resourceID, err := uuid.Parse(c.Param("resourceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
		return
	}

	err = h.resourceService.Remove(c.Request.Context(), auth.LessonID, resourceID, auth.IsHost)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotHost):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrResourceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		default:
			h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("resource removal failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove resource"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// DownloadResource handles GET /api/sessions/:lessonID/resources/:resourceID/download
func (h *SessionHandler) DownloadResource(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	resourceID, err := uuid.Parse(c.Param("resourceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
		return
	}

	resources, err := h.resourceService.List(c.Request.Context(), auth.LessonID)
	if err != nil {
		h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("resource lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read resource"})
		return
	}

	var target *models.Resource
	for i := range resources {
		if resources[i].ID == resourceID {
			target = &resources[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}

	file, err := h.resourceService.Open(target.FileRef)
	if err != nil {
		h.log.Error().Err(err).Str("file_ref", target.FileRef).Msg("resource file missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read resource"})
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", target.Title))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		h.log.Warn().Err(err).Str("resource", resourceID.String()).Msg("download interrupted")
	}
}

// ListResources handles GET /api/sessions/:lessonID/resources
func (h *SessionHandler) ListResources(c *gin.Context) {
	auth, ok := roomAuth(c)
	if !ok {
		return
	}

	resources, err := h.resourceService.List(c.Request.Context(), auth.LessonID)
	if err != nil {
		h.log.Error().Err(err).Str("lesson", auth.LessonID.String()).Msg("resource listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list resources"})
		return
	}

	c.JSON(http.StatusOK, resources)
}

// bindError flattens validation failures into a field-level message instead
// of leaking the raw struct path to the client.
func bindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func lessonParam(c *gin.Context) (uuid.UUID, bool) {
	lessonID, err := uuid.Parse(c.Param("lessonID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return uuid.Nil, false
	}
	return lessonID, true
}

func roomAuth(c *gin.Context) (*middlewares.RoomAuthContext, bool) {
	auth, err := middlewares.GetRoomAuth(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	return auth, true
}
