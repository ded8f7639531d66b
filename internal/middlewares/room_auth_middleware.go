package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tutorlane/liveclass/internal/models"
	"github.com/tutorlane/liveclass/internal/repositories"
	"github.com/tutorlane/liveclass/internal/tokens"
)

type roomAuthKey struct{}

// RoomAuthContext holds the authenticated room-token data for a request.
// IsHost comes from the token minted at bootstrap and is cross-checked
// against the session row; the client request itself is never trusted.
type RoomAuthContext struct {
	UserID   uuid.UUID
	LessonID uuid.UUID
	Identity string
	IsHost   bool
	Session  *models.LiveSession
}

// RoomAuthMiddleware authenticates requests carrying a room token, either as
// a bearer header (REST control calls) or a query parameter (websocket
// upgrade, where browsers cannot set headers). Must run before the upgrade.
func RoomAuthMiddleware(jwtSecret string, sessionRepo *repositories.LiveSessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "room token required",
			})
			return
		}

		claims, err := tokens.ParseRoomToken(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired room token",
			})
			return
		}

		// When the route names a lesson it must match the token's lesson.
		if lessonParam := c.Param("lessonID"); lessonParam != "" {
			lessonID, err := uuid.Parse(lessonParam)
			if err != nil || lessonID != claims.LessonID {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "token not valid for this session",
				})
				return
			}
		}

		session, err := sessionRepo.GetByLessonID(c.Request.Context(), claims.LessonID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "session not found"})
			return
		}

		// A token claiming host for a session this user does not own is
		// rejected outright, even if the signature checks out.
		if claims.IsHost && session.HostUserID != claims.UserID {
			log.Warn().
				Str("lesson", claims.LessonID.String()).
				Str("user", claims.UserID.String()).
				Msg("host claim does not match session owner")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "not authorized as host for this session",
			})
			return
		}

		authCtx := &RoomAuthContext{
			UserID:   claims.UserID,
			LessonID: claims.LessonID,
			Identity: claims.Identity,
			IsHost:   claims.IsHost,
			Session:  session,
		}

		ctx := context.WithValue(c.Request.Context(), roomAuthKey{}, authCtx)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRoomAuth retrieves the room authentication context from a request.
func GetRoomAuth(c *gin.Context) (*RoomAuthContext, error) {
	val := c.Request.Context().Value(roomAuthKey{})
	if val == nil {
		return nil, errors.New("room authentication context not found")
	}

	auth, ok := val.(*RoomAuthContext)
	if !ok {
		return nil, errors.New("invalid room authentication context type")
	}

	return auth, nil
}
