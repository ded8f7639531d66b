package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorlane/liveclass/internal/handlers"
	"github.com/tutorlane/liveclass/internal/middlewares"
	"github.com/tutorlane/liveclass/internal/repositories"
)

// RegisterEndpoints wires the control-plane surface.
//
// Join is gated by the platform access token; everything after join is gated
// by the room token minted at bootstrap, which carries the host capability.
func RegisterEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	webSocketHandler *handlers.WebSocketHandler,
	sessionRepo *repositories.LiveSessionRepository,
	jwtSecret string,
) {
	api := router.Group("/api")

	platformAuth := middlewares.AuthMiddleware(jwtSecret)
	roomAuth := middlewares.RoomAuthMiddleware(jwtSecret, sessionRepo)

	api.GET("/sessions/:lessonID/join", platformAuth, sessionHandler.Join)

	session := api.Group("/sessions/:lessonID", roomAuth)
	session.POST("/lock", sessionHandler.Lock)
	session.POST("/extend", sessionHandler.Extend)
	session.GET("/resources", sessionHandler.ListResources)
	session.POST("/resources", sessionHandler.UploadResource)
	session.GET("/resources/:resourceID/download", sessionHandler.DownloadResource)
	session.DELETE("/resources/:resourceID", sessionHandler.RemoveResource)

	// Room runtime endpoint; token arrives as a query parameter because
	// browsers cannot set headers on websocket upgrades.
	api.GET("/ws/session", roomAuth, webSocketHandler.HandleWebSocket)
}
