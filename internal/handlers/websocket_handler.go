package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/middlewares"
	"github.com/tutorlane/liveclass/internal/roomstate"
	ws "github.com/tutorlane/liveclass/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced at the CORS layer
	},
}

type WebSocketHandler struct {
	hub   *ws.Hub
	store *roomstate.Store
	log   zerolog.Logger
}

func NewWebSocketHandler(hub *ws.Hub, store *roomstate.Store, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		store: store,
		log:   log.With().Str("component", "ws-handler").Logger(),
	}
}

// HandleWebSocket is the room endpoint. MUST be behind RoomAuthMiddleware;
// the upgrade only happens for an authenticated room token.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	auth, err := middlewares.GetRoomAuth(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &ws.Client{
		ID:       uuid.New(),
		LessonID: auth.LessonID,
		UserID:   auth.UserID,
		Identity: auth.Identity,
		IsHost:   auth.IsHost,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Done:     make(chan struct{}),
	}

	room := h.hub.AddClient(client)

	h.log.Info().
		Str("lesson", auth.LessonID.String()).
		Str("identity", auth.Identity).
		Bool("is_host", auth.IsHost).
		Msg("client connected")

	h.sendInitialSnapshot(c, client)

	if !client.IsHost {
		if frame, err := ws.NewFrame(ws.FrameParticipantJoined, ws.PresencePayload{
			Identity: client.Identity,
		}); err == nil {
			room.NotifyHost(frame)
		}
	}

	go h.readPump(client, room)
	go h.writePump(client)
}

// sendInitialSnapshot delivers the current durable state to a (possibly
// late) joiner before any live updates arrive.
func (h *WebSocketHandler) sendInitialSnapshot(c *gin.Context, client *ws.Client) {
	meta, err := h.store.Snapshot(c.Request.Context(), client.LessonID)
	if err != nil {
		h.log.Warn().Err(err).Str("lesson", client.LessonID.String()).Msg("no metadata snapshot at join")
		return
	}

	frame, err := ws.NewFrame(ws.FrameMetadata, meta)
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := client.SendMessage(data); err != nil {
		h.log.Warn().Err(err).Str("lesson", client.LessonID.String()).Msg("could not queue initial snapshot")
	}
}

func (h *WebSocketHandler) readPump(client *ws.Client, room *ws.Room) {
	defer func() {
		h.hub.RemoveClient(client)
		if !client.IsHost {
			if frame, err := ws.NewFrame(ws.FrameParticipantLeft, ws.PresencePayload{
				Identity: client.Identity,
			}); err == nil {
				room.NotifyHost(frame)
			}
		}
		client.Close()
		h.log.Info().
			Str("lesson", client.LessonID.String()).
			Str("identity", client.Identity).
			Msg("client disconnected")
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		// One bad frame must never stop the loop.
		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.log.Warn().Err(err).Str("identity", client.Identity).Msg("dropping malformed frame")
			continue
		}

		switch frame.Type {
		case ws.FramePublish:
			if err := room.RelayData(client, frame.Payload); err != nil {
				h.log.Warn().Err(err).Str("identity", client.Identity).Msg("dropping publish")
			}

		default:
			h.log.Warn().Str("type", frame.Type).Msg("unknown frame type")
		}
	}
}

func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Warn().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done:
			return
		}
	}
}
