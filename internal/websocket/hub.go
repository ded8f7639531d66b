package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client represents one connected participant.
type Client struct {
	ID       uuid.UUID
	LessonID uuid.UUID
	UserID   uuid.UUID
	Identity string
	IsHost   bool // from the room token minted at bootstrap
	Conn     *websocket.Conn
	Send     chan []byte
	Done     chan struct{}

	closeOnce sync.Once
}

// Close shuts the client down exactly once. Send is left open; the write
// pump exits through Done, and senders check IsConnected first.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		c.Conn.Close()
	})
}

// IsConnected reports whether the client is still attached.
func (c *Client) IsConnected() bool {
	select {
	case <-c.Done:
		return false
	default:
		return true
	}
}

// Room holds the single host connection plus the participant map for one
// lesson.
type Room struct {
	LessonID uuid.UUID

	mu           sync.RWMutex
	host         *Client
	participants map[uuid.UUID]*Client
	log          zerolog.Logger
}

// Hub manages all active rooms, keyed by lesson.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]*Room),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

func newRoom(lessonID uuid.UUID, log zerolog.Logger) *Room {
	return &Room{
		LessonID:     lessonID,
		participants: make(map[uuid.UUID]*Client),
		log:          log.With().Str("lesson", lessonID.String()).Logger(),
	}
}

// AddClient attaches a client to its room, creating the room on first join.
// A duplicate connection for the same seat closes the old one first.
func (h *Hub) AddClient(client *Client) *Room {
	h.mu.Lock()
	room, exists := h.rooms[client.LessonID]
	if !exists {
		room = newRoom(client.LessonID, h.log)
		h.rooms[client.LessonID] = room
	}
	h.mu.Unlock()

	room.mu.Lock()
	if client.IsHost {
		if room.host != nil && room.host.ID != client.ID {
			h.log.Info().Str("lesson", client.LessonID.String()).Msg("closing duplicate host connection")
			room.host.Close()
		}
		room.host = client
	} else {
		if prev, ok := room.participants[client.UserID]; ok && prev.ID != client.ID {
			h.log.Info().Str("lesson", client.LessonID.String()).Str("user", client.UserID.String()).
				Msg("closing duplicate participant connection")
			prev.Close()
		}
		room.participants[client.UserID] = client
	}
	room.mu.Unlock()

	return room
}

// RemoveClient detaches a client; the room is dropped once empty.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[client.LessonID]
	if !exists {
		return
	}

	room.mu.Lock()
	if client.IsHost {
		if room.host != nil && room.host.ID == client.ID {
			room.host = nil
		}
	} else if prev, ok := room.participants[client.UserID]; ok && prev.ID == client.ID {
		delete(room.participants, client.UserID)
	}
	empty := room.host == nil && len(room.participants) == 0
	room.mu.Unlock()

	if empty {
		delete(h.rooms, client.LessonID)
	}
}

// GetRoom returns the room for a lesson, or nil.
func (h *Hub) GetRoom(lessonID uuid.UUID) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[lessonID]
}

// BroadcastMetadata pushes a full snapshot frame to every connected client in
// the lesson's room, the writer included. This is the only path lock and
// end-time changes reach clients on, so the host converges through the same
// code as everyone else.
func (h *Hub) BroadcastMetadata(lessonID uuid.UUID, snapshot interface{}) {
	room := h.GetRoom(lessonID)
	if room == nil {
		return
	}

	frame, err := NewFrame(FrameMetadata, snapshot)
	if err != nil {
		h.log.Error().Err(err).Msg("encoding metadata frame")
		return
	}
	room.BroadcastFrame(frame)
}

func (r *Room) snapshotClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.participants)+1)
	if r.host != nil {
		clients = append(clients, r.host)
	}
	for _, c := range r.participants {
		clients = append(clients, c)
	}
	return clients
}

// BroadcastFrame delivers a frame to every connected client.
func (r *Room) BroadcastFrame(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, c := range r.snapshotClients() {
		r.deliver(c, data)
	}
}

// RelayData delivers an ephemeral payload to every client currently
// connected except the sender. It is never stored: at-most-once, no replay
// for late joiners.
func (r *Room) RelayData(sender *Client, payload json.RawMessage) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	frame := RawFrame(FrameData, payload)
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	for _, c := range r.snapshotClients() {
		if c.ID == sender.ID {
			continue
		}
		r.deliver(c, data)
	}
	return nil
}

// NotifyHost sends a frame to the host connection only.
func (r *Room) NotifyHost(frame *Frame) {
	r.mu.RLock()
	host := r.host
	r.mu.RUnlock()

	if host == nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	r.deliver(host, data)
}

// deliver drops the message rather than block a slow consumer.
func (r *Room) deliver(c *Client, data []byte) {
	if err := c.SendMessage(data); err != nil {
		r.log.Debug().Err(err).Str("identity", c.Identity).Msg("dropping frame")
	}
}

// SendMessage queues data for the write pump without blocking.
func (c *Client) SendMessage(data []byte) error {
	if !c.IsConnected() {
		return ErrClientGone
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBlocked
	}
}
