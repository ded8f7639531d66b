package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/models"
	ws "github.com/tutorlane/liveclass/internal/websocket"
)

// ErrNoSnapshot means no metadata snapshot has arrived yet.
var ErrNoSnapshot = errors.New("no room metadata snapshot received yet")

// RoomLink is the websocket connection to the room runtime. It implements
// both delivery channels: the durable snapshot stream (replayed on join, so
// late joiners are covered) and the ephemeral bus (connected peers only).
type RoomLink struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu           sync.Mutex
	lastMeta     *models.RoomMetadata
	metaHandlers []func(models.RoomMetadata)
	msgHandlers  []func(ControlMessage)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ DurableStateChannel = (*RoomLink)(nil)
	_ EphemeralBus        = (*RoomLink)(nil)
)

// ConnectRoom dials the room runtime with the token from bootstrap and
// starts the listener.
func ConnectRoom(ctx context.Context, roomAddress, token string, log zerolog.Logger) (*RoomLink, error) {
	addr, err := url.Parse(roomAddress)
	if err != nil {
		return nil, err
	}
	query := addr.Query()
	query.Set("token", token)
	addr.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, addr.String(), nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	link := &RoomLink{
		conn: conn,
		log:  log.With().Str("component", "roomlink").Logger(),
		done: make(chan struct{}),
	}
	go link.listen()
	return link, nil
}

// Current returns the latest snapshot. The server replays the snapshot
// immediately after the upgrade, so this is populated shortly after connect.
func (l *RoomLink) Current(ctx context.Context) (models.RoomMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastMeta == nil {
		return models.RoomMetadata{}, ErrNoSnapshot
	}
	return *l.lastMeta, nil
}

// OnChange registers a snapshot handler. Register before updates matter;
// handlers run on the listener goroutine.
func (l *RoomLink) OnChange(handler func(models.RoomMetadata)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metaHandlers = append(l.metaHandlers, handler)
}

// OnMessage registers an ephemeral message handler.
func (l *RoomLink) OnMessage(handler func(ControlMessage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgHandlers = append(l.msgHandlers, handler)
}

// Publish sends a control message to the peers connected right now. No
// retry, no replay.
func (l *RoomLink) Publish(ctx context.Context, msg ControlMessage) error {
	payload, err := EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	frame := ws.RawFrame(ws.FramePublish, payload)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.done:
		return errors.New("room link closed")
	default:
	}
	return l.conn.WriteJSON(frame)
}

// Close disconnects from the room. The caller navigates away afterwards.
func (l *RoomLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
	return nil
}

// Done is closed once the link is down, whether by Close or a read error.
func (l *RoomLink) Done() <-chan struct{} {
	return l.done
}

// listen dispatches inbound frames. A malformed frame or payload is logged
// and skipped; one bad message never disables future handling.
func (l *RoomLink) listen() {
	defer l.Close()

	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.log.Warn().Err(err).Msg("room connection lost")
			}
			return
		}

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			l.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch frame.Type {
		case ws.FrameMetadata:
			l.handleMetadata(frame.Payload)
		case ws.FrameData:
			l.handleData(frame.Payload)
		case ws.FrameParticipantJoined, ws.FrameParticipantLeft:
			// presence frames are informational for now
		default:
			l.log.Debug().Str("type", frame.Type).Msg("ignoring unknown frame type")
		}
	}
}

func (l *RoomLink) handleMetadata(payload json.RawMessage) {
	var meta models.RoomMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		l.log.Warn().Err(err).Msg("dropping malformed metadata snapshot")
		return
	}

	l.mu.Lock()
	l.lastMeta = &meta
	handlers := make([]func(models.RoomMetadata), len(l.metaHandlers))
	copy(handlers, l.metaHandlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h(meta)
	}
}

func (l *RoomLink) handleData(payload json.RawMessage) {
	msg, err := DecodeControlMessage(payload)
	if err != nil {
		l.log.Warn().Err(err).Msg("dropping undecodable control message")
		return
	}

	l.mu.Lock()
	handlers := make([]func(ControlMessage), len(l.msgHandlers))
	copy(handlers, l.msgHandlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
