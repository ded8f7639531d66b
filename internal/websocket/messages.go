package websocket

import "encoding/json"

// Frame is the envelope for all websocket traffic, both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Server -> client frame types.
const (
	FrameMetadata          = "metadata"           // full RoomMetadata snapshot
	FrameData              = "data"               // ephemeral payload from another participant
	FrameParticipantJoined = "participant_joined" // presence, delivered to the host
	FrameParticipantLeft   = "participant_left"
)

// Client -> server frame types.
const (
	// FramePublish carries an opaque payload to relay to the other
	// connected participants. The server never inspects it and never
	// stores it: a peer that joins after the publish will not see it.
	FramePublish = "publish"
)

// PresencePayload identifies the participant behind a presence frame.
type PresencePayload struct {
	Identity string `json:"identity"`
	IsHost   bool   `json:"is_host"`
}

// NewFrame marshals a payload into an envelope. Marshal errors are
// programming errors on our own types, surfaced to the caller.
func NewFrame(frameType string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Payload: data}, nil
}

// RawFrame wraps an already-encoded payload without re-marshaling it.
func RawFrame(frameType string, payload json.RawMessage) *Frame {
	return &Frame{Type: frameType, Payload: payload}
}
