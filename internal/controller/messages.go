package controller

import (
	"encoding/json"
	"fmt"
	"time"
)

// Control message types carried on the ephemeral bus.
const (
	MsgRaiseHand    = "raise_hand"
	MsgTimeExtended = "time_extended"
)

// ControlMessage is the tagged union of ephemeral session events. These are
// delivered at most once, to peers connected at send time only; the durable
// backend value remains the source of truth for anyone who missed one.
type ControlMessage interface {
	controlType() string
}

// RaiseHand signals a participant requesting attention.
type RaiseHand struct {
	ParticipantIdentity string `json:"participant_identity"`
}

func (RaiseHand) controlType() string { return MsgRaiseHand }

// TimeExtended tells connected peers the session end moved, so they can
// update their countdown without polling.
type TimeExtended struct {
	NewEndTime   time.Time `json:"new_end_time"`
	MinutesAdded int       `json:"minutes_added"`
}

func (TimeExtended) controlType() string { return MsgTimeExtended }

type messageEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeControlMessage wraps a message in the wire envelope.
func EncodeControlMessage(msg ControlMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageEnvelope{Type: msg.controlType(), Payload: payload})
}

// DecodeControlMessage parses a wire payload back into the union. Unknown
// types and malformed payloads return an error; callers log and drop them
// without stopping the listener.
func DecodeControlMessage(data []byte) (ControlMessage, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed control envelope: %w", err)
	}

	switch env.Type {
	case MsgRaiseHand:
		var msg RaiseHand
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("malformed raise_hand payload: %w", err)
		}
		return msg, nil
	case MsgTimeExtended:
		var msg TimeExtended
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("malformed time_extended payload: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown control message type %q", env.Type)
	}
}
