package controller

import (
	"testing"
	"time"
)

func TestControlMessage_RaiseHandRoundTrip(t *testing.T) {
	data, err := EncodeControlMessage(RaiseHand{ParticipantIdentity: "alice"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raised, ok := msg.(RaiseHand)
	if !ok {
		t.Fatalf("decoded %T, want RaiseHand", msg)
	}
	if raised.ParticipantIdentity != "alice" {
		t.Errorf("identity = %q, want alice", raised.ParticipantIdentity)
	}
}

func TestControlMessage_TimeExtendedRoundTrip(t *testing.T) {
	end := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	data, err := EncodeControlMessage(TimeExtended{NewEndTime: end, MinutesAdded: 15})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ext, ok := msg.(TimeExtended)
	if !ok {
		t.Fatalf("decoded %T, want TimeExtended", msg)
	}
	if !ext.NewEndTime.Equal(end) || ext.MinutesAdded != 15 {
		t.Errorf("decoded %+v, want end %v and 15 minutes", ext, end)
	}
}

func TestControlMessage_UnknownTypeRejected(t *testing.T) {
	if _, err := DecodeControlMessage([]byte(`{"type":"dance","payload":{}}`)); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

// A malformed message must not poison the stream: decoding it fails, and the
// next well-formed message decodes normally.
func TestControlMessage_MalformedThenValid(t *testing.T) {
	if _, err := DecodeControlMessage([]byte(`{"type":"raise_hand","payload":`)); err == nil {
		t.Fatal("expected error for truncated envelope")
	}
	if _, err := DecodeControlMessage([]byte(`{"type":"time_extended","payload":["nope"]}`)); err == nil {
		t.Fatal("expected error for mistyped payload")
	}

	data, err := EncodeControlMessage(RaiseHand{ParticipantIdentity: "bob"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("decode after malformed input: %v", err)
	}
	if _, ok := msg.(RaiseHand); !ok {
		t.Fatalf("decoded %T, want RaiseHand", msg)
	}
}
