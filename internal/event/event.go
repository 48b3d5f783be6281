package event

import "encoding/json"

// Server to client event kinds.
const (
	EventMessageNew   = "message:new"
	EventHistoryBatch = "history:batch"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
)

// Client to server event kinds.
const (
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
)

// Envelope is the wire frame for every realtime event. RoomID carries the
// request/offer id the event belongs to; Payload is decoded per Event kind.
type Envelope struct {
	Event   string          `json:"event"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal errors are
// impossible for the payload structs in this package, so they are swallowed
// into an empty payload.
func NewEnvelope(kind, roomID string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return Envelope{Event: kind, RoomID: roomID, Payload: raw}
}
