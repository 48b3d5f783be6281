package event

import (
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

// MessagePayload is the wire shape of a single chat message. Timestamp is
// deliberately untyped: the backend has emitted epoch seconds, epoch millis,
// numeric strings and ISO strings at different times, and legacy partners
// still do. Decoding always goes through model.NormalizeTimestamp.
type MessagePayload struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	Sender    string `json:"sender"`
	SenderID  string `json:"senderId,omitempty"`
	Body      string `json:"body"`
	Timestamp any    `json:"timestamp"`
}

// Message converts the payload into the normalized domain form. An envelope
// room id takes precedence over the payload's own, which some backends omit.
func (p MessagePayload) Message(roomID string) model.Message {
	room := p.RoomID
	if roomID != "" {
		room = roomID
	}
	sender := model.Party(p.Sender)
	if !sender.Valid() {
		sender = model.PartyPartner
	}
	return model.Message{
		ID:              p.ID,
		ConversationKey: model.ConversationKey(room),
		Sender:          sender,
		Body:            p.Body,
		TimestampMillis: model.NormalizeTimestamp(p.Timestamp),
	}
}

// HistoryBatchPayload carries the durable log for one room, pushed by the
// server right after a join.
type HistoryBatchPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []MessagePayload `json:"messages"`
}

// TypingPayload signals a start or stop of typing by one party in a room.
type TypingPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
	Party  string `json:"party"`
}

// JoinPayload registers interest in a room's events.
type JoinPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	PeerID string `json:"peerId,omitempty"`
}

// SendPayload asks the server to persist and fan out a message. The
// authoritative copy, with server-assigned id and timestamp, comes back as a
// message:new event; the client never locally appends what it sent.
type SendPayload struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
}
