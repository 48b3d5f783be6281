package model

import "time"

// TypingState is ephemeral per-party presence for one conversation. It is
// mutated only by local debounce timers or remote start/stop events and
// expires on its own when no refresh arrives, which covers stop events lost
// to a dropped connection.
type TypingState struct {
	ConversationKey ConversationKey `json:"conversationKey"`
	Party           Party           `json:"party"`
	IsTyping        bool            `json:"isTyping"`
	ExpiresAtMillis int64           `json:"expiresAtMillis"`
}

// Expired reports whether the state should read as not-typing at the given
// instant.
func (t TypingState) Expired(now time.Time) bool {
	return t.ExpiresAtMillis > 0 && now.UnixMilli() >= t.ExpiresAtMillis
}

// ThreadSnapshot is the read-only projection screens subscribe to. Messages
// is a copy; mutating it never touches the store.
type ThreadSnapshot struct {
	ConversationKey ConversationKey
	Messages        []Message
	Typing          map[Party]TypingState
	IsHistoryLoaded bool
}

// PartnerTyping reports whether the snapshot shows the counterparty typing.
func (s ThreadSnapshot) PartnerTyping() bool {
	t, ok := s.Typing[PartyPartner]
	return ok && t.IsTyping
}

// LastMessage returns the newest message, if any.
func (s ThreadSnapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// ConnectionStatus is the lifecycle of the single realtime connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ConnectionState describes the process-wide transport connection. Joined
// keys survive reconnect attempts so rooms are rejoined transparently.
type ConnectionState struct {
	Status     ConnectionStatus
	UserID     string
	JoinedKeys []ConversationKey
}

func (c ConnectionState) Joined(key ConversationKey) bool {
	for _, k := range c.JoinedKeys {
		if k == key {
			return true
		}
	}
	return false
}
