package model

// ConversationKey identifies one negotiation thread. It is derived from the
// request/offer id and stays stable for the conversation's lifetime.
type ConversationKey string

func (k ConversationKey) String() string { return string(k) }

// Party identifies which side of a negotiation produced a message or signal.
type Party string

const (
	PartyUser    Party = "user"
	PartyPartner Party = "partner"
)

// Valid reports whether p is one of the known parties.
func (p Party) Valid() bool {
	return p == PartyUser || p == PartyPartner
}

// Other returns the counterparty.
func (p Party) Other() Party {
	if p == PartyUser {
		return PartyPartner
	}
	return PartyUser
}

// Message is one entry of a conversation's durable log. IDs are assigned by
// the server; the client never invents one.
type Message struct {
	ID              string          `json:"id"`
	ConversationKey ConversationKey `json:"conversationKey"`
	Sender          Party           `json:"sender"`
	Body            string          `json:"body"`
	// TimestampMillis is always epoch milliseconds, normalized at ingress.
	TimestampMillis int64 `json:"timestampMillis"`

	// seq is the insertion sequence number assigned at append time. It breaks
	// ordering ties between messages sharing a millisecond timestamp.
	seq uint64
}

// Seq returns the insertion sequence number assigned when the message was
// merged into a thread. Zero until then.
func (m Message) Seq() uint64 { return m.seq }

// WithSeq returns a copy of m carrying the given insertion sequence.
func (m Message) WithSeq(seq uint64) Message {
	m.seq = seq
	return m
}

// Less orders messages by (TimestampMillis, seq) ascending.
func (m Message) Less(o Message) bool {
	if m.TimestampMillis != o.TimestampMillis {
		return m.TimestampMillis < o.TimestampMillis
	}
	return m.seq < o.seq
}
