// Package simserver is the development backend for the chat core: it speaks
// the same wire contract as the production realtime service (rooms keyed by
// request id, message:new / history:batch / typing events) with in-memory
// state, so the client stack runs end to end on a laptop.
package simserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/event"
)

type inboundEvent struct {
	client *Client
	env    event.Envelope
}

// Hub owns every connection and room. A single run loop processes
// registration and inbound events, which keeps per-room event order equal to
// arrival order, the property the client's reconciliation relies on.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	rooms   map[string]map[string]*Client // roomID -> clientID -> client
	clients map[string]*Client
	history map[string][]event.MessagePayload

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:     logger,
		rooms:      make(map[string]map[string]*Client),
		clients:    make(map[string]*Client),
		history:    make(map[string][]event.MessagePayload),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		inbound:    make(chan inboundEvent, 1024),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case in := <-h.inbound:
			h.handleEvent(in.client, in.env)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Info("client registered",
		zap.String("client", c.ID),
		zap.String("user", c.userID),
	)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for roomID, room := range h.rooms {
		if _, ok := room[c.ID]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("client removed", zap.String("client", c.ID))
}

// -----------------------------------------------------------------
// Event handling
// -----------------------------------------------------------------

func (h *Hub) handleEvent(c *Client, env event.Envelope) {
	switch env.Event {
	case event.EventRoomJoin:
		var p event.JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("malformed join payload", zap.Error(err))
			return
		}
		h.joinRoom(c, roomOf(env, p.RoomID))

	case event.EventRoomLeave:
		var p event.JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("malformed leave payload", zap.Error(err))
			return
		}
		h.leaveRoom(c, roomOf(env, p.RoomID))

	case event.EventMessageSend:
		var p event.SendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("malformed send payload", zap.Error(err))
			return
		}
		h.publishMessage(c, roomOf(env, p.RoomID), p)

	case event.EventTypingStart, event.EventTypingStop:
		var p event.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn("malformed typing payload", zap.Error(err))
			return
		}
		h.relayTyping(c, roomOf(env, p.RoomID), env.Event, p)

	default:
		h.logger.Warn("unknown event kind", zap.String("event", env.Event))
	}
}

func roomOf(env event.Envelope, payloadRoom string) string {
	if env.RoomID != "" {
		return env.RoomID
	}
	return payloadRoom
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
	}
	room[c.ID] = c
	batch := make([]event.MessagePayload, len(h.history[roomID]))
	copy(batch, h.history[roomID])
	h.mu.Unlock()

	h.logger.Info("client joined room",
		zap.String("client", c.ID),
		zap.String("room", roomID),
	)

	// Push the room's log to the joining client; the client's store dedups
	// against any REST-loaded history by message id.
	env := event.NewEnvelope(event.EventHistoryBatch, roomID, event.HistoryBatchPayload{
		RoomID:   roomID,
		Messages: batch,
	})
	if !c.send(env) {
		h.logger.Warn("history push failed", zap.String("client", c.ID))
	}
}

func (h *Hub) leaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	if room, ok := h.rooms[roomID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// publishMessage assigns the authoritative id and timestamp, appends to the
// room log, and fans out to every member including the sender. The sender's
// copy is the delivery confirmation.
func (h *Hub) publishMessage(c *Client, roomID string, p event.SendPayload) {
	if roomID == "" || p.Body == "" {
		return
	}
	msg := event.MessagePayload{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Sender:    p.Sender,
		SenderID:  c.userID,
		Body:      p.Body,
		Timestamp: time.Now().UnixMilli(),
	}

	h.mu.Lock()
	h.history[roomID] = append(h.history[roomID], msg)
	members := h.roomMembersLocked(roomID)
	h.mu.Unlock()

	env := event.NewEnvelope(event.EventMessageNew, roomID, msg)
	for _, member := range members {
		if !member.send(env) {
			h.logger.Warn("dropping slow client",
				zap.String("client", member.ID),
				zap.String("room", roomID),
			)
			select {
			case h.unregister <- member:
			default:
			}
		}
	}
}

// relayTyping forwards a typing signal to everyone in the room except its
// origin.
func (h *Hub) relayTyping(c *Client, roomID, kind string, p event.TypingPayload) {
	h.mu.RLock()
	members := h.roomMembersLocked(roomID)
	h.mu.RUnlock()

	env := event.NewEnvelope(kind, roomID, event.TypingPayload{
		RoomID: roomID,
		UserID: c.userID,
		Party:  p.Party,
	})
	for _, member := range members {
		if member.ID == c.ID {
			continue
		}
		member.send(env)
	}
}

func (h *Hub) roomMembersLocked(roomID string) []*Client {
	room := h.rooms[roomID]
	members := make([]*Client, 0, len(room))
	for _, member := range room {
		members = append(members, member)
	}
	return members
}

// -----------------------------------------------------------------
// HTTP surface
// -----------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev server: every origin is welcome.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades one connection and registers it for the given user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := newClient(userID, conn, h)
	select {
	case h.register <- c:
		go c.readMessages()
		go c.writeMessages()
	case <-time.After(registerTimeout):
		h.logger.Warn("register timeout", zap.String("client", c.ID))
		c.cancel()
		_ = conn.Close()
	}
}

// History returns a copy of one room's message log for the REST endpoint.
func (h *Hub) History(roomID string) []event.MessagePayload {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]event.MessagePayload, len(h.history[roomID]))
	copy(out, h.history[roomID])
	return out
}

// SeedHistory preloads a room's log, for demos and tests. Timestamps pass
// through as given so legacy encodings can be exercised.
func (h *Hub) SeedHistory(roomID string, msgs []event.MessagePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[roomID] = append(h.history[roomID], msgs...)
}

// Stats reports hub occupancy for the monitor endpoint.
type Stats struct {
	Clients  int `json:"clients"`
	Rooms    int `json:"rooms"`
	Messages int `json:"messages"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, log := range h.history {
		total += len(log)
	}
	return Stats{Clients: len(h.clients), Rooms: len(h.rooms), Messages: total}
}

// Stop closes every connection and halts the run loop.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.RLock()
	for _, c := range h.clients {
		c.close()
	}
	h.mu.RUnlock()
	<-h.done
}
