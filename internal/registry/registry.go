package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/thread"
)

// ErrNotAuthenticated is returned when a thread is opened before a user
// identity is known. Callers must wait for authentication state, not retry
// in a loop.
var ErrNotAuthenticated = errors.New("registry: not authenticated")

// ErrUserMismatch is returned when a thread is opened as a different user
// while threads for the current user are still open. Callers close the old
// session (CloseThread or Close) before switching identities.
var ErrUserMismatch = errors.New("registry: thread open for another user")

// historyLoadTimeout bounds one history fetch, detached from the opening
// screen's lifetime: closing a thread does not cancel an in-flight load.
const historyLoadTimeout = 30 * time.Second

// Transport is the adapter surface the registry drives. It is the only
// consumer of the taps; fan-out to thread stores happens here.
type Transport interface {
	Connect(userID string)
	Disconnect()
	JoinRoom(key model.ConversationKey, selfID, peerID string)
	LeaveRoom(key model.ConversationKey)
	Send(key model.ConversationKey, body string, sender model.Party)
	SendTyping(key model.ConversationKey, party model.Party, isTyping bool)
	State() model.ConnectionState

	OnMessage(func(model.Message))
	OnHistoryBatch(func(model.ConversationKey, []model.Message))
	OnTypingStart(func(model.ConversationKey, model.Party))
	OnTypingStop(func(model.ConversationKey, model.Party))
	OnConnectionStateChange(func(model.ConnectionState))
}

// HistoryLoader fetches the durable log for one conversation.
type HistoryLoader interface {
	Load(ctx context.Context, key model.ConversationKey) ([]model.Message, error)
}

type entry struct {
	store   *thread.Store
	refs    int
	gen     uint64
	loading bool
}

// Registry multiplexes every open conversation over the single transport
// connection. It exclusively owns the thread stores and the connection
// lifecycle: screens get a store handle and a subscription, never a mutable
// reference. Stores are reference-counted; the transport connects on the
// first open thread and disconnects when the last one closes.
type Registry struct {
	transport Transport
	loader    HistoryLoader
	self      model.Party
	logger    *zap.Logger

	mu      sync.Mutex
	userID  string
	entries map[model.ConversationKey]*entry
	nextGen uint64

	connMu    sync.Mutex
	connState model.ConnectionState
	connSubs  map[uint64]func(model.ConnectionState)
	nextSub   uint64
}

// New wires a registry to the transport taps. self is the party this
// process acts as (user on the consumer app, partner on dashboards).
func New(transport Transport, loader HistoryLoader, self model.Party, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		transport: transport,
		loader:    loader,
		self:      self,
		logger:    logger,
		entries:   make(map[model.ConversationKey]*entry),
		connState: model.ConnectionState{Status: model.StatusDisconnected},
		connSubs:  make(map[uint64]func(model.ConnectionState)),
	}

	transport.OnMessage(r.routeMessage)
	transport.OnHistoryBatch(r.routeHistoryBatch)
	transport.OnTypingStart(func(key model.ConversationKey, party model.Party) {
		r.routeTyping(key, party, true)
	})
	transport.OnTypingStop(func(key model.ConversationKey, party model.Party) {
		r.routeTyping(key, party, false)
	})
	transport.OnConnectionStateChange(r.onConnectionState)
	return r
}

// OpenThread returns the thread store for a conversation, creating and
// seeding it on first open. Reference-counted: concurrent screens opening
// the same key share one store and one room join, so a standalone chat
// screen and an inbox panel can never diverge.
func (r *Registry) OpenThread(key model.ConversationKey, selfID, peerID string) (*thread.Store, error) {
	if selfID == "" {
		return nil, ErrNotAuthenticated
	}

	r.mu.Lock()
	if r.userID != "" && r.userID != selfID {
		r.mu.Unlock()
		return nil, ErrUserMismatch
	}
	r.userID = selfID
	e, ok := r.entries[key]
	if !ok {
		r.nextGen++
		e = &entry{store: thread.NewStore(key, r.logger), gen: r.nextGen}
		r.entries[key] = e
	}
	e.refs++
	needLoad := !e.loading && !e.store.Seeded()
	if needLoad {
		e.loading = true
	}
	gen := e.gen
	r.mu.Unlock()

	r.transport.Connect(selfID)
	r.transport.JoinRoom(key, selfID, peerID)

	if needLoad {
		go r.loadHistory(key, gen)
	}

	r.logger.Debug("thread opened", zap.String("conversation", key.String()))
	return e.store, nil
}

// CloseThread releases one reference. At zero the room is left and the
// store discarded; when no threads remain open anywhere, the transport
// disconnects.
func (r *Registry) CloseThread(key model.ConversationKey) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	empty := len(r.entries) == 0
	if empty {
		r.userID = ""
	}
	r.mu.Unlock()

	e.store.Close()
	r.transport.LeaveRoom(key)
	if empty {
		r.transport.Disconnect()
	}
	r.logger.Debug("thread closed",
		zap.String("conversation", key.String()),
		zap.Bool("transport_released", empty),
	)
}

// Send publishes a message to a conversation as this process's party.
// Fire-and-forget: the authoritative copy arrives back via message:new.
func (r *Registry) Send(key model.ConversationKey, body string) {
	r.transport.Send(key, body, r.self)
}

// ConnectionState returns the latest observed transport state.
func (r *Registry) ConnectionState() model.ConnectionState {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return r.connState
}

// SubscribeConnection registers an observer for connection state changes
// (the non-blocking "reconnecting" indicator). The current state is
// delivered immediately; the returned function unsubscribes.
func (r *Registry) SubscribeConnection(fn func(model.ConnectionState)) func() {
	r.connMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.connSubs[id] = fn
	fn(r.connState)
	r.connMu.Unlock()

	return func() {
		r.connMu.Lock()
		delete(r.connSubs, id)
		r.connMu.Unlock()
	}
}

// Close tears everything down regardless of reference counts; used on
// logout and process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[model.ConversationKey]*entry)
	r.userID = ""
	r.mu.Unlock()

	for _, e := range entries {
		e.store.Close()
	}
	r.transport.Disconnect()
}

// -----------------------------------------------------------------
// Inbound routing
// -----------------------------------------------------------------

// lookup resolves an event's conversation to its store. Unroutable events
// (a leave raced an in-flight event) are dropped, never queued.
func (r *Registry) lookup(key model.ConversationKey) *thread.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.store
	}
	return nil
}

func (r *Registry) routeMessage(m model.Message) {
	store := r.lookup(m.ConversationKey)
	if store == nil {
		r.logger.Debug("dropping message for unknown conversation",
			zap.String("conversation", m.ConversationKey.String()),
			zap.String("id", m.ID),
		)
		return
	}
	store.Append(m)
}

// routeHistoryBatch handles server-pushed history. The first batch seeds the
// store; later ones (a rejoin after reconnect) merge message by message
// through the same dedup path as live events.
func (r *Registry) routeHistoryBatch(key model.ConversationKey, msgs []model.Message) {
	store := r.lookup(key)
	if store == nil {
		r.logger.Debug("dropping history batch for unknown conversation",
			zap.String("conversation", key.String()),
		)
		return
	}
	if store.Seeded() {
		for _, m := range msgs {
			store.Append(m)
		}
		return
	}
	store.Seed(msgs)
}

func (r *Registry) routeTyping(key model.ConversationKey, party model.Party, isTyping bool) {
	store := r.lookup(key)
	if store == nil {
		return
	}
	store.SetTyping(party, isTyping)
}

func (r *Registry) onConnectionState(state model.ConnectionState) {
	r.connMu.Lock()
	r.connState = state
	subs := make([]func(model.ConnectionState), 0, len(r.connSubs))
	for _, fn := range r.connSubs {
		subs = append(subs, fn)
	}
	r.connMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// -----------------------------------------------------------------
// History seeding
// -----------------------------------------------------------------

// loadHistory fetches and merges the durable log for one thread generation.
// The generation check discards a load that finishes after the last
// reference closed, so a dead store is never resurrected. The result merges
// rather than seeds: a server-pushed batch may have seeded the store while
// the fetch was in flight, and it carries no completeness guarantee.
func (r *Registry) loadHistory(key model.ConversationKey, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), historyLoadTimeout)
	defer cancel()

	msgs, err := r.loader.Load(ctx, key)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.gen != gen {
		r.mu.Unlock()
		r.logger.Debug("discarding history for closed thread",
			zap.String("conversation", key.String()),
		)
		return
	}
	e.loading = false
	store := e.store
	r.mu.Unlock()

	if err != nil {
		// Thread stays open with zero messages and IsHistoryLoaded=false;
		// the next OpenThread for this key retries the load.
		r.logger.Warn("history unavailable",
			zap.String("conversation", key.String()),
			zap.Error(err),
		)
		return
	}
	store.MergeHistory(msgs)
}
