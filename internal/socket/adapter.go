package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/event"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

var (
	// tuning parameters
	writeWait         = 10 * time.Second    // time allowed to write a message to the peer
	pongWait          = 20 * time.Second    // time allowed to read the next pong message from the peer
	pingInterval      = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize    = 64 * 1024           // max inbound message size (64KB)
	sendBufSize       = 256                 // outbound buffer size
	enqueueTimeout    = 2 * time.Second     // timeout for enqueuing outbound envelopes
	baseReconnectWait = 500 * time.Millisecond
	maxReconnectWait  = 30 * time.Second
	maxReconnectTries = 8 // consecutive failed dials before giving up
)

// ErrNotConnected is returned by internal write paths when no live
// connection exists. It never crosses to callers of Send, which is
// fire-and-forget: delivery during an outage is not guaranteed, and the UI
// learns about it through the connection state, not an error.
var ErrNotConnected = errors.New("socket: not connected")

type joinInfo struct {
	selfID string
	peerID string
}

// Adapter wraps the single persistent websocket connection to the user's
// namespace. It owns reconnection, room membership replay, and the typed
// event taps the registry consumes. There is exactly one subscriber per
// event kind; fan-out to threads happens above this layer.
type Adapter struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *zap.Logger

	mu     sync.Mutex
	status model.ConnectionStatus
	userID string
	joined map[model.ConversationKey]joinInfo
	conn   *websocket.Conn
	egress chan event.Envelope
	cancel context.CancelFunc

	onMessage      func(model.Message)
	onHistoryBatch func(model.ConversationKey, []model.Message)
	onTypingStart  func(model.ConversationKey, model.Party)
	onTypingStop   func(model.ConversationKey, model.Party)
	onConnState    func(model.ConnectionState)
}

// NewAdapter creates a disconnected adapter for the given websocket base URL
// (e.g. ws://localhost:8091/chat).
func NewAdapter(baseURL string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		baseURL: baseURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger,
		status:  model.StatusDisconnected,
		joined:  make(map[model.ConversationKey]joinInfo),
	}
}

// Event taps. The registry is the only consumer; setting a tap replaces the
// previous one.

func (a *Adapter) OnMessage(fn func(model.Message)) { a.onMessage = fn }

func (a *Adapter) OnHistoryBatch(fn func(model.ConversationKey, []model.Message)) {
	a.onHistoryBatch = fn
}

func (a *Adapter) OnTypingStart(fn func(model.ConversationKey, model.Party)) {
	a.onTypingStart = fn
}

func (a *Adapter) OnTypingStop(fn func(model.ConversationKey, model.Party)) {
	a.onTypingStop = fn
}

func (a *Adapter) OnConnectionStateChange(fn func(model.ConnectionState)) {
	a.onConnState = fn
}

// Connect establishes the connection for userID. Idempotent: connecting for
// the same user while live or in progress is a no-op; a different user tears
// the old connection down and drops its room membership first. Dial failures
// never reach the caller; they retry with bounded exponential backoff and
// surface as connection state.
func (a *Adapter) Connect(userID string) {
	a.mu.Lock()
	if a.userID == userID && a.status != model.StatusDisconnected {
		a.mu.Unlock()
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	if a.userID != userID {
		// A different user never inherits the previous user's rooms.
		a.joined = make(map[model.ConversationKey]joinInfo)
	}
	a.userID = userID
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.mu.Unlock()

	go a.run(ctx, userID)
}

// Disconnect tears the transport down and forgets room membership.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.egress = nil
	a.userID = ""
	a.joined = make(map[model.ConversationKey]joinInfo)
	a.mu.Unlock()

	a.setStatus(model.StatusDisconnected)
}

// JoinRoom registers interest in a conversation's events. Membership is
// recorded before the wire write so it replays automatically after a
// reconnect.
func (a *Adapter) JoinRoom(key model.ConversationKey, selfID, peerID string) {
	a.mu.Lock()
	a.joined[key] = joinInfo{selfID: selfID, peerID: peerID}
	a.mu.Unlock()

	env := event.NewEnvelope(event.EventRoomJoin, key.String(), event.JoinPayload{
		RoomID: key.String(),
		UserID: selfID,
		PeerID: peerID,
	})
	if err := a.enqueue(env); err != nil {
		a.logger.Debug("join deferred until connect", zap.String("room", key.String()))
	}
}

// LeaveRoom unregisters interest; no-op if not joined.
func (a *Adapter) LeaveRoom(key model.ConversationKey) {
	a.mu.Lock()
	_, joined := a.joined[key]
	delete(a.joined, key)
	a.mu.Unlock()
	if !joined {
		return
	}

	env := event.NewEnvelope(event.EventRoomLeave, key.String(), event.JoinPayload{RoomID: key.String()})
	if err := a.enqueue(env); err != nil {
		a.logger.Debug("leave skipped, not connected", zap.String("room", key.String()))
	}
}

// Send asks the server to persist and fan out a message. Fire-and-forget: no
// local append (the authoritative copy comes back as message:new with the
// server-assigned id and timestamp) and no offline buffering.
func (a *Adapter) Send(key model.ConversationKey, body string, sender model.Party) {
	env := event.NewEnvelope(event.EventMessageSend, key.String(), event.SendPayload{
		RoomID: key.String(),
		Sender: string(sender),
		Body:   body,
	})
	if err := a.enqueue(env); err != nil {
		a.logger.Warn("send dropped while disconnected",
			zap.String("room", key.String()),
		)
	}
}

// SendTyping emits a typing start or stop signal for the given party.
// Best-effort like Send: a signal lost to an outage is covered by the
// receiver's expiry timeout.
func (a *Adapter) SendTyping(key model.ConversationKey, party model.Party, isTyping bool) {
	kind := event.EventTypingStop
	if isTyping {
		kind = event.EventTypingStart
	}
	env := event.NewEnvelope(kind, key.String(), event.TypingPayload{
		RoomID: key.String(),
		Party:  string(party),
	})
	if err := a.enqueue(env); err != nil {
		a.logger.Debug("typing signal dropped while disconnected",
			zap.String("room", key.String()),
		)
	}
}

// State returns a copy of the process-wide connection state.
func (a *Adapter) State() model.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Adapter) stateLocked() model.ConnectionState {
	keys := make([]model.ConversationKey, 0, len(a.joined))
	for k := range a.joined {
		keys = append(keys, k)
	}
	return model.ConnectionState{
		Status:     a.status,
		UserID:     a.userID,
		JoinedKeys: keys,
	}
}

// -----------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------

// run dials and supervises the connection until ctx is cancelled or the
// retry budget runs out. Each successful dial resets the budget.
func (a *Adapter) run(ctx context.Context, userID string) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		a.setStatus(model.StatusConnecting)

		conn, _, err := a.dialer.DialContext(ctx, a.urlFor(userID), nil)
		if err != nil {
			attempts++
			if attempts >= maxReconnectTries {
				a.logger.Error("connection failed, retry budget exhausted",
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				a.setStatus(model.StatusDisconnected)
				return
			}
			wait := reconnectWait(attempts)
			a.logger.Warn("dial failed, retrying",
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		attempts = 0

		egress := make(chan event.Envelope, sendBufSize)
		a.mu.Lock()
		a.conn = conn
		a.egress = egress
		a.mu.Unlock()
		a.setStatus(model.StatusConnected)
		a.replayJoins()

		writerStop := make(chan struct{})
		writerDone := make(chan struct{})
		go a.writePump(conn, egress, writerStop, writerDone)
		a.readPump(ctx, conn)

		// Egress is never closed: enqueue may race a teardown, and a send
		// into an abandoned buffered channel just times out harmlessly.
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
			a.egress = nil
		}
		a.mu.Unlock()
		close(writerStop)
		<-writerDone
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("connection lost, reconnecting", zap.String("user", userID))
	}
}

func reconnectWait(attempt int) time.Duration {
	wait := baseReconnectWait << uint(attempt-1)
	if wait > maxReconnectWait {
		wait = maxReconnectWait
	}
	return wait
}

func (a *Adapter) urlFor(userID string) string {
	return fmt.Sprintf("%s?userId=%s", a.baseURL, url.QueryEscape(userID))
}

// replayJoins re-registers every joined room on a fresh connection, so a
// reconnect is transparent to open threads.
func (a *Adapter) replayJoins() {
	a.mu.Lock()
	joins := make(map[model.ConversationKey]joinInfo, len(a.joined))
	for k, info := range a.joined {
		joins[k] = info
	}
	a.mu.Unlock()

	for key, info := range joins {
		env := event.NewEnvelope(event.EventRoomJoin, key.String(), event.JoinPayload{
			RoomID: key.String(),
			UserID: info.selfID,
			PeerID: info.peerID,
		})
		if err := a.enqueue(env); err != nil {
			a.logger.Warn("join replay failed", zap.String("room", key.String()))
		}
	}
}

func (a *Adapter) setStatus(status model.ConnectionStatus) {
	a.mu.Lock()
	if a.status == status {
		a.mu.Unlock()
		return
	}
	a.status = status
	state := a.stateLocked()
	fn := a.onConnState
	a.mu.Unlock()

	a.logger.Info("connection state changed", zap.String("status", string(status)))
	if fn != nil {
		fn(state)
	}
}

func (a *Adapter) enqueue(env event.Envelope) error {
	a.mu.Lock()
	egress := a.egress
	connected := a.status == model.StatusConnected
	a.mu.Unlock()

	if !connected || egress == nil {
		return ErrNotConnected
	}
	select {
	case egress <- env:
		return nil
	case <-time.After(enqueueTimeout):
		return ErrNotConnected
	}
}

// -----------------------------------------------------------------
// Pumps
// -----------------------------------------------------------------

func (a *Adapter) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(int64(maxMessageSize))
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				a.logger.Info("server closed connection")
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				a.logger.Warn("read timed out")
				return
			}
			a.logger.Warn("read error", zap.Error(err))
			return
		}
		a.dispatch(env)
	}
}

func (a *Adapter) writePump(conn *websocket.Conn, egress <-chan event.Envelope, stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case env := <-egress:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				a.logger.Warn("write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				a.logger.Warn("ping error", zap.Error(err))
				return
			}
		}
	}
}

// -----------------------------------------------------------------
// Inbound dispatch
// -----------------------------------------------------------------

// dispatch decodes one inbound envelope and hands it to the matching tap.
// Runs on the read pump goroutine, so events of one connection are delivered
// strictly in arrival order.
func (a *Adapter) dispatch(env event.Envelope) {
	switch env.Event {
	case event.EventMessageNew:
		var p event.MessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			a.logger.Warn("malformed message payload", zap.Error(err))
			return
		}
		if fn := a.onMessage; fn != nil {
			fn(p.Message(env.RoomID))
		}
	case event.EventHistoryBatch:
		var p event.HistoryBatchPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			a.logger.Warn("malformed history payload", zap.Error(err))
			return
		}
		room := p.RoomID
		if env.RoomID != "" {
			room = env.RoomID
		}
		msgs := make([]model.Message, 0, len(p.Messages))
		for _, mp := range p.Messages {
			msgs = append(msgs, mp.Message(room))
		}
		if fn := a.onHistoryBatch; fn != nil {
			fn(model.ConversationKey(room), msgs)
		}
	case event.EventTypingStart, event.EventTypingStop:
		var p event.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			a.logger.Warn("malformed typing payload", zap.Error(err))
			return
		}
		party := model.Party(p.Party)
		if !party.Valid() {
			party = model.PartyPartner
		}
		key := model.ConversationKey(env.RoomID)
		if env.RoomID == "" {
			key = model.ConversationKey(p.RoomID)
		}
		if env.Event == event.EventTypingStart {
			if fn := a.onTypingStart; fn != nil {
				fn(key, party)
			}
		} else if fn := a.onTypingStop; fn != nil {
			fn(key, party)
		}
	default:
		a.logger.Debug("unknown event kind", zap.String("event", env.Event))
	}
}
