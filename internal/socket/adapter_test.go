package socket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/event"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

// wsTestServer is a minimal backend: it records every inbound envelope and
// writes whatever the test pushes.
type wsTestServer struct {
	srv      *httptest.Server
	received chan event.Envelope
	push     chan event.Envelope
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{
		received: make(chan event.Envelope, 32),
		push:     make(chan event.Envelope, 32),
	}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var env event.Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				ts.received <- env
			}
		}()
		for {
			select {
			case env := <-ts.push:
				if err := conn.WriteJSON(env); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *wsTestServer) expect(t *testing.T, kind string) event.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-ts.received:
			if env.Event == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func waitStatus(t *testing.T, states <-chan model.ConnectionState, want model.ConnectionStatus) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case st := <-states:
			if st.Status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

func TestConnectJoinAndReceive(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	messages := make(chan model.Message, 16)
	a.OnMessage(func(m model.Message) { messages <- m })

	// Join before connect: membership must replay once the dial lands.
	a.JoinRoom("req-1", "user-9", "partner-3")
	a.Connect("user-9")
	defer a.Disconnect()

	waitStatus(t, states, model.StatusConnected)

	join := ts.expect(t, event.EventRoomJoin)
	if join.RoomID != "req-1" {
		t.Fatalf("join room = %q, want req-1", join.RoomID)
	}

	// Push a legacy-shaped message (epoch seconds) and check normalization.
	ts.push <- event.NewEnvelope(event.EventMessageNew, "req-1", map[string]any{
		"id":        "m1",
		"sender":    "partner",
		"body":      "hello",
		"timestamp": 1700000000,
	})

	select {
	case m := <-messages:
		if m.ID != "m1" || m.ConversationKey != "req-1" {
			t.Fatalf("unexpected message: %+v", m)
		}
		if m.TimestampMillis != 1700000000000 {
			t.Fatalf("timestamp not normalized: %d", m.TimestampMillis)
		}
		if m.Sender != model.PartyPartner {
			t.Fatalf("sender = %q, want partner", m.Sender)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestSendGoesOverTheWire(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	a.Connect("user-9")
	defer a.Disconnect()
	waitStatus(t, states, model.StatusConnected)

	a.Send("req-1", "is this still available?", model.PartyUser)

	env := ts.expect(t, event.EventMessageSend)
	if env.RoomID != "req-1" {
		t.Fatalf("send room = %q, want req-1", env.RoomID)
	}
}

func TestHistoryBatchDispatch(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	batches := make(chan []model.Message, 4)
	a.OnHistoryBatch(func(_ model.ConversationKey, msgs []model.Message) { batches <- msgs })

	a.Connect("user-9")
	defer a.Disconnect()
	waitStatus(t, states, model.StatusConnected)

	ts.push <- event.NewEnvelope(event.EventHistoryBatch, "req-1", event.HistoryBatchPayload{
		RoomID: "req-1",
		Messages: []event.MessagePayload{
			{ID: "m1", Sender: "user", Body: "hi", Timestamp: "1700000000"},
			{ID: "m2", Sender: "partner", Body: "hello", Timestamp: 1700000001000},
		},
	})

	select {
	case msgs := <-batches:
		if len(msgs) != 2 {
			t.Fatalf("batch size = %d, want 2", len(msgs))
		}
		if msgs[0].TimestampMillis != 1700000000000 {
			t.Fatalf("string-seconds timestamp not normalized: %d", msgs[0].TimestampMillis)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("history batch never dispatched")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	a.Connect("user-9")
	defer a.Disconnect()
	waitStatus(t, states, model.StatusConnected)

	// Same user again: no state churn expected.
	a.Connect("user-9")
	select {
	case st := <-states:
		t.Fatalf("unexpected state change on repeat connect: %s", st.Status)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUserSwitchDropsPreviousRooms(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	a.Connect("user-a")
	defer a.Disconnect()
	waitStatus(t, states, model.StatusConnected)
	a.JoinRoom("req-private-a", "user-a", "")
	ts.expect(t, event.EventRoomJoin)

	// Connecting as a different user must not replay the old membership.
	a.Connect("user-b")
	waitStatus(t, states, model.StatusConnected)

	if keys := a.State().JoinedKeys; len(keys) != 0 {
		t.Fatalf("previous user's rooms survived the switch: %v", keys)
	}
	select {
	case env := <-ts.received:
		if env.Event == event.EventRoomJoin {
			t.Fatalf("old room %q replayed on the new user's connection", env.RoomID)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisconnectClearsJoinedRooms(t *testing.T) {
	ts := newWSTestServer(t)
	a := NewAdapter(ts.wsURL(), nil)

	states := make(chan model.ConnectionState, 16)
	a.OnConnectionStateChange(func(st model.ConnectionState) { states <- st })

	a.Connect("user-9")
	waitStatus(t, states, model.StatusConnected)
	a.JoinRoom("req-1", "user-9", "")
	a.Disconnect()

	st := a.State()
	if st.Status != model.StatusDisconnected || len(st.JoinedKeys) != 0 || st.UserID != "" {
		t.Fatalf("disconnect left residual state: %+v", st)
	}
}

func TestReconnectWaitIsBounded(t *testing.T) {
	if reconnectWait(1) != baseReconnectWait {
		t.Fatalf("first wait = %s", reconnectWait(1))
	}
	for attempt := 1; attempt < 20; attempt++ {
		if w := reconnectWait(attempt); w > maxReconnectWait {
			t.Fatalf("wait for attempt %d exceeds cap: %s", attempt, w)
		}
	}
}
