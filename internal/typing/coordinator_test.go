package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

type signal struct {
	key      model.ConversationKey
	party    model.Party
	isTyping bool
}

type fakeTransport struct {
	mu      sync.Mutex
	signals []signal
}

func (f *fakeTransport) SendTyping(key model.ConversationKey, party model.Party, isTyping bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal{key, party, isTyping})
}

func (f *fakeTransport) all() []signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]signal, len(f.signals))
	copy(out, f.signals)
	return out
}

const key = model.ConversationKey("req-1")

func TestFirstKeystrokeSendsStartOnce(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()

	c.InputChanged(key, "h")
	c.InputChanged(key, "he")
	c.InputChanged(key, "hel")

	got := ft.all()
	if len(got) != 1 {
		t.Fatalf("got %d signals, want exactly one start: %v", len(got), got)
	}
	if !got[0].isTyping || got[0].party != model.PartyUser || got[0].key != key {
		t.Fatalf("unexpected signal: %+v", got[0])
	}
}

func TestEmptyInputSendsStop(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()

	c.InputChanged(key, "hi")
	c.InputChanged(key, "")

	got := ft.all()
	if len(got) != 2 || got[1].isTyping {
		t.Fatalf("want start then stop, got %v", got)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()

	c.Stop(key)
	if len(ft.all()) != 0 {
		t.Fatal("stop without a prior start must not signal")
	}
}

func TestIdleTimeoutSendsStop(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()
	c.timeout = 30 * time.Millisecond

	c.InputChanged(key, "hi")

	deadline := time.After(2 * time.Second)
	for {
		got := ft.all()
		if len(got) == 2 {
			if got[1].isTyping {
				t.Fatalf("second signal is not a stop: %v", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("idle stop never sent, signals: %v", ft.all())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestKeystrokeRefreshDefersIdleStop(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()
	c.timeout = 60 * time.Millisecond

	c.InputChanged(key, "h")
	time.Sleep(40 * time.Millisecond)
	c.InputChanged(key, "he") // refresh inside the window
	time.Sleep(40 * time.Millisecond)

	// 80ms after start but only 40ms after the refresh: still typing.
	got := ft.all()
	if len(got) != 1 {
		t.Fatalf("refresh must not re-send or stop, got %v", got)
	}
}

func TestRestartAfterStopSendsNewStart(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyPartner, nil)
	defer c.Close()

	c.InputChanged(key, "offer")
	c.Stop(key)
	c.InputChanged(key, "new offer")

	got := ft.all()
	if len(got) != 3 || !got[2].isTyping {
		t.Fatalf("want start/stop/start, got %v", got)
	}
	if got[2].party != model.PartyPartner {
		t.Fatalf("party = %q, want partner", got[2].party)
	}
}

func TestThreadsAreIndependent(t *testing.T) {
	ft := &fakeTransport{}
	c := NewCoordinator(ft, model.PartyUser, nil)
	defer c.Close()

	other := model.ConversationKey("req-2")
	c.InputChanged(key, "a")
	c.InputChanged(other, "b")
	c.Stop(key)

	got := ft.all()
	if len(got) != 3 {
		t.Fatalf("want two starts and one stop, got %v", got)
	}
	if got[2].key != key || got[2].isTyping {
		t.Fatalf("stop must target only the stopped thread: %v", got)
	}
}
