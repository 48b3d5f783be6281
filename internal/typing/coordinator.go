package typing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

// idleTimeout is how long after the last keystroke the coordinator waits
// before emitting a stop signal.
const idleTimeout = 3 * time.Second

// Transport is the slice of the transport adapter the coordinator needs.
type Transport interface {
	SendTyping(key model.ConversationKey, party model.Party, isTyping bool)
}

// threadState is the Idle/Typing machine for one conversation.
type threadState struct {
	typing bool
	timer  *time.Timer
}

// Coordinator debounces local input into typing start/stop signals. Only the
// first keystroke after an idle period sends a start; later keystrokes just
// push the idle deadline out. It outlives any single screen, so a remount
// mid-typing does not re-send or lose the signal.
//
// Remote typing events never pass through here; the registry routes those
// straight into the thread store.
type Coordinator struct {
	transport Transport
	self      model.Party
	logger    *zap.Logger

	mu      sync.Mutex
	threads map[model.ConversationKey]*threadState
	timeout time.Duration
}

// NewCoordinator creates a coordinator signing signals as the given party
// (user on the consumer app, partner on dashboards).
func NewCoordinator(transport Transport, self model.Party, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		transport: transport,
		self:      self,
		logger:    logger,
		threads:   make(map[model.ConversationKey]*threadState),
		timeout:   idleTimeout,
	}
}

// InputChanged reports the current content of the message input for a
// conversation. Empty input is an explicit stop.
func (c *Coordinator) InputChanged(key model.ConversationKey, text string) {
	if text == "" {
		c.Stop(key)
		return
	}

	c.mu.Lock()
	st, ok := c.threads[key]
	if !ok {
		st = &threadState{}
		c.threads[key] = st
	}
	wasIdle := !st.typing
	st.typing = true
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(c.timeout, func() { c.idle(key) })
	c.mu.Unlock()

	if wasIdle {
		c.transport.SendTyping(key, c.self, true)
	}
}

// Stop ends typing for a conversation and sends the stop signal if a start
// was ever sent. Also called when a message is submitted: sending the text
// ends the typing episode.
func (c *Coordinator) Stop(key model.ConversationKey) {
	c.mu.Lock()
	st, ok := c.threads[key]
	if !ok || !st.typing {
		c.mu.Unlock()
		return
	}
	st.typing = false
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	c.mu.Unlock()

	c.transport.SendTyping(key, c.self, false)
}

// idle fires when the debounce deadline passes with no further keystrokes.
func (c *Coordinator) idle(key model.ConversationKey) {
	c.logger.Debug("typing idle timeout", zap.String("conversation", key.String()))
	c.Stop(key)
}

// Close stops every active episode without emitting stop signals; used on
// teardown when the transport is going away anyway.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, st := range c.threads {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(c.threads, key)
	}
}
