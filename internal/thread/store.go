package thread

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

const (
	// defaultTypingExpiry is how long a typing signal stays live without a
	// refresh. It covers stop events lost to a dropped connection.
	defaultTypingExpiry = 4 * time.Second
)

// Store is the reconciliation engine for one conversation: a single ordered,
// deduplicated message list merged from history batches and live events,
// plus ephemeral typing state. Screens never hold Store internals; they
// subscribe to snapshots.
//
// All mutation funnels through the registry's dispatch path, but the store
// still guards its state so snapshot reads from UI goroutines are safe.
type Store struct {
	key model.ConversationKey

	mu            sync.RWMutex
	messages      []model.Message
	seen          map[string]struct{}
	nextSeq       uint64
	seeded        bool
	historyLoaded bool
	typing        map[model.Party]model.TypingState
	typingTimers  map[model.Party]*time.Timer

	subMu   sync.Mutex
	subs    map[uint64]func(model.ThreadSnapshot)
	nextSub uint64

	typingExpiry time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewStore creates an empty store for one conversation key.
func NewStore(key model.ConversationKey, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		key:          key,
		seen:         make(map[string]struct{}),
		typing:       make(map[model.Party]model.TypingState),
		typingTimers: make(map[model.Party]*time.Timer),
		subs:         make(map[uint64]func(model.ThreadSnapshot)),
		typingExpiry: defaultTypingExpiry,
		now:          time.Now,
		logger:       logger.With(zap.String("conversation", key.String())),
	}
}

// Key returns the conversation key the store reconciles.
func (s *Store) Key() model.ConversationKey { return s.key }

// Seed merges the history-loaded batch into the store. It is idempotent:
// remounting screens trigger duplicate loads, and only the first one lands.
func (s *Store) Seed(messages []model.Message) {
	s.mu.Lock()
	if s.seeded {
		s.mu.Unlock()
		return
	}
	s.seeded = true
	s.historyLoaded = true
	inserted := 0
	for _, m := range messages {
		if s.insertLocked(m) {
			inserted++
		}
	}
	s.mu.Unlock()

	s.logger.Debug("history seeded",
		zap.Int("batch", len(messages)),
		zap.Int("inserted", inserted),
	)
	s.publish()
}

// MergeHistory merges the durable log fetched over REST. Unlike Seed it
// still applies when a server-pushed batch already seeded the store: the
// pushed batch carries no completeness guarantee, so the REST result merges
// message by message through the same dedup path as live events.
func (s *Store) MergeHistory(messages []model.Message) {
	s.mu.Lock()
	s.seeded = true
	s.historyLoaded = true
	inserted := 0
	for _, m := range messages {
		if s.insertLocked(m) {
			inserted++
		}
	}
	s.mu.Unlock()

	s.logger.Debug("history merged",
		zap.Int("batch", len(messages)),
		zap.Int("inserted", inserted),
	)
	s.publish()
}

// Seeded reports whether a history batch already landed.
func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// Append merges one message, keeping the list sorted by
// (timestampMillis, insertion sequence). A message whose id was already seen
// is dropped; this is the single merge point for history batches and live
// events, so both paths share the same ordering and dedup guarantees.
// It reports whether the message was actually inserted.
func (s *Store) Append(m model.Message) bool {
	s.mu.Lock()
	inserted := s.insertLocked(m)
	s.mu.Unlock()

	if !inserted {
		s.logger.Debug("duplicate message dropped", zap.String("id", m.ID))
		return false
	}
	s.publish()
	return true
}

// insertLocked performs the dedup check and ordered insert. Caller holds mu.
func (s *Store) insertLocked(m model.Message) bool {
	if m.ID != "" {
		if _, dup := s.seen[m.ID]; dup {
			return false
		}
		s.seen[m.ID] = struct{}{}
	}

	s.nextSeq++
	m = m.WithSeq(s.nextSeq)
	if m.ConversationKey == "" {
		m.ConversationKey = s.key
	}

	// Ties on timestamp land after existing entries: the sequence number is
	// monotonic, so arrival order is preserved.
	i := sort.Search(len(s.messages), func(i int) bool {
		return m.Less(s.messages[i])
	})
	s.messages = append(s.messages, model.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	return true
}

// SetTyping updates the party's typing state with a fresh expiry. Stale
// state is treated as not-typing even without an explicit stop: an expiry
// timer clears it and re-publishes, and Snapshot double-checks lazily.
func (s *Store) SetTyping(party model.Party, isTyping bool) {
	now := s.now()

	s.mu.Lock()
	if t, ok := s.typingTimers[party]; ok {
		t.Stop()
		delete(s.typingTimers, party)
	}

	state := model.TypingState{
		ConversationKey: s.key,
		Party:           party,
		IsTyping:        isTyping,
	}
	if isTyping {
		expiresAt := now.Add(s.typingExpiry).UnixMilli()
		state.ExpiresAtMillis = expiresAt
		s.typingTimers[party] = time.AfterFunc(s.typingExpiry, func() {
			s.expireTyping(party, expiresAt)
		})
	}
	s.typing[party] = state
	s.mu.Unlock()

	s.publish()
}

// expireTyping clears a typing state whose expiry elapsed without a refresh.
// The captured expiry guards against a timer firing after a refresh already
// replaced the state.
func (s *Store) expireTyping(party model.Party, expiresAt int64) {
	s.mu.Lock()
	state, ok := s.typing[party]
	if !ok || !state.IsTyping || state.ExpiresAtMillis != expiresAt {
		s.mu.Unlock()
		return
	}
	state.IsTyping = false
	s.typing[party] = state
	delete(s.typingTimers, party)
	s.mu.Unlock()

	s.logger.Debug("typing expired", zap.String("party", string(party)))
	s.publish()
}

// Snapshot produces the read-only projection of the current state.
func (s *Store) Snapshot() model.ThreadSnapshot {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(now)
}

func (s *Store) snapshotLocked(now time.Time) model.ThreadSnapshot {
	snap := model.ThreadSnapshot{
		ConversationKey: s.key,
		Messages:        make([]model.Message, len(s.messages)),
		Typing:          make(map[model.Party]model.TypingState, len(s.typing)),
		IsHistoryLoaded: s.historyLoaded,
	}
	copy(snap.Messages, s.messages)
	for party, state := range s.typing {
		if state.IsTyping && state.Expired(now) {
			state.IsTyping = false
		}
		snap.Typing[party] = state
	}
	return snap
}

// Subscribe registers a snapshot observer and immediately delivers the
// current state. Multiple screens may subscribe to the same store and always
// see identical snapshots. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(model.ThreadSnapshot)) func() {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()

	fn(s.Snapshot())

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// publish pushes a fresh snapshot to every subscriber. The callback list is
// copied and invoked outside the lock so a subscriber may call back into the
// store; deliveries from the dispatch goroutine stay in order.
func (s *Store) publish() {
	s.subMu.Lock()
	fns := make([]func(model.ThreadSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// Close stops outstanding typing timers. Called by the registry when the
// last reference to the thread is released.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for party, t := range s.typingTimers {
		t.Stop()
		delete(s.typingTimers, party)
	}
}
