package lastviewed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenEnablesWAL(t *testing.T) {
	s := openTestStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}

func TestMarkAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := model.ConversationKey("req-1")

	if _, ok, err := s.LastViewed(ctx, key); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want no mark", ok, err)
	}

	if err := s.MarkViewed(ctx, key, 1700000000000); err != nil {
		t.Fatalf("MarkViewed: %v", err)
	}
	ts, ok, err := s.LastViewed(ctx, key)
	if err != nil || !ok || ts != 1700000000000 {
		t.Fatalf("LastViewed = (%d, %v, %v)", ts, ok, err)
	}
}

func TestMarkOnlyMovesForward(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := model.ConversationKey("req-1")

	s.MarkViewed(ctx, key, 2000)
	s.MarkViewed(ctx, key, 1000) // stale mark from a lagging screen

	ts, _, _ := s.LastViewed(ctx, key)
	if ts != 2000 {
		t.Fatalf("stale mark rewound the timestamp: %d", ts)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.MarkViewed(ctx, "req-1", 1000)
	s.MarkViewed(ctx, "req-2", 2000)

	ts, _, _ := s.LastViewed(ctx, "req-1")
	if ts != 1000 {
		t.Fatalf("req-1 mark = %d", ts)
	}
	ts, _, _ = s.LastViewed(ctx, "req-2")
	if ts != 2000 {
		t.Fatalf("req-2 mark = %d", ts)
	}
}

func TestUnreadCount(t *testing.T) {
	snap := model.ThreadSnapshot{
		Messages: []model.Message{
			{ID: "m1", Sender: model.PartyPartner, TimestampMillis: 1000},
			{ID: "m2", Sender: model.PartyUser, TimestampMillis: 1500},
			{ID: "m3", Sender: model.PartyPartner, TimestampMillis: 2000},
			{ID: "m4", Sender: model.PartyPartner, TimestampMillis: 3000},
		},
	}

	if n := UnreadCount(snap, 1500, model.PartyUser); n != 2 {
		t.Fatalf("unread = %d, want 2 (own messages never count)", n)
	}
	if n := UnreadCount(snap, 0, model.PartyUser); n != 3 {
		t.Fatalf("unread with no mark = %d, want 3", n)
	}
	if n := UnreadCount(snap, 3000, model.PartyUser); n != 0 {
		t.Fatalf("unread fully viewed = %d, want 0", n)
	}
}
