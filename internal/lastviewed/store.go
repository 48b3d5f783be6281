// Package lastviewed persists the per-conversation "last viewed" timestamp
// used to compute new-message badges. It sits outside the synchronization
// core: nothing here feeds back into thread reconciliation.
package lastviewed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

// Store is a sqlite-backed key-value store of last-viewed timestamps.
type Store struct {
	db *sql.DB
}

// Open creates or opens the on-device database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS last_viewed (
			conversation_key TEXT PRIMARY KEY,
			viewed_at_millis INTEGER NOT NULL
		)
	`)
	return err
}

// MarkViewed records that the conversation was viewed at tsMillis. Older
// marks are never resurrected: the stored value only moves forward.
func (s *Store) MarkViewed(ctx context.Context, key model.ConversationKey, tsMillis int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_viewed (conversation_key, viewed_at_millis)
		VALUES (?, ?)
		ON CONFLICT(conversation_key) DO UPDATE
		SET viewed_at_millis = MAX(viewed_at_millis, excluded.viewed_at_millis)
	`, key.String(), tsMillis)
	if err != nil {
		return fmt.Errorf("mark viewed %s: %w", key, err)
	}
	return nil
}

// LastViewed returns the recorded timestamp for a conversation, or ok=false
// if it was never viewed.
func (s *Store) LastViewed(ctx context.Context, key model.ConversationKey) (int64, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT viewed_at_millis FROM last_viewed WHERE conversation_key = ?`,
		key.String(),
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last viewed %s: %w", key, err)
	}
	return ts, true, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UnreadCount counts counterparty messages newer than the last-viewed mark.
// Pure: it reads only the snapshot and the mark.
func UnreadCount(snap model.ThreadSnapshot, lastViewedMillis int64, self model.Party) int {
	n := 0
	for _, m := range snap.Messages {
		if m.Sender != self && m.TimestampMillis > lastViewedMillis {
			n++
		}
	}
	return n
}
