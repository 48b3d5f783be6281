package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

// ErrHistoryUnavailable is returned when the durable message log cannot be
// fetched. Callers open the thread with zero messages instead of blocking;
// the snapshot's IsHistoryLoaded stays false so screens can offer a retry.
var ErrHistoryUnavailable = errors.New("history: unavailable")

const (
	defaultRequestTimeout = 10 * time.Second

	maxRetries     = 3
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// wireMessage mirrors the history endpoint's response rows. Timestamp is
// untyped on purpose: the endpoint has emitted seconds, millis and ISO
// strings over its lifetime.
type wireMessage struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp any    `json:"timestamp"`
}

// Loader fetches the durable message log for a conversation over REST and
// normalizes it into the domain form.
type Loader struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewLoader creates a loader against the message history service base URL.
func NewLoader(baseURL string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

// Load fetches the ordered message log for one conversation. Transient
// failures retry with bounded backoff; a final failure comes back as
// ErrHistoryUnavailable.
func (l *Loader) Load(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	endpoint := fmt.Sprintf("%s/chat/history/%s", l.baseURL, url.PathEscape(key.String()))

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
			}
			l.logger.Warn("retrying history load",
				zap.String("conversation", key.String()),
				zap.Int("attempt", attempt+1),
			)
		}

		rows, err := l.fetch(ctx, endpoint)
		if err == nil {
			msgs := make([]model.Message, 0, len(rows))
			for _, row := range rows {
				msgs = append(msgs, normalize(row, key))
			}
			l.logger.Debug("history loaded",
				zap.String("conversation", key.String()),
				zap.Int("count", len(msgs)),
			)
			return msgs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	l.logger.Error("history load failed",
		zap.String("conversation", key.String()),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, lastErr)
}

func (l *Loader) fetch(ctx context.Context, endpoint string) ([]wireMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history endpoint returned %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []wireMessage
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return rows, nil
}

func normalize(row wireMessage, key model.ConversationKey) model.Message {
	sender := model.Party(row.Sender)
	if !sender.Valid() {
		sender = model.PartyPartner
	}
	return model.Message{
		ID:              row.ID,
		ConversationKey: key,
		Sender:          sender,
		Body:            row.Body,
		TimestampMillis: model.NormalizeTimestamp(row.Timestamp),
	}
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
