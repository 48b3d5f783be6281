package history

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
)

func TestLoadNormalizesMixedTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/history/req-7" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		// Deliberately mixed encodings: seconds, millis, numeric string, ISO.
		fmt.Fprint(w, `[
			{"id":"m1","sender":"user","body":"hi","timestamp":1700000000},
			{"id":"m2","sender":"partner","body":"hello","timestamp":1700000001000},
			{"id":"m3","sender":"user","body":"price?","timestamp":"1700000002"},
			{"id":"m4","sender":"partner","body":"120 GEL","timestamp":"2023-11-14T22:13:23Z"}
		]`)
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil)
	msgs, err := l.Load(context.Background(), "req-7")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	want := []int64{1700000000000, 1700000001000, 1700000002000, 1700000003000}
	for i, ts := range want {
		if msgs[i].TimestampMillis != ts {
			t.Errorf("message %d timestamp = %d, want %d", i, msgs[i].TimestampMillis, ts)
		}
		if msgs[i].ConversationKey != model.ConversationKey("req-7") {
			t.Errorf("message %d key = %q", i, msgs[i].ConversationKey)
		}
	}
	if msgs[0].Sender != model.PartyUser || msgs[1].Sender != model.PartyPartner {
		t.Error("senders not decoded")
	}
}

func TestLoadRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"id":"m1","sender":"user","body":"hi","timestamp":1700000000}]`)
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil)
	msgs, err := l.Load(context.Background(), "req-7")
	if err != nil {
		t.Fatalf("Load after retries: %v", err)
	}
	if len(msgs) != 1 || calls.Load() != 3 {
		t.Fatalf("got %d messages after %d calls", len(msgs), calls.Load())
	}
}

func TestLoadFailsWithHistoryUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil)
	_, err := l.Load(context.Background(), "req-7")
	if !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("err = %v, want ErrHistoryUnavailable", err)
	}
}

func TestLoadRespectsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(srv.URL, nil)
	_, err := l.Load(ctx, "req-7")
	if !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("err = %v, want ErrHistoryUnavailable", err)
	}
}

func TestOffersClientResolvesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/requests/req-7":
			fmt.Fprint(w, `{"id":"req-7","userId":"user-9","title":"brake pads","category":"parts","status":"open"}`)
		case "/requests/req-7/offers":
			fmt.Fprint(w, `[{"id":"off-1","requestId":"req-7","partnerId":"partner-3","partnerName":"AutoHub","price":120,"status":"pending"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOffersClient(srv.URL, nil)

	req, err := c.GetRequestByID(context.Background(), "req-7")
	if err != nil {
		t.Fatalf("GetRequestByID: %v", err)
	}
	if req.UserID != "user-9" || req.Category != "parts" {
		t.Fatalf("unexpected request: %+v", req)
	}

	offers, err := c.GetOffers(context.Background(), "req-7")
	if err != nil {
		t.Fatalf("GetOffers: %v", err)
	}
	if len(offers) != 1 || offers[0].PartnerName != "AutoHub" || offers[0].Price != 120 {
		t.Fatalf("unexpected offers: %+v", offers)
	}
}
