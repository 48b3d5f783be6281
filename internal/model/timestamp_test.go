package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeTimestampEncodings(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"epoch seconds", int64(1700000000), 1700000000000},
		{"epoch millis", int64(1700000000000), 1700000000000},
		{"int seconds", 1700000000, 1700000000000},
		{"float millis", float64(1700000000000), 1700000000000},
		{"float seconds", float64(1700000000), 1700000000000},
		{"json number seconds", json.Number("1700000000"), 1700000000000},
		{"json number millis", json.Number("1700000000000"), 1700000000000},
		{"numeric string seconds", "1700000000", 1700000000000},
		{"numeric string millis", "1700000000000", 1700000000000},
		{"rfc3339 string", "2023-11-14T22:13:20Z", 1700000000000},
		{"parsed date", time.Unix(1700000000, 0), 1700000000000},
		{"zero falls back to now", int64(0), now.UnixMilli()},
		{"negative falls back to now", int64(-5), now.UnixMilli()},
		{"garbage string falls back to now", "not-a-date", now.UnixMilli()},
		{"empty string falls back to now", "", now.UnixMilli()},
		{"nil falls back to now", nil, now.UnixMilli()},
		{"zero time falls back to now", time.Time{}, now.UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeTimestamp(tt.in, now)
			if got != tt.want {
				t.Errorf("normalizeTimestamp(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTimestampSecondsMillisAgree(t *testing.T) {
	// The same instant encoded both ways must normalize identically.
	now := time.Now()
	secs := normalizeTimestamp(int64(1700000000), now)
	millis := normalizeTimestamp(int64(1700000000000), now)
	if secs != millis {
		t.Fatalf("seconds form normalized to %d, millis form to %d", secs, millis)
	}
}

func TestMessageOrdering(t *testing.T) {
	a := Message{TimestampMillis: 1000}.WithSeq(1)
	b := Message{TimestampMillis: 1000}.WithSeq(2)
	c := Message{TimestampMillis: 999}.WithSeq(3)

	if !a.Less(b) {
		t.Error("equal timestamps must order by insertion sequence")
	}
	if !c.Less(a) {
		t.Error("earlier timestamp must order first regardless of sequence")
	}
	if b.Less(a) {
		t.Error("ordering must be asymmetric")
	}
}

func TestPartyOther(t *testing.T) {
	if PartyUser.Other() != PartyPartner || PartyPartner.Other() != PartyUser {
		t.Fatal("Other must flip the party")
	}
	if !PartyUser.Valid() || Party("bot").Valid() {
		t.Fatal("Valid must accept only user/partner")
	}
}
