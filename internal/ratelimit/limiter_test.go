package ratelimit

import (
	"testing"
	"time"
)

func TestPerMinuteBurst(t *testing.T) {
	l := PerMinute(3)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		if !l.Allow("wallet-a", now) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("wallet-a", now) {
		t.Fatalf("fourth request in the same instant should be limited")
	}
	if !l.Allow("wallet-b", now) {
		t.Fatalf("other keys have their own bucket")
	}
	if !l.Allow("wallet-a", now.Add(21*time.Second)) {
		t.Fatalf("bucket should refill after 20s")
	}
}

func TestIdleBucketsAreEvicted(t *testing.T) {
	l := New(1, 1, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("stale", start)
	later := start.Add(time.Hour)
	for i := 0; i < 511; i++ {
		l.Allow("fresh", later)
	}
	if l.Len() != 1 {
		t.Fatalf("expected stale bucket to be evicted, have %d keys", l.Len())
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow("x", time.Now()) || PerMinute(0) != nil {
		t.Fatalf("nil limiter must allow everything")
	}
}
