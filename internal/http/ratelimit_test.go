package http

import "testing"

func TestKeyedLimiterDisabled(t *testing.T) {
	l := NewKeyedLimiter(0, 5)
	for range 100 {
		if !l.Allow("anyone") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestKeyedLimiterPerKey(t *testing.T) {
	l := NewKeyedLimiter(1, 2)

	var rejected bool
	for range 10 {
		if !l.Allow("sender-a") {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("burst for one key was never rejected")
	}

	if !l.Allow("sender-b") {
		t.Error("fresh key rejected after another key's burst")
	}
}
