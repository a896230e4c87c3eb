package chatws

import (
	"testing"
	"time"
)

func TestBackgroundKeepAliveExtendOnlyIfLater(t *testing.T) {
	var k backgroundKeepAlive
	base := time.Now()

	k.Extend(DidReceivePush, base) // until = base+20s
	if !k.Active(base.Add(19 * time.Second)) {
		t.Fatal("expected keep-alive active just before window ends")
	}

	k.Extend(ReceiveResponse, base.Add(time.Second)) // until = base+6s, strictly earlier, ignored
	if !k.Active(base.Add(19 * time.Second)) {
		t.Fatal("shorter window must not shrink the recorded until")
	}

	if k.Active(base.Add(21 * time.Second)) {
		t.Fatal("expected keep-alive inactive after window elapses")
	}
}

func TestBackgroundKeepAliveReset(t *testing.T) {
	var k backgroundKeepAlive
	now := time.Now()
	k.Extend(DidReceivePush, now)
	k.Reset()
	if k.Active(now) {
		t.Fatal("expected keep-alive inactive immediately after Reset")
	}
}

func TestTokenSetAccounting(t *testing.T) {
	s := newTokenSet()
	a := s.Make()
	b := s.Make()
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	s.Remove(a)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	s.Remove(a) // already removed, must be a no-op
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after redundant remove", s.Len())
	}
	s.Remove(b)
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}
