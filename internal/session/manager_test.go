package session

import (
	"testing"
	"time"
)

func TestTouchCreatesNewSession(t *testing.T) {
	m := NewManager(30 * time.Minute)

	s := m.Touch("5511999990000")
	if s.Stage != StageNew {
		t.Fatalf("expected stage %q, got %q", StageNew, s.Stage)
	}
}

func TestTouchRefreshesIdleTimer(t *testing.T) {
	m := NewManager(30 * time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	s := m.Touch("551199")
	s.Stage = StageWaitingChoice

	// 20 minutes later the session is still live and the timer restarts.
	m.now = func() time.Time { return base.Add(20 * time.Minute) }
	s2 := m.Touch("551199")
	if s2.Stage != StageWaitingChoice {
		t.Fatalf("expected session to survive, got stage %q", s2.Stage)
	}

	// Another 25 minutes is within the refreshed window.
	m.now = func() time.Time { return base.Add(45 * time.Minute) }
	s3 := m.Touch("551199")
	if s3.Stage != StageWaitingChoice {
		t.Fatal("sliding refresh did not extend the session")
	}
}

func TestTouchExpiresAfterTTL(t *testing.T) {
	m := NewManager(30 * time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	s := m.Touch("551199")
	s.Stage = StageWaitingChoice

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	s2 := m.Touch("551199")
	if s2.Stage != StageNew {
		t.Fatalf("expected fresh session after TTL, got stage %q", s2.Stage)
	}
}

func TestResetDiscardsLiveSession(t *testing.T) {
	m := NewManager(30 * time.Minute)

	s := m.Touch("551199")
	s.Stage = StageWaitingChoice

	s2 := m.Reset("551199")
	if s2.Stage != StageNew {
		t.Fatalf("expected stage %q after reset, got %q", StageNew, s2.Stage)
	}
}
