package notify

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryFanOut(t *testing.T) {
	r := NewRegistry()

	a1 := NewSession(1)
	a2 := NewSession(1)
	b := NewSession(2)
	r.Register(a1)
	r.Register(a2)
	r.Register(b)

	if got := len(r.ChannelsFor(1)); got != 2 {
		t.Fatalf("user 1 channels = %d, want 2", got)
	}
	if got := len(r.ChannelsFor(2)); got != 1 {
		t.Fatalf("user 2 channels = %d, want 1", got)
	}
	if !r.IsOnline(1) || !r.IsOnline(2) {
		t.Fatal("both users should be online")
	}

	r.Unregister(a1)
	if got := len(r.ChannelsFor(1)); got != 1 {
		t.Fatalf("user 1 channels after unregister = %d, want 1", got)
	}
	r.Unregister(a2)
	if r.IsOnline(1) {
		t.Fatal("user 1 should be offline after last unregister")
	}
	if got := r.ChannelsFor(1); got != nil {
		t.Fatalf("offline user channels = %v, want nil", got)
	}
}

func TestRegistryUnregisterUnknownSession(t *testing.T) {
	r := NewRegistry()
	s := NewSession(7)
	r.Unregister(s) // never registered, must not panic
	r.Register(s)
	r.Unregister(s)
	r.Unregister(s) // double unregister must not panic or close twice
}

func TestRegistrySendAfterUnregister(t *testing.T) {
	r := NewRegistry()
	s := NewSession(3)
	r.Register(s)
	sessions := r.ChannelsFor(3)
	r.Unregister(s)

	// A dispatch holding a pre-unregister snapshot must see the session as
	// offline, not panic on a closed channel.
	if sessions[0].TrySend([]byte("late")) {
		t.Fatal("send to unregistered session should report failure")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s := NewSession(userID)
				r.Register(s)
				r.ChannelsFor(userID)
				r.IsOnline(userID)
				r.Unregister(s)
			}
		}(w % 4)
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		if r.IsOnline(u) {
			t.Fatalf("user %d still online after all unregisters", u)
		}
	}
}

func TestSessionQueueOverflow(t *testing.T) {
	s := NewSession(1)
	for i := 0; ; i++ {
		if !s.TrySend([]byte(fmt.Sprintf("frame %d", i))) {
			if i == 0 {
				t.Fatal("first send should succeed")
			}
			return // full queue reported as failure, as for offline
		}
		if i > 10000 {
			t.Fatal("queue never filled")
		}
	}
}
