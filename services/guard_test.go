package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClaimStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	fail   bool
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{claims: make(map[string]time.Time)}
}

func (s *fakeClaimStore) TryClaim(ctx context.Context, eventID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errors.New("store unavailable")
	}
	if _, ok := s.claims[eventID]; ok {
		return false, nil
	}
	s.claims[eventID] = at
	return true, nil
}

func (s *fakeClaimStore) ReleaseClaim(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, eventID)
	return nil
}

func (s *fakeClaimStore) claimed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claims[eventID]
	return ok
}

func TestEnsureSentOnceConcurrent(t *testing.T) {
	guard := NewNotificationGuard(newFakeClaimStore())

	var calls int32
	send := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // hold the in-flight slot open
		return nil
	}

	const n = 25
	var wg sync.WaitGroup
	sent := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := guard.EnsureSentOnce(context.Background(), "ev-1", "entry:ev-1", send)
			if err != nil {
				t.Errorf("EnsureSentOnce: %v", err)
			}
			sent[i] = ok
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("send called %d times, want 1", got)
	}
	// Every caller saw the single in-flight result as a successful send.
	for i, ok := range sent {
		if !ok {
			t.Fatalf("caller %d did not observe the send", i)
		}
	}
}

func TestEnsureSentOnceAlreadyClaimed(t *testing.T) {
	store := newFakeClaimStore()
	store.claims["ev-2"] = time.Now().Add(-time.Minute)
	guard := NewNotificationGuard(store)

	called := false
	ok, err := guard.EnsureSentOnce(context.Background(), "ev-2", "entry:ev-2", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("EnsureSentOnce: %v", err)
	}
	if ok {
		t.Fatal("reported a send for an already-claimed event")
	}
	if called {
		t.Fatal("send invoked despite existing claim")
	}
}

func TestEnsureSentOnceReleasesClaimOnFailure(t *testing.T) {
	store := newFakeClaimStore()
	guard := NewNotificationGuard(store)

	sendErr := errors.New("channel down")
	_, err := guard.EnsureSentOnce(context.Background(), "ev-3", "entry:ev-3", func(ctx context.Context) error {
		return sendErr
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("got err %v, want %v", err, sendErr)
	}
	if store.claimed("ev-3") {
		t.Fatal("claim not released after failed send")
	}

	// A retry after the failure must be able to deliver.
	ok, err := guard.EnsureSentOnce(context.Background(), "ev-3", "entry:ev-3:retry", func(ctx context.Context) error {
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("retry did not send: ok=%v err=%v", ok, err)
	}
}

func TestEnsureSentOnceStoreError(t *testing.T) {
	store := newFakeClaimStore()
	store.fail = true
	guard := NewNotificationGuard(store)

	_, err := guard.EnsureSentOnce(context.Background(), "ev-4", "entry:ev-4", func(ctx context.Context) error {
		t.Fatal("send must not run when the claim check fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected store error")
	}

	// The in-flight slot must be gone so later calls are not stuck.
	store.fail = false
	ok, err := guard.EnsureSentOnce(context.Background(), "ev-4", "entry:ev-4", func(ctx context.Context) error {
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("follow-up call did not send: ok=%v err=%v", ok, err)
	}
}
