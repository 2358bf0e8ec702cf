package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// ClaimStore persists the at-most-once marker for an entry event. TryClaim
// must be atomic at the database: "set the claim if and only if it is still
// null" in one statement, reporting whether this caller won.
type ClaimStore interface {
	TryClaim(ctx context.Context, eventID string, at time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, eventID string) error
}

type inflightSend struct {
	done chan struct{}
	sent bool
	err  error
}

// NotificationGuard wraps an external-channel send so a given entry event is
// delivered at most once. Two layers: an in-memory in-flight map collapses
// concurrent callers inside this process (a UI action and a change-feed
// callback racing within milliseconds), and the persisted claim arbitrates
// across processes.
type NotificationGuard struct {
	mu       sync.Mutex
	inflight map[string]*inflightSend
	claims   ClaimStore
}

func NewNotificationGuard(claims ClaimStore) *NotificationGuard {
	return &NotificationGuard{
		inflight: make(map[string]*inflightSend),
		claims:   claims,
	}
}

// EnsureSentOnce invokes send at most once per event. The returned bool
// reports whether this call actually performed the send; false with a nil
// error means someone else already had (or has) the claim.
//
// If send fails the claim is released so a later retry can deliver.
func (g *NotificationGuard) EnsureSentOnce(ctx context.Context, eventID, requestKey string, send func(context.Context) error) (bool, error) {
	g.mu.Lock()
	if fl, ok := g.inflight[requestKey]; ok {
		g.mu.Unlock()
		select {
		case <-fl.done:
			return fl.sent, fl.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	fl := &inflightSend{done: make(chan struct{})}
	g.inflight[requestKey] = fl
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inflight, requestKey)
		g.mu.Unlock()
		close(fl.done)
	}()

	now := time.Now()
	claimed, err := g.claims.TryClaim(ctx, eventID, now)
	if err != nil {
		fl.err = err
		return false, err
	}
	if !claimed {
		// Another process won the claim. Logged for audit, not an error.
		log.Printf("notification for event %s already claimed, skipping send (request %s at %s)",
			eventID, requestKey, now.Format(time.RFC3339Nano))
		return false, nil
	}

	if err := send(ctx); err != nil {
		if relErr := g.claims.ReleaseClaim(ctx, eventID); relErr != nil {
			log.Printf("failed to release claim for event %s after send error: %v", eventID, relErr)
		}
		fl.err = err
		return false, err
	}

	fl.sent = true
	return true, nil
}
