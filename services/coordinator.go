package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"portaria-backend/models"
)

var (
	ErrNoRecipients = errors.New("no reachable endpoints for call")
	ErrCallNotFound = errors.New("call not active")
)

// CallData describes one intercom call attempt from a doorman to the
// residents of an apartment.
type CallData struct {
	CallID          string
	CallerID        uint
	CallerName      string
	BuildingID      uint
	ApartmentID     uint
	ApartmentNumber string
	ChannelName     string
	CalleeIDs       []uint
}

type CallInfo struct {
	CallID    string
	StartedAt time.Time
	Duration  time.Duration
	Data      CallData
}

// CallCoordinator drives the ringing-call illusion: the same call payload is
// re-sent on a short interval so the callee's phone keeps presenting an
// incoming call even if individual pushes are dropped or delayed. The
// receiver deduplicates by callId; the sender repeats on purpose.
//
// Each session owns one goroutine holding its ticker and timeout timer. The
// first terminal transition (answer, decline, cancel, timeout) wins; it
// removes the session from the active map and tears both timers down before
// anything else observes the call as ended. Later transitions are no-ops.
type CallCoordinator struct {
	sender    Sender
	endpoints EndpointSource
	calls     CallStore

	ringInterval time.Duration
	timeout      time.Duration

	mu     sync.Mutex
	active map[string]*callSession
}

type callSession struct {
	data      CallData
	targets   []models.DeviceEndpoint
	payload   PushPayload
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
	terminal  bool
}

func NewCallCoordinator(sender Sender, endpoints EndpointSource, calls CallStore, ringInterval, timeout time.Duration) *CallCoordinator {
	if ringInterval <= 0 {
		ringInterval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &CallCoordinator{
		sender:       sender,
		endpoints:    endpoints,
		calls:        calls,
		ringInterval: ringInterval,
		timeout:      timeout,
		active:       make(map[string]*callSession),
	}
}

// StartCall begins ringing. The first payload goes out immediately, then the
// ring loop repeats it until a terminal transition. Zero reachable callee
// endpoints is a hard error: for the interactive call path the doorman needs
// to know nobody can pick up.
func (c *CallCoordinator) StartCall(ctx context.Context, data CallData) error {
	if data.CallID == "" {
		return errors.New("call id required")
	}

	// Restarting an in-flight call id replaces the old session.
	c.StopCall(data.CallID)

	targets, err := c.endpoints.ListEndpoints(ctx, data.CalleeIDs, "")
	if err != nil {
		return fmt.Errorf("resolve call endpoints: %w", err)
	}
	if len(targets) == 0 {
		return ErrNoRecipients
	}

	now := time.Now()
	if err := c.calls.CreateCall(ctx, &models.CallSession{
		ID:          data.CallID,
		CallerID:    data.CallerID,
		BuildingID:  data.BuildingID,
		ApartmentID: data.ApartmentID,
		ChannelName: data.ChannelName,
		Status:      models.CallRinging,
		StartedAt:   now,
	}); err != nil {
		return fmt.Errorf("persist call session: %w", err)
	}

	s := &callSession{
		data:      data,
		targets:   targets,
		payload:   callPayload(data, now),
		startedAt: now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.active[data.CallID] = s
	c.mu.Unlock()

	go c.run(s)

	log.Printf("call %s started: apartment %s, %d endpoints", data.CallID, data.ApartmentNumber, len(targets))
	return nil
}

func (c *CallCoordinator) run(s *callSession) {
	defer close(s.done)

	ticker := time.NewTicker(c.ringInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()

	c.ring(s)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			c.ring(s)
		case <-timeout.C:
			c.expire(s)
			return
		}
	}
}

func (c *CallCoordinator) ring(s *callSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := c.sender.Send(ctx, s.targets, s.payload)
	if res.Sent == 0 {
		log.Printf("call %s: ring reached no endpoints (%d failed)", s.data.CallID, res.Failed)
	}
}

// take claims the terminal transition for a call. Exactly one caller per
// session gets the non-nil result.
func (c *CallCoordinator) take(callID string) *callSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[callID]
	if !ok || s.terminal {
		return nil
	}
	s.terminal = true
	delete(c.active, callID)
	return s
}

// Answer records the callee's accept. Ringing stops before the backend write
// so no further payloads go out after the transition.
func (c *CallCoordinator) Answer(ctx context.Context, callID string, userID uint) error {
	s := c.take(callID)
	if s == nil {
		return ErrCallNotFound
	}
	close(s.stop)
	<-s.done
	c.finish(ctx, s, models.CallAnswered, &userID)
	return nil
}

// Decline records the callee's reject.
func (c *CallCoordinator) Decline(ctx context.Context, callID string, userID uint) error {
	s := c.take(callID)
	if s == nil {
		return ErrCallNotFound
	}
	close(s.stop)
	<-s.done
	c.finish(ctx, s, models.CallDeclined, &userID)
	return nil
}

// StopCall is the caller-side abort. Idempotent: stopping an unknown or
// already-terminal call is a no-op.
func (c *CallCoordinator) StopCall(callID string) {
	s := c.take(callID)
	if s == nil {
		return
	}
	close(s.stop)
	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.finish(ctx, s, models.CallCancelled, nil)
}

// expire runs on the session goroutine when the timeout timer fires. If a
// response raced the timer and won, this is a no-op.
func (c *CallCoordinator) expire(s *callSession) {
	if c.take(s.data.CallID) == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.finish(ctx, s, models.CallExpired, nil)

	// Tell the doorman nobody picked up.
	eps, err := c.endpoints.ListEndpoints(ctx, []uint{s.data.CallerID}, "")
	if err != nil || len(eps) == 0 {
		log.Printf("call %s: no caller endpoints for timeout feedback", s.data.CallID)
		return
	}
	c.sender.Send(ctx, eps, PushPayload{
		Title: "Call not answered",
		Body:  fmt.Sprintf("Apartment %s did not answer the intercom", s.data.ApartmentNumber),
		Data: map[string]string{
			"type":         "call_timeout",
			"callId":       s.data.CallID,
			"calleeTarget": s.data.ApartmentNumber,
		},
	})
}

func (c *CallCoordinator) finish(ctx context.Context, s *callSession, status string, answeredBy *uint) {
	endedAt := time.Now()
	duration := int(endedAt.Sub(s.startedAt).Seconds())

	if err := c.calls.FinishCall(ctx, s.data.CallID, status, answeredBy, endedAt, duration); err != nil {
		log.Printf("call %s: failed to persist %s transition: %v", s.data.CallID, status, err)
	}

	// A final data push dismisses the incoming-call UI on every callee
	// device, including ones still showing a stale ring from an earlier
	// payload.
	c.sender.Send(ctx, s.targets, PushPayload{
		Data: map[string]string{
			"type":   "call_ended",
			"callId": s.data.CallID,
			"reason": status,
		},
	})

	log.Printf("call %s ended: %s after %ds", s.data.CallID, status, duration)
}

func (c *CallCoordinator) GetActiveCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

// HasActiveCall reports whether the given call is still ringing; with an
// empty id it reports whether any call is.
func (c *CallCoordinator) HasActiveCall(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if callID != "" {
		_, ok := c.active[callID]
		return ok
	}
	return len(c.active) > 0
}

func (c *CallCoordinator) GetCallInfo(callID string) (CallInfo, bool) {
	c.mu.Lock()
	s, ok := c.active[callID]
	c.mu.Unlock()
	if !ok {
		return CallInfo{}, false
	}
	return CallInfo{
		CallID:    callID,
		StartedAt: s.startedAt,
		Duration:  time.Since(s.startedAt),
		Data:      s.data,
	}, true
}

// StopAllCalls cancels everything still ringing, used on shutdown.
func (c *CallCoordinator) StopAllCalls() {
	for _, id := range c.GetActiveCalls() {
		c.StopCall(id)
	}
}

func callPayload(data CallData, at time.Time) PushPayload {
	return PushPayload{
		Title:     "Intercom call",
		Body:      fmt.Sprintf("%s is calling apartment %s", callerName(data), data.ApartmentNumber),
		Sound:     "default",
		ChannelID: "intercom_calls",
		Priority:  "high",
		Badge:     1,
		Data: map[string]string{
			"type":         "intercom_call",
			"callId":       data.CallID,
			"callerName":   callerName(data),
			"calleeTarget": data.ApartmentNumber,
			"channelName":  data.ChannelName,
			"timestamp":    strconv.FormatInt(at.UnixMilli(), 10),
		},
	}
}

func callerName(data CallData) string {
	if data.CallerName != "" {
		return data.CallerName
	}
	return "Doorman"
}
