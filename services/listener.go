package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"portaria-backend/models"

	"github.com/redis/go-redis/v9"
)

// ResidentSource resolves who lives in an apartment.
type ResidentSource interface {
	ApartmentResidents(ctx context.Context, apartmentID uint) ([]models.User, error)
}

// EntryListener consumes the entry-event change feed for one apartment and
// dispatches: out-of-band notice through the guard, push fan-out through the
// gateway, and pending-list bookkeeping. It validates nothing; decisions
// belong to the approval responder.
type EntryListener struct {
	feed      *EntryFeed
	guard     *NotificationGuard
	sender    Sender
	endpoints EndpointSource
	residents ResidentSource
	messenger MessageSender
	hub       *Hub

	mu      sync.Mutex
	pending map[string]models.EntryEvent

	sub  *redis.PubSub
	done chan struct{}
}

func NewEntryListener(feed *EntryFeed, guard *NotificationGuard, sender Sender, endpoints EndpointSource, residents ResidentSource, messenger MessageSender, hub *Hub) *EntryListener {
	return &EntryListener{
		feed:      feed,
		guard:     guard,
		sender:    sender,
		endpoints: endpoints,
		residents: residents,
		messenger: messenger,
		hub:       hub,
		pending:   make(map[string]models.EntryEvent),
	}
}

// Listen subscribes to the apartment's change channel and starts the drain
// goroutine. Call Close to tear the subscription down; a listener left
// running keeps invoking the guard for events nobody is looking at.
func (l *EntryListener) Listen(ctx context.Context, apartmentID uint) error {
	if l.sub != nil {
		return errors.New("listener already started")
	}
	l.sub = l.feed.Subscribe(ctx, apartmentID)
	l.done = make(chan struct{})
	go l.drain()
	return nil
}

func (l *EntryListener) drain() {
	defer close(l.done)
	for msg := range l.sub.Channel() {
		var ch ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
			log.Printf("entry listener: bad change payload: %v", err)
			continue
		}
		l.dispatch(ch)
	}
}

// Close unsubscribes and waits for the drain goroutine to exit. After Close
// returns, no further sends are triggered. Safe to call more than once.
func (l *EntryListener) Close() {
	if l.sub == nil {
		return
	}
	_ = l.sub.Close()
	<-l.done
	l.sub = nil
}

func (l *EntryListener) dispatch(ch ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch ch.EventType {
	case ChangeInsert:
		if ch.New != nil {
			l.handleInsert(ctx, *ch.New)
		}
	case ChangeUpdate:
		if ch.New != nil {
			l.handleUpdate(ctx, *ch.New)
		}
	}
}

func (l *EntryListener) handleInsert(ctx context.Context, ev models.EntryEvent) {
	if !ev.RequiresApproval || ev.ApprovalState != models.ApprovalPending {
		return
	}

	residents, err := l.residents.ApartmentResidents(ctx, ev.ApartmentID)
	if err != nil {
		log.Printf("entry %s: failed to resolve residents: %v", ev.ID, err)
		return
	}
	if len(residents) == 0 {
		log.Printf("entry %s: no residents for apartment %d", ev.ID, ev.ApartmentID)
		return
	}

	l.notifyOutOfBand(ctx, ev, residents)

	userIDs := make([]uint, 0, len(residents))
	for _, u := range residents {
		userIDs = append(userIDs, u.ID)
	}

	eps, err := l.endpoints.ListEndpoints(ctx, userIDs, "")
	if err != nil {
		log.Printf("entry %s: failed to resolve endpoints: %v", ev.ID, err)
	} else if res := l.sender.Send(ctx, eps, entryPayload(ev)); res.Sent == 0 {
		// Background path: unreachable residents are logged, not surfaced.
		log.Printf("entry %s: push reached no endpoints (%d failed)", ev.ID, res.Failed)
	}

	l.mu.Lock()
	l.pending[ev.ID] = ev
	l.mu.Unlock()

	if l.hub != nil {
		for _, id := range userIDs {
			l.hub.Broadcast(id, map[string]any{"kind": "entry.pending", "event": ev})
		}
	}
}

// notifyOutOfBand sends the metered WhatsApp notice through the guard. The
// request key is derived from the event id alone so a UI action and this
// listener racing on the same event collapse to one in-flight send.
func (l *EntryListener) notifyOutOfBand(ctx context.Context, ev models.EntryEvent, residents []models.User) {
	var target *models.User
	for i := range residents {
		if residents[i].Phone != "" {
			target = &residents[i]
			break
		}
	}
	if target == nil {
		log.Printf("entry %s: no resident phone, out-of-band notice skipped", ev.ID)
		return
	}

	notice := EntryNotice{
		EventID:         ev.ID,
		Kind:            ev.Kind,
		GuestName:       ev.GuestName,
		Summary:         ev.Summary,
		ResidentName:    target.FullName,
		ResidentPhone:   target.Phone,
		ApartmentNumber: strconv.FormatUint(uint64(ev.ApartmentID), 10),
	}

	if _, err := l.guard.EnsureSentOnce(ctx, ev.ID, "entry:"+ev.ID, func(ctx context.Context) error {
		return l.messenger.SendEntryNotice(ctx, notice)
	}); err != nil {
		log.Printf("entry %s: out-of-band notice failed: %v", ev.ID, err)
	}
}

func (l *EntryListener) handleUpdate(ctx context.Context, ev models.EntryEvent) {
	if ev.ApprovalState == models.ApprovalPending {
		return
	}

	l.mu.Lock()
	_, wasPending := l.pending[ev.ID]
	delete(l.pending, ev.ID)
	l.mu.Unlock()
	if !wasPending {
		return
	}

	if l.hub != nil {
		residents, err := l.residents.ApartmentResidents(ctx, ev.ApartmentID)
		if err != nil {
			return
		}
		for _, u := range residents {
			l.hub.Broadcast(u.ID, map[string]any{"kind": "entry.resolved", "event": ev})
		}
	}
}

// PendingEvents snapshots the locally cached open approvals.
func (l *EntryListener) PendingEvents() []models.EntryEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]models.EntryEvent, 0, len(l.pending))
	for _, ev := range l.pending {
		events = append(events, ev)
	}
	return events
}

func entryPayload(ev models.EntryEvent) PushPayload {
	title := "Arrival at the front desk"
	switch ev.Kind {
	case models.EntryKindVisitor:
		title = "Visitor at the front desk"
	case models.EntryKindDelivery:
		title = "Delivery at the front desk"
	case models.EntryKindVehicle:
		title = "Vehicle at the gate"
	}

	body := ev.Summary
	if body == "" && ev.GuestName != "" {
		body = ev.GuestName + " is waiting for your approval"
	}

	return PushPayload{
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: "high",
		Data: map[string]string{
			"type":    ev.Kind,
			"eventId": ev.ID,
			"unitId":  strconv.FormatUint(uint64(ev.ApartmentID), 10),
			"summary": body,
		},
	}
}
