package services

import (
	"context"
	"fmt"
	"log"

	"portaria-backend/models"
)

// EventResolver is the slice of the event store the responder needs.
type EventResolver interface {
	Resolve(ctx context.Context, eventID, state string, respondedBy uint, reason, destination string) (*models.EntryEvent, error)
	DoormanIDs(ctx context.Context, buildingID uint) ([]uint, error)
}

type RespondInput struct {
	EventID             string
	Decision            string // "approve" | "reject"
	ResponderID         uint
	Reason              string
	DeliveryDestination string
}

// ApprovalResponder applies a resident's decision to a pending entry event
// and closes the loop by notifying the doorman devices of the outcome.
type ApprovalResponder struct {
	events    EventResolver
	endpoints EndpointSource
	sender    Sender
}

func NewApprovalResponder(events EventResolver, endpoints EndpointSource, sender Sender) *ApprovalResponder {
	return &ApprovalResponder{events: events, endpoints: endpoints, sender: sender}
}

// Respond persists the decision and returns the event's building id. A
// decision against an event that is no longer pending fails with
// ErrAlreadyResolved; the first answer always stands.
func (r *ApprovalResponder) Respond(ctx context.Context, in RespondInput) (uint, error) {
	var state string
	switch in.Decision {
	case "approve":
		state = models.ApprovalApproved
	case "reject":
		state = models.ApprovalRejected
	default:
		return 0, fmt.Errorf("invalid decision %q", in.Decision)
	}

	ev, err := r.events.Resolve(ctx, in.EventID, state, in.ResponderID, in.Reason, in.DeliveryDestination)
	if err != nil {
		return 0, err
	}

	// The resident's decision stands even if the doorman side cannot be
	// reached; everything below is best effort.
	if ev.BuildingID == 0 {
		log.Printf("entry %s: no building on record, doorman notification skipped", ev.ID)
		return 0, nil
	}

	ids, err := r.events.DoormanIDs(ctx, ev.BuildingID)
	if err != nil || len(ids) == 0 {
		log.Printf("entry %s: no doormen to notify for building %d (err=%v)", ev.ID, ev.BuildingID, err)
		return ev.BuildingID, nil
	}

	eps, err := r.endpoints.ListEndpoints(ctx, ids, "")
	if err != nil || len(eps) == 0 {
		log.Printf("entry %s: no doorman endpoints for building %d (err=%v)", ev.ID, ev.BuildingID, err)
		return ev.BuildingID, nil
	}

	if res := r.sender.Send(ctx, eps, decisionPayload(ev)); res.Sent == 0 {
		log.Printf("entry %s: decision push reached no endpoints (%d failed)", ev.ID, res.Failed)
	}
	return ev.BuildingID, nil
}

func decisionPayload(ev *models.EntryEvent) PushPayload {
	verdict := "approved"
	title := "Entry approved"
	if ev.ApprovalState == models.ApprovalRejected {
		verdict = "rejected"
		title = "Entry rejected"
	}

	who := ev.GuestName
	if who == "" {
		who = "The arrival"
	}

	return PushPayload{
		Title:    title,
		Body:     fmt.Sprintf("%s was %s by the resident", who, verdict),
		Sound:    "default",
		Priority: "high",
		Data: map[string]string{
			"type":     "entry_response",
			"eventId":  ev.ID,
			"decision": ev.ApprovalState,
			"kind":     ev.Kind,
		},
	}
}
