package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portaria-backend/models"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []PushPayload
}

func (f *fakeSender) Send(ctx context.Context, endpoints []models.DeviceEndpoint, p PushPayload) DeliveryResult {
	f.mu.Lock()
	f.sends = append(f.sends, p)
	f.mu.Unlock()
	return DeliveryResult{Sent: len(endpoints)}
}

func (f *fakeSender) countType(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.sends {
		if p.Data["type"] == typ {
			n++
		}
	}
	return n
}

type fakeEndpoints struct {
	byUser map[uint][]models.DeviceEndpoint
}

func (f *fakeEndpoints) ListEndpoints(ctx context.Context, userIDs []uint, tokenClass string) ([]models.DeviceEndpoint, error) {
	var out []models.DeviceEndpoint
	for _, id := range userIDs {
		out = append(out, f.byUser[id]...)
	}
	return out, nil
}

type fakeCallStore struct {
	mu       sync.Mutex
	created  []string
	finished []string // "<id>:<status>"
}

func (f *fakeCallStore) CreateCall(ctx context.Context, call *models.CallSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, call.ID)
	return nil
}

func (f *fakeCallStore) FinishCall(ctx context.Context, callID, status string, answeredBy *uint, endedAt time.Time, duration int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, callID+":"+status)
	return nil
}

func (f *fakeCallStore) finishes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finished...)
}

func testCoordinator(interval, timeout time.Duration) (*CallCoordinator, *fakeSender, *fakeCallStore) {
	sender := &fakeSender{}
	store := &fakeCallStore{}
	eps := &fakeEndpoints{byUser: map[uint][]models.DeviceEndpoint{
		1: {{UserID: 1, Token: "t-doorman", EndpointARN: "arn:doorman", Enabled: true}},
		2: {{UserID: 2, Token: "t-resident", EndpointARN: "arn:resident", Enabled: true}},
	}}
	return NewCallCoordinator(sender, eps, store, interval, timeout), sender, store
}

func testCallData(id string) CallData {
	return CallData{
		CallID:          id,
		CallerID:        1,
		CallerName:      "Front desk",
		BuildingID:      10,
		ApartmentID:     7,
		ApartmentNumber: "701",
		ChannelName:     "intercom-10-abc",
		CalleeIDs:       []uint{2},
	}
}

func TestStartCallRingsUntilAnswered(t *testing.T) {
	coord, sender, store := testCoordinator(10*time.Millisecond, time.Second)

	if err := coord.StartCall(context.Background(), testCallData("call-1")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if !coord.HasActiveCall("call-1") {
		t.Fatal("call not active after StartCall")
	}

	time.Sleep(45 * time.Millisecond)
	if n := sender.countType("intercom_call"); n < 2 {
		t.Fatalf("expected repeated ring payloads, got %d", n)
	}

	if err := coord.Answer(context.Background(), "call-1", 2); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	ringsAtAnswer := sender.countType("intercom_call")

	// No further ring payloads after the terminal transition.
	time.Sleep(50 * time.Millisecond)
	if n := sender.countType("intercom_call"); n != ringsAtAnswer {
		t.Fatalf("ring payloads kept flowing after answer: %d -> %d", ringsAtAnswer, n)
	}
	if coord.HasActiveCall("call-1") {
		t.Fatal("call still active after answer")
	}
	if got := store.finishes(); len(got) != 1 || got[0] != "call-1:"+models.CallAnswered {
		t.Fatalf("backend transitions = %v, want exactly one answered", got)
	}
	if n := sender.countType("call_ended"); n != 1 {
		t.Fatalf("call_ended pushes = %d, want 1", n)
	}
}

func TestCallExpiresOnTimeout(t *testing.T) {
	coord, sender, store := testCoordinator(10*time.Millisecond, 80*time.Millisecond)

	if err := coord.StartCall(context.Background(), testCallData("call-2")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if got := store.finishes(); len(got) != 1 || got[0] != "call-2:"+models.CallExpired {
		t.Fatalf("backend transitions = %v, want exactly one expired", got)
	}
	if coord.HasActiveCall("") {
		t.Fatal("call still active after timeout")
	}

	// First send is immediate, then one per interval until the timeout.
	rings := sender.countType("intercom_call")
	if rings < 5 || rings > 10 {
		t.Fatalf("ring payloads = %d, want about floor(timeout/interval)=8", rings)
	}
	if n := sender.countType("call_timeout"); n != 1 {
		t.Fatalf("doorman timeout feedback sent %d times, want 1", n)
	}

	// A late answer is told the call already ended.
	if err := coord.Answer(context.Background(), "call-2", 2); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("late answer: got %v, want ErrCallNotFound", err)
	}
}

func TestDeclineStopsCall(t *testing.T) {
	coord, sender, store := testCoordinator(10*time.Millisecond, time.Second)

	if err := coord.StartCall(context.Background(), testCallData("call-3")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := coord.Decline(context.Background(), "call-3", 2); err != nil {
		t.Fatalf("Decline: %v", err)
	}

	rings := sender.countType("intercom_call")
	time.Sleep(40 * time.Millisecond)
	if n := sender.countType("intercom_call"); n != rings {
		t.Fatal("ring loop survived decline")
	}
	if got := store.finishes(); len(got) != 1 || got[0] != "call-3:"+models.CallDeclined {
		t.Fatalf("backend transitions = %v, want exactly one declined", got)
	}
}

func TestStopCallIdempotent(t *testing.T) {
	coord, _, store := testCoordinator(10*time.Millisecond, time.Second)

	if err := coord.StartCall(context.Background(), testCallData("call-4")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	coord.StopCall("call-4")
	coord.StopCall("call-4")     // second stop is a no-op
	coord.StopCall("no-such-id") // unknown id is a no-op

	if got := store.finishes(); len(got) != 1 || got[0] != "call-4:"+models.CallCancelled {
		t.Fatalf("backend transitions = %v, want exactly one cancelled", got)
	}
}

func TestStartCallNoRecipients(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeCallStore{}
	coord := NewCallCoordinator(sender, &fakeEndpoints{byUser: map[uint][]models.DeviceEndpoint{}}, store, 10*time.Millisecond, time.Second)

	err := coord.StartCall(context.Background(), testCallData("call-5"))
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("got %v, want ErrNoRecipients", err)
	}
	if len(sender.sends) != 0 {
		t.Fatal("payloads sent despite no recipients")
	}
}

func TestActiveCallAccounting(t *testing.T) {
	coord, _, _ := testCoordinator(10*time.Millisecond, time.Second)

	if coord.HasActiveCall("") {
		t.Fatal("fresh coordinator reports an active call")
	}
	if err := coord.StartCall(context.Background(), testCallData("call-6")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := coord.StartCall(context.Background(), testCallData("call-7")); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	if got := len(coord.GetActiveCalls()); got != 2 {
		t.Fatalf("active calls = %d, want 2", got)
	}
	info, ok := coord.GetCallInfo("call-6")
	if !ok || info.Data.ApartmentNumber != "701" {
		t.Fatalf("GetCallInfo = %+v, %v", info, ok)
	}

	coord.StopAllCalls()
	if coord.HasActiveCall("") {
		t.Fatal("calls still active after StopAllCalls")
	}
}
