package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// EntryNotice is the out-of-band message sent to a resident's phone when an
// arrival needs their approval. This channel is metered per message, which
// is why every send goes through the idempotency guard.
type EntryNotice struct {
	EventID         string
	Kind            string
	GuestName       string
	Summary         string
	ResidentName    string
	ResidentPhone   string
	BuildingName    string
	ApartmentNumber string
}

type MessageSender interface {
	SendEntryNotice(ctx context.Context, n EntryNotice) error
}

// WhatsAppClient talks to the external messaging API. Only the thin HTTP
// wrapper lives here; templates, sessions and delivery receipts are the
// provider's problem.
type WhatsAppClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewWhatsAppClient() *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: os.Getenv("WHATSAPP_API_URL"),
		apiKey:  os.Getenv("WHATSAPP_API_KEY"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsAppClient) SendEntryNotice(ctx context.Context, n EntryNotice) error {
	msg := fmt.Sprintf("%s is waiting at %s for apartment %s. Open the app to approve or reject.",
		n.GuestName, n.BuildingName, n.ApartmentNumber)
	if n.GuestName == "" {
		msg = fmt.Sprintf("An arrival at %s needs your approval for apartment %s.",
			n.BuildingName, n.ApartmentNumber)
	}

	body, err := json.Marshal(map[string]string{
		"phone":    n.ResidentPhone,
		"name":     n.ResidentName,
		"message":  msg,
		"event_id": n.EventID,
		"type":     n.Kind,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send failed: status %d", resp.StatusCode)
	}
	return nil
}
