package services

import (
	"context"
	"encoding/json"
	"fmt"

	"portaria-backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)

// ChangeEvent is one record on the entry-event change feed. Delivery is
// at-least-once and ordering across writers is not guaranteed; consumers
// must tolerate replays (the idempotency guard exists for exactly that).
type ChangeEvent struct {
	EventType string             `json:"event_type"`
	Old       *models.EntryEvent `json:"old,omitempty"`
	New       *models.EntryEvent `json:"new,omitempty"`
}

// EntryFeed publishes entry-event changes over redis pub/sub, one channel
// per apartment.
type EntryFeed struct {
	rdb *redis.Client
}

func NewEntryFeed(rdb *redis.Client) *EntryFeed {
	return &EntryFeed{rdb: rdb}
}

func (f *EntryFeed) channel(apartmentID uint) string {
	return fmt.Sprintf("entry_events:%d", apartmentID)
}

func (f *EntryFeed) Publish(ctx context.Context, apartmentID uint, ev ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel(apartmentID), raw).Err()
}

func (f *EntryFeed) Subscribe(ctx context.Context, apartmentID uint) *redis.PubSub {
	return f.rdb.Subscribe(ctx, f.channel(apartmentID))
}
