package services

import (
	"context"
	"errors"
	"log"
	"time"

	"portaria-backend/models"
	"portaria-backend/utils"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound   = errors.New("entry event not found")
	ErrAlreadyResolved = errors.New("entry event already resolved")
)

// EventStore owns the entry_events table and feeds the change stream. The
// claim and resolve writes are conditional single statements: the affected
// row count tells the caller whether it won against concurrent writers.
type EventStore struct {
	db   *gorm.DB
	feed *EntryFeed
}

func NewEventStore(db *gorm.DB, feed *EntryFeed) *EventStore {
	return &EventStore{db: db, feed: feed}
}

func (s *EventStore) Create(ctx context.Context, ev *models.EntryEvent) error {
	if ev.ID == "" {
		ev.ID = utils.NewID()
	}
	if ev.ApprovalState == "" {
		ev.ApprovalState = models.ApprovalPending
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return err
	}
	s.publish(ctx, ev.ApartmentID, ChangeEvent{EventType: ChangeInsert, New: ev})
	return nil
}

// TryClaim marks the event's external notification as sent, but only if no
// one has claimed it yet. Returns false when another writer got there first.
func (s *EventStore) TryClaim(ctx context.Context, eventID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.EntryEvent{}).
		Where("id = ? AND notification_claim IS NULL", eventID).
		Update("notification_claim", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseClaim clears the marker after a failed send so a retry can deliver.
func (s *EventStore) ReleaseClaim(ctx context.Context, eventID string) error {
	return s.db.WithContext(ctx).
		Model(&models.EntryEvent{}).
		Where("id = ?", eventID).
		Update("notification_claim", nil).Error
}

// Resolve moves a pending event to its final approval state. A stale or
// duplicate decision (the event is no longer pending) is rejected with
// ErrAlreadyResolved, never silently overwritten.
func (s *EventStore) Resolve(ctx context.Context, eventID, state string, respondedBy uint, reason, destination string) (*models.EntryEvent, error) {
	now := time.Now()
	updates := map[string]any{
		"approval_state": state,
		"responded_by":   respondedBy,
		"responded_at":   now,
	}
	if reason != "" {
		updates["rejection_reason"] = reason
	}
	if destination != "" {
		updates["delivery_destination"] = destination
	}

	res := s.db.WithContext(ctx).
		Model(&models.EntryEvent{}).
		Where("id = ? AND approval_state = ?", eventID, models.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.EntryEvent
		err := s.db.WithContext(ctx).First(&existing, "id = ?", eventID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrAlreadyResolved
	}

	var ev models.EntryEvent
	if err := s.db.WithContext(ctx).First(&ev, "id = ?", eventID).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, ev.ApartmentID, ChangeEvent{EventType: ChangeUpdate, New: &ev})
	return &ev, nil
}

// PendingForApartment lists the open approvals a resident still has to act
// on, newest first. Expired windows are filtered out.
func (s *EventStore) PendingForApartment(ctx context.Context, apartmentID uint) ([]models.EntryEvent, error) {
	var events []models.EntryEvent
	err := s.db.WithContext(ctx).
		Where("apartment_id = ? AND approval_state = ? AND requires_approval = ?",
			apartmentID, models.ApprovalPending, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

func (s *EventStore) DoormanIDs(ctx context.Context, buildingID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("building_id = ? AND role = ? AND disabled = ?", buildingID, models.RoleDoorman, false).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *EventStore) ApartmentResidents(ctx context.Context, apartmentID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("apartment_id = ? AND role = ? AND disabled = ?", apartmentID, models.RoleResident, false).
		Find(&users).Error
	return users, err
}

func (s *EventStore) UserApartmentID(ctx context.Context, userID uint) (uint, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return 0, err
	}
	return user.ApartmentID, nil
}

func (s *EventStore) ApartmentByNumber(ctx context.Context, buildingID uint, number string) (*models.Apartment, error) {
	var apt models.Apartment
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND number = ?", buildingID, number).
		First(&apt).Error
	if err != nil {
		return nil, err
	}
	return &apt, nil
}

func (s *EventStore) publish(ctx context.Context, apartmentID uint, ev ChangeEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, apartmentID, ev); err != nil {
		log.Printf("failed to publish entry change: %v", err)
	}
}
