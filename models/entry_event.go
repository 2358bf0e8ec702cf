package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EntryKindVisitor  = "visitor"
	EntryKindDelivery = "delivery"
	EntryKindVehicle  = "vehicle"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
	ApprovalExpired  = "expired"
)

// EntryEvent is a visitor/delivery/vehicle arrival awaiting (or having
// received) a resident's decision. NotificationClaim is the idempotency
// marker for the out-of-band WhatsApp send: non-null means the send has
// been claimed for this event.
type EntryEvent struct {
	ID                  string `gorm:"type:uuid;primaryKey"`
	Kind                string `gorm:"size:16;not null"`
	ApartmentID         uint   `gorm:"index;not null"`
	BuildingID          uint   `gorm:"index;not null"`
	GuestName           string
	Summary             string
	RequiresApproval    bool       `gorm:"default:true"`
	NotificationClaim   *time.Time `gorm:"index"`
	ApprovalState       string     `gorm:"size:16;default:pending;index"`
	RespondedBy         *uint
	RespondedAt         *time.Time
	RejectionReason     string
	DeliveryDestination string
	Metadata            datatypes.JSON
	ExpiresAt           *time.Time
	CreatedAt           time.Time
}
