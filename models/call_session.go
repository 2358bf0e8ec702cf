package models

import "time"

const (
	CallRinging   = "ringing"
	CallAnswered  = "answered"
	CallDeclined  = "declined"
	CallExpired   = "expired"
	CallCancelled = "cancelled"
)

// CallSession is the persisted audit record of one intercom call attempt.
// The live state (timers, ring loop) is owned by the call coordinator; this
// row only tracks how the attempt ended.
type CallSession struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	CallerID    uint   `gorm:"index"`
	BuildingID  uint   `gorm:"index"`
	ApartmentID uint   `gorm:"index"`
	ChannelName string `gorm:"size:128"`
	Status      string `gorm:"size:16;default:ringing"`
	AnsweredBy  *uint
	StartedAt   time.Time
	EndedAt     *time.Time
	Duration    int // seconds, set on the terminal transition
}
