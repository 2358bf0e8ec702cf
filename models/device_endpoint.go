package models

import "time"

const (
	TokenClassStandard = "standard"
	TokenClassCall     = "call" // VoIP-class token, can wake the app for an incoming call

	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// DeviceEndpoint is one registered push destination for a user. The token
// string is globally unique: re-registering a token under another user
// reassigns the row (shared tablet in the lobby handed to a new doorman),
// it never duplicates it.
type DeviceEndpoint struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   `gorm:"index"`
	Token        string `gorm:"uniqueIndex;size:512;not null"`
	Platform     string `gorm:"size:16"` // "android" | "ios"
	TokenClass   string `gorm:"size:16;default:standard"`
	Environment  string `gorm:"size:16;default:production"`
	EndpointARN  string `gorm:"size:256"`
	Enabled      bool   `gorm:"default:true"`
	RegisteredAt time.Time
	UpdatedAt    time.Time
}
