package utils

import (
	"fmt"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// NewChannelName builds the media channel identifier carried in call push
// payloads. The receiving client joins this channel to talk to the doorman.
func NewChannelName(buildingID uint) string {
	return fmt.Sprintf("intercom-%d-%s", buildingID, uuid.NewString()[:8])
}
