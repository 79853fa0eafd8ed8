package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

// GenerateMatchID generates a unique match record ID.
func GenerateMatchID() string {
	return fmt.Sprintf("match_%s", uuid.NewString())
}

// GenerateConnectionID generates a unique connection record ID.
func GenerateConnectionID() string {
	return fmt.Sprintf("conn_%s", uuid.NewString())
}

// GenerateRoomID generates a unique room occurrence ID.
func GenerateRoomID() string {
	return fmt.Sprintf("room_%d", time.Now().UnixNano())
}
