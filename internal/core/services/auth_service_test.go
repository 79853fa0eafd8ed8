package services_test

import (
	"testing"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomTokenRoundTrip(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)

	token, err := auth.GenerateRoomToken("alice", "event-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), claims.UserID)
	assert.Equal(t, domain.EventID("event-1"), claims.EventID)
}

func TestRoomTokenWrongSecret(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)
	other := services.NewAuthService("different-secret", time.Hour)

	token, err := auth.GenerateRoomToken("alice", "event-1")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestRoomTokenExpired(t *testing.T) {
	auth := services.NewAuthService("test-secret", -time.Minute)

	token, err := auth.GenerateRoomToken("alice", "event-1")
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrExpiredToken)
}

func TestRoomTokenGarbage(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)

	_, err := auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}
