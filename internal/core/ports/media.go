package ports

import (
	"context"

	"pairnet/internal/core/domain"
)

// MediaSession is one point-to-point audio/video connection between two
// paired participants. A fresh session is required per partner; local media
// tracks outlive it (they belong to the room, not the pairing).
type MediaSession interface {
	// Connect starts the handshake. The initiator creates the offer; the
	// other side waits for it. Signaling payloads flow through the
	// SignalSender the session was built with.
	Connect(ctx context.Context) error
	// HandleSignal feeds a payload relayed from the remote side.
	HandleSignal(ctx context.Context, payload []byte) error
	OnConnected(fn func())
	OnStream(fn func(trackID string, kind string))
	OnError(fn func(err error))
	// Destroy tears the connection down. Idempotent; local tracks are not
	// released.
	Destroy() error
}

// MediaSessionFactory builds a media session for one pairing.
type MediaSessionFactory interface {
	NewSession(ctx context.Context, self, remote domain.ParticipantID, isInitiator bool) (MediaSession, error)
}
