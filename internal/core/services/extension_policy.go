package services

import (
	"context"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// singleSidedPolicy approves every first extension request without asking
// the partner. Mutual consent is a drop-in replacement for this interface.
type singleSidedPolicy struct{}

// NewSingleSidedExtensionPolicy returns the auto-approve extension policy.
func NewSingleSidedExtensionPolicy() ports.ExtensionPolicy {
	return singleSidedPolicy{}
}

func (singleSidedPolicy) Approve(ctx context.Context, session *domain.Session, requester domain.ParticipantID) (bool, error) {
	return !session.Extended, nil
}
