package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"share_server/server/common/errs"
	"share_server/server/share/domain"
)

var ErrCannotAddSelf = fmt.Errorf("%w: cannot add yourself as a contact", errs.ErrValidation)

type ContactService struct {
	contacts ContactStore
	events   EventPublisher
	log      *zap.Logger
}

func NewContactService(contacts ContactStore, events EventPublisher, log *zap.Logger) *ContactService {
	if events == nil {
		events = NoopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactService{contacts: contacts, events: events, log: log}
}

func (s *ContactService) List(ctx context.Context, userID int64) ([]domain.Contact, error) {
	items, err := s.contacts.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return items, nil
}

// Add links ownerID to targetID. With mutual set the reverse edge is created
// too, and an already existing owner edge is not a conflict.
func (s *ContactService) Add(ctx context.Context, ownerID, targetID int64, mutual bool) (domain.Contact, error) {
	if ownerID == targetID {
		return domain.Contact{}, ErrCannotAddSelf
	}
	c, err := s.contacts.Add(ctx, ownerID, targetID, mutual)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("add contact: %w", err)
	}
	if err := s.events.Publish(ctx, "contact.added", map[string]any{
		"event":     "contact.added",
		"owner_id":  ownerID,
		"target_id": targetID,
		"mutual":    mutual,
	}); err != nil {
		s.log.Warn("publish event failed", zap.String("key", "contact.added"), zap.Error(err))
	}
	return c, nil
}

func (s *ContactService) Remove(ctx context.Context, ownerID, edgeID int64) (bool, error) {
	ok, err := s.contacts.Remove(ctx, ownerID, edgeID)
	if err != nil {
		return false, fmt.Errorf("remove contact: %w", err)
	}
	if ok {
		if err := s.events.Publish(ctx, "contact.removed", map[string]any{
			"event":    "contact.removed",
			"owner_id": ownerID,
			"edge_id":  edgeID,
		}); err != nil {
			s.log.Warn("publish event failed", zap.String("key", "contact.removed"), zap.Error(err))
		}
	}
	return ok, nil
}
