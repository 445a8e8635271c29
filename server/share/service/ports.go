package service

import (
	"context"

	"share_server/server/share/domain"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByDeviceID(ctx context.Context, deviceID string) (domain.User, error)
	Create(ctx context.Context, deviceID string) (domain.User, error)
	UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (domain.User, error)
	Search(ctx context.Context, pattern string, excludeUserID int64, limit int) ([]domain.PublicUser, error)
	FindByPhones(ctx context.Context, phones []string, excludeUserID int64) ([]domain.PublicUser, error)
}

type ContactStore interface {
	List(ctx context.Context, ownerID int64) ([]domain.Contact, error)
	Add(ctx context.Context, ownerID, targetID int64, mutual bool) (domain.Contact, error)
	Remove(ctx context.Context, ownerID, edgeID int64) (bool, error)
}

type ShareStore interface {
	Create(ctx context.Context, s domain.NewShare) (domain.SendResult, error)
	ListForRecipient(ctx context.Context, recipientID int64) ([]domain.PendingShare, error)
	GetForRecipient(ctx context.Context, recipientID, shareID int64) (domain.PendingShare, error)
	CountForRecipient(ctx context.Context, recipientID int64) (int64, error)
	DeleteForRecipient(ctx context.Context, recipientID, shareID int64) (domain.RemovedShare, bool, error)
	DeleteForSender(ctx context.Context, senderID, shareID int64) (domain.RemovedShare, bool, error)
}

// EventPublisher is satisfied by *mq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// CountCache is satisfied by *cache.InboxCounts.
// Get returns a generation token that Set uses to drop writes made stale by an
// Invalidate in between.
type CountCache interface {
	Get(ctx context.Context, userID int64) (count int64, ok bool, gen int64, err error)
	Set(ctx context.Context, userID, count, gen int64) error
	Invalidate(ctx context.Context, userIDs ...int64) error
}

// ContentStore is satisfied by *object.ContentStore.
type ContentStore interface {
	Put(ctx context.Context, key, content string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Notifier delivers push hints to a user's live connections.
type Notifier interface {
	NotifyUser(userID int64, payload any)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

type NoopCountCache struct{}

func (NoopCountCache) Get(context.Context, int64) (int64, bool, int64, error) { return 0, false, 0, nil }
func (NoopCountCache) Set(context.Context, int64, int64, int64) error          { return nil }
func (NoopCountCache) Invalidate(context.Context, ...int64) error              { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyUser(int64, any) {}
