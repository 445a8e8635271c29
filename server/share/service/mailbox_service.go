package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"share_server/server/common/errs"
	"share_server/server/common/metrics"
	"share_server/server/share/domain"
)

const defaultSpillBytes = 64 << 10

var (
	ErrEmptyRecipients   = fmt.Errorf("%w: recipientIds must not be empty", errs.ErrValidation)
	ErrTooManyRecipients = fmt.Errorf("%w: too many recipients", errs.ErrValidation)
	ErrTitleTooLong      = fmt.Errorf("%w: title is too long", errs.ErrValidation)
)

type MailboxOptions struct {
	Cache CountCache
	// Content enables spilling bodies larger than SpillBytes to object storage.
	Content    ContentStore
	SpillBytes int
	Events     EventPublisher
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// MailboxService is the store-and-forward core. A share stays pending until
// its recipient acknowledges it or its sender cancels it; reads never change
// its state.
type MailboxService struct {
	shares     ShareStore
	cache      CountCache
	content    ContentStore
	spillBytes int
	events     EventPublisher
	notifier   Notifier
	metrics    *metrics.Metrics
	log        *zap.Logger
	newKey     func() string
}

func NewMailboxService(shares ShareStore, opts MailboxOptions) *MailboxService {
	s := &MailboxService{
		shares:     shares,
		cache:      opts.Cache,
		content:    opts.Content,
		spillBytes: opts.SpillBytes,
		events:     opts.Events,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		log:        opts.Log,
		newKey:     func() string { return "shares/" + uuid.NewString() + ".txt" },
	}
	if s.cache == nil {
		s.cache = NoopCountCache{}
	}
	if s.spillBytes <= 0 {
		s.spillBytes = defaultSpillBytes
	}
	if s.events == nil {
		s.events = NoopPublisher{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Send enqueues one share for recipientID. There is no contact check.
func (s *MailboxService) Send(ctx context.Context, senderID, recipientID int64, title, content string) (domain.SendResult, error) {
	if runeLen(title) > domain.MaxTitleLength {
		return domain.SendResult{}, ErrTitleTooLong
	}
	res, err := s.enqueue(ctx, senderID, recipientID, title, content)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("send share: %w", err)
	}
	s.afterSend(ctx, senderID, title, []domain.SendResult{res})
	return res, nil
}

// SendMany fans one note out as independent shares, one per distinct
// recipient, in input order. Unknown recipients are skipped. Any other error
// stops the loop; shares already created stay in place.
func (s *MailboxService) SendMany(ctx context.Context, senderID int64, recipientIDs []int64, title, content string) ([]domain.SendResult, error) {
	if len(recipientIDs) == 0 {
		return nil, ErrEmptyRecipients
	}
	ids := dedupeIDs(recipientIDs)
	if len(ids) > domain.MaxRecipients {
		return nil, ErrTooManyRecipients
	}
	if runeLen(title) > domain.MaxTitleLength {
		return nil, ErrTitleTooLong
	}

	results := make([]domain.SendResult, 0, len(ids))
	for _, recipientID := range ids {
		res, err := s.enqueue(ctx, senderID, recipientID, title, content)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			s.afterSend(ctx, senderID, title, results)
			return nil, fmt.Errorf("send share to %d: %w", recipientID, err)
		}
		results = append(results, res)
	}
	s.afterSend(ctx, senderID, title, results)
	return results, nil
}

func (s *MailboxService) enqueue(ctx context.Context, senderID, recipientID int64, title, content string) (domain.SendResult, error) {
	ns := domain.NewShare{SenderID: senderID, RecipientID: recipientID, Title: title, Content: content}
	if s.content != nil && len(content) > s.spillBytes {
		key := s.newKey()
		if err := s.content.Put(ctx, key, content); err != nil {
			return domain.SendResult{}, fmt.Errorf("store content: %w", err)
		}
		ns.Content = ""
		ns.ContentRef = key
	}

	res, err := s.shares.Create(ctx, ns)
	if err != nil {
		if ns.ContentRef != "" {
			s.deleteContent(ctx, ns.ContentRef)
		}
		return domain.SendResult{}, err
	}
	return res, nil
}

func (s *MailboxService) afterSend(ctx context.Context, senderID int64, title string, results []domain.SendResult) {
	if len(results) == 0 {
		return
	}
	recipients := make([]int64, 0, len(results))
	for _, res := range results {
		recipients = append(recipients, res.RecipientID)
	}
	s.invalidate(ctx, recipients...)

	for _, res := range results {
		s.notifier.NotifyUser(res.RecipientID, map[string]any{
			"type":      "share.received",
			"id":        res.ID,
			"senderId":  senderID,
			"title":     title,
			"createdAt": res.CreatedAt,
		})
		s.publish(ctx, "share.sent", map[string]any{
			"event":        "share.sent",
			"share_id":     res.ID,
			"sender_id":    senderID,
			"recipient_id": res.RecipientID,
			"created_at":   res.CreatedAt,
		})
	}
	s.metrics.ShareEvent("sent", len(results))
}

// Inbox lists every pending share addressed to userID.
func (s *MailboxService) Inbox(ctx context.Context, userID int64) ([]domain.PendingShare, error) {
	items, err := s.shares.ListForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	out := items[:0]
	for _, item := range items {
		err := s.hydrate(ctx, &item)
		if errors.Is(err, errs.ErrNotFound) {
			kept, ok, rerr := s.resolveMissingContent(ctx, userID, item)
			if rerr != nil {
				return nil, rerr
			}
			if ok {
				out = append(out, kept)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// InboxItem returns errs.ErrNotFound both for a missing share and for a share
// addressed to someone else.
func (s *MailboxService) InboxItem(ctx context.Context, userID, shareID int64) (domain.PendingShare, error) {
	item, err := s.shares.GetForRecipient(ctx, userID, shareID)
	if err != nil {
		return domain.PendingShare{}, fmt.Errorf("get inbox item %d: %w", shareID, err)
	}
	err = s.hydrate(ctx, &item)
	if errors.Is(err, errs.ErrNotFound) {
		kept, ok, rerr := s.resolveMissingContent(ctx, userID, item)
		if rerr != nil {
			return domain.PendingShare{}, rerr
		}
		if !ok {
			return domain.PendingShare{}, fmt.Errorf("get inbox item %d: %w", shareID, errs.ErrNotFound)
		}
		return kept, nil
	}
	if err != nil {
		return domain.PendingShare{}, err
	}
	return item, nil
}

// resolveMissingContent handles a share whose stored body is gone. Bodies are
// deleted after their row, so ok is false when the row is gone too. A
// surviving row comes back with empty content.
func (s *MailboxService) resolveMissingContent(ctx context.Context, userID int64, item domain.PendingShare) (domain.PendingShare, bool, error) {
	_, err := s.shares.GetForRecipient(ctx, userID, item.ID)
	if errors.Is(err, errs.ErrNotFound) {
		return domain.PendingShare{}, false, nil
	}
	if err != nil {
		return domain.PendingShare{}, false, fmt.Errorf("recheck share %d: %w", item.ID, err)
	}
	s.log.Error("share content missing",
		zap.Int64("share_id", item.ID),
		zap.String("content_ref", item.ContentRef))
	item.Content = ""
	return item, true, nil
}

func (s *MailboxService) hydrate(ctx context.Context, item *domain.PendingShare) error {
	if item.ContentRef == "" {
		return nil
	}
	if s.content == nil {
		return fmt.Errorf("share %d: content store is not configured", item.ID)
	}
	body, err := s.content.Get(ctx, item.ContentRef)
	if err != nil {
		return fmt.Errorf("load content for share %d: %w", item.ID, err)
	}
	item.Content = body
	return nil
}

// Acknowledge deletes the share if userID is its recipient. It reports false
// when there was nothing to delete, including on a repeated ack.
func (s *MailboxService) Acknowledge(ctx context.Context, userID, shareID int64) (bool, error) {
	removed, ok, err := s.shares.DeleteForRecipient(ctx, userID, shareID)
	if err != nil {
		return false, fmt.Errorf("acknowledge share %d: %w", shareID, err)
	}
	if ok {
		s.afterRemove(ctx, removed, "acknowledged")
	}
	return ok, nil
}

// Cancel deletes the share if senderID sent it and it is still pending.
func (s *MailboxService) Cancel(ctx context.Context, senderID, shareID int64) (bool, error) {
	removed, ok, err := s.shares.DeleteForSender(ctx, senderID, shareID)
	if err != nil {
		return false, fmt.Errorf("cancel share %d: %w", shareID, err)
	}
	if ok {
		s.afterRemove(ctx, removed, "cancelled")
	}
	return ok, nil
}

func (s *MailboxService) afterRemove(ctx context.Context, removed domain.RemovedShare, outcome string) {
	if removed.ContentRef != "" {
		s.deleteContent(ctx, removed.ContentRef)
	}
	s.invalidate(ctx, removed.RecipientID)
	s.notifier.NotifyUser(removed.RecipientID, map[string]any{
		"type": "share.removed",
		"id":   removed.ID,
	})
	key := "share." + outcome
	s.publish(ctx, key, map[string]any{
		"event":        key,
		"share_id":     removed.ID,
		"sender_id":    removed.SenderID,
		"recipient_id": removed.RecipientID,
	})
	s.metrics.ShareEvent(outcome, 1)
}

// InboxCount serves from the count cache when possible. Cache failures only
// cost a query.
func (s *MailboxService) InboxCount(ctx context.Context, userID int64) (int64, error) {
	n, ok, gen, cacheErr := s.cache.Get(ctx, userID)
	if cacheErr != nil {
		s.log.Warn("inbox count cache read failed", zap.Int64("user_id", userID), zap.Error(cacheErr))
	}
	if ok {
		return n, nil
	}

	n, err := s.shares.CountForRecipient(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count inbox: %w", err)
	}
	if cacheErr != nil {
		return n, nil
	}
	if err := s.cache.Set(ctx, userID, n, gen); err != nil {
		s.log.Warn("inbox count cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return n, nil
}

func (s *MailboxService) invalidate(ctx context.Context, userIDs ...int64) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.log.Warn("inbox count cache invalidate failed", zap.Int64s("user_ids", userIDs), zap.Error(err))
	}
}

func (s *MailboxService) deleteContent(ctx context.Context, key string) {
	if s.content == nil {
		return
	}
	if err := s.content.Delete(ctx, key); err != nil {
		s.log.Warn("delete share content failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *MailboxService) publish(ctx context.Context, key string, payload any) {
	if err := s.events.Publish(ctx, key, payload); err != nil {
		s.log.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}
