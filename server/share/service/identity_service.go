package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"share_server/server/common/errs"
	"share_server/server/share/domain"
)

const (
	maxDeviceIDLength = 255
	maxUsernameLength = 64
	maxPhoneLength    = 32
)

var (
	ErrDeviceIDTooLong = fmt.Errorf("%w: device id is too long", errs.ErrValidation)
	ErrUsernameTooLong = fmt.Errorf("%w: username is too long", errs.ErrValidation)
	ErrPhoneTooLong    = fmt.Errorf("%w: phone is too long", errs.ErrValidation)
	ErrTooManyPhones   = fmt.Errorf("%w: too many phones", errs.ErrValidation)
)

type IdentityService struct {
	users      UserStore
	events     EventPublisher
	log        *zap.Logger
	inviteBase string
}

func NewIdentityService(users UserStore, events EventPublisher, log *zap.Logger, inviteBase string) *IdentityService {
	if events == nil {
		events = NoopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityService{
		users:      users,
		events:     events,
		log:        log,
		inviteBase: strings.TrimRight(inviteBase, "/"),
	}
}

// FindOrCreate returns the user bound to deviceID, creating one when absent.
// An empty deviceID gets a fresh server-generated id. When two callers race
// on the same device id the unique index rejects the loser, which then reads
// the winner's row and reports isNew=false.
func (s *IdentityService) FindOrCreate(ctx context.Context, deviceID string) (domain.User, bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) > maxDeviceIDLength {
		return domain.User{}, false, ErrDeviceIDTooLong
	}

	if deviceID != "" {
		u, err := s.users.GetByDeviceID(ctx, deviceID)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return domain.User{}, false, fmt.Errorf("find device: %w", err)
		}
	} else {
		deviceID = uuid.NewString()
	}

	u, err := s.users.Create(ctx, deviceID)
	if errors.Is(err, errs.ErrAlreadyExists) {
		u, err = s.users.GetByDeviceID(ctx, deviceID)
		if err != nil {
			return domain.User{}, false, fmt.Errorf("find device after conflict: %w", err)
		}
		return u, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("create user: %w", err)
	}

	s.publish(ctx, "user.created", map[string]any{
		"event":      "user.created",
		"user_id":    u.ID,
		"created_at": u.CreatedAt,
	})
	return u, true, nil
}

func (s *IdentityService) FindByID(ctx context.Context, userID int64) (domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %d: %w", userID, err)
	}
	return u, nil
}

func (s *IdentityService) FindByDeviceID(ctx context.Context, deviceID string) (domain.User, error) {
	u, err := s.users.GetByDeviceID(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.User{}, fmt.Errorf("find device: %w", err)
	}
	return u, nil
}

// UpdateProfile applies a partial update. A field set to an empty string
// clears it.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID int64, upd domain.ProfileUpdate) (domain.User, error) {
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if runeLen(name) > maxUsernameLength {
			return domain.User{}, ErrUsernameTooLong
		}
		upd.Username = &name
	}
	if upd.Phone != nil {
		phone := normalizePhone(*upd.Phone)
		if len(phone) > maxPhoneLength {
			return domain.User{}, ErrPhoneTooLong
		}
		upd.Phone = &phone
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// Search returns at most domain.SearchLimit users whose username or phone
// contains query. Queries shorter than domain.MinSearchQueryLen runes return
// an empty list.
func (s *IdentityService) Search(ctx context.Context, query string, excludeUserID int64) ([]domain.PublicUser, error) {
	query = strings.TrimSpace(query)
	if runeLen(query) < domain.MinSearchQueryLen {
		return []domain.PublicUser{}, nil
	}
	items, err := s.users.Search(ctx, escapeLike(query), excludeUserID, domain.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return items, nil
}

func (s *IdentityService) FindByPhones(ctx context.Context, phones []string, excludeUserID int64) ([]domain.PublicUser, error) {
	if len(phones) > domain.MaxPhoneBatch {
		return nil, ErrTooManyPhones
	}
	normalized := normalizePhones(phones)
	if len(normalized) == 0 {
		return []domain.PublicUser{}, nil
	}
	items, err := s.users.FindByPhones(ctx, normalized, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("find by phones: %w", err)
	}
	return items, nil
}

func (s *IdentityService) InviteLink(userID int64) string {
	return s.inviteBase + "/" + strconv.FormatInt(userID, 10)
}

func (s *IdentityService) publish(ctx context.Context, key string, payload any) {
	if err := s.events.Publish(ctx, key, payload); err != nil {
		s.log.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}
