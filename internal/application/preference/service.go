package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alerts-manage-api/internal/domain"
)

// Service reads and writes the alert-category set for a resolved identity,
// routed to the correct storage partition by channel.
//
// Writes are full-replace: the submitted set wholly replaces the stored one.
// Category strings are accepted as-is; vocabulary validation is the caller's
// concern.
type Service interface {
	Get(ctx context.Context, id domain.Identifier) ([]string, error)
	// Set replaces the stored categories and returns the new set. A missing
	// chat identity is lazily created as an unverified placeholder so a user
	// can stage preferences before completing verification; missing phone
	// and platform identities fail domain.ErrNotFound.
	Set(ctx context.Context, id domain.Identifier, alerts []string) ([]string, error)
}

type subscriberStore interface {
	GetByPhone(ctx context.Context, e164 string) (*domain.Subscriber, error)
	GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Subscriber, error)
	SetAlerts(ctx context.Context, subscriberID string, alerts []string) error
}

type chatStore interface {
	Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error)
	Put(ctx context.Context, c *domain.ChatSubscriber) error
	SetAlerts(ctx context.Context, chatID int64, alerts []string) error
}

type ServiceDeps struct {
	SubscriberRepo subscriberStore
	ChatRepo       chatStore
	// RequireVerified rejects writes for identities that have not confirmed
	// a verification code. Off by default.
	RequireVerified bool
}

type service struct {
	subscribers     subscriberStore
	chats           chatStore
	requireVerified bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		subscribers:     deps.SubscriberRepo,
		chats:           deps.ChatRepo,
		requireVerified: deps.RequireVerified,
	}
}

func (s *service) Get(ctx context.Context, id domain.Identifier) ([]string, error) {
	switch id.Channel {
	case domain.ChannelPhone:
		sub, err := s.subscribers.GetByPhone(ctx, id.Key)
		if err != nil {
			return nil, err
		}
		return normalize(sub.Alerts), nil
	case domain.ChannelPlatform:
		sub, err := s.subscribers.GetByWhopUserID(ctx, id.Key)
		if err != nil {
			return nil, err
		}
		return normalize(sub.Alerts), nil
	case domain.ChannelChat:
		chatID, ok := id.ChatID()
		if !ok {
			return nil, fmt.Errorf("malformed chat id %q: %w", id.Key, domain.ErrBadRequest)
		}
		chat, err := s.chats.Get(ctx, chatID)
		if err != nil {
			return nil, err
		}
		return normalize(chat.Alerts), nil
	default:
		return nil, fmt.Errorf("unknown channel %q: %w", id.Channel, domain.ErrBadRequest)
	}
}

func (s *service) Set(ctx context.Context, id domain.Identifier, alerts []string) ([]string, error) {
	alerts = normalize(alerts)
	switch id.Channel {
	case domain.ChannelPhone, domain.ChannelPlatform:
		var (
			sub *domain.Subscriber
			err error
		)
		if id.Channel == domain.ChannelPhone {
			sub, err = s.subscribers.GetByPhone(ctx, id.Key)
		} else {
			sub, err = s.subscribers.GetByWhopUserID(ctx, id.Key)
		}
		if err != nil {
			return nil, err
		}
		if s.requireVerified && !sub.Verified() {
			return nil, fmt.Errorf("identity not verified: %w", domain.ErrBadRequest)
		}
		if err := s.subscribers.SetAlerts(ctx, sub.SubscriberID, alerts); err != nil {
			return nil, err
		}
		return alerts, nil
	case domain.ChannelChat:
		chatID, ok := id.ChatID()
		if !ok {
			return nil, fmt.Errorf("malformed chat id %q: %w", id.Key, domain.ErrBadRequest)
		}
		chat, err := s.chats.Get(ctx, chatID)
		if errors.Is(err, domain.ErrNotFound) {
			if s.requireVerified {
				return nil, fmt.Errorf("identity not verified: %w", domain.ErrBadRequest)
			}
			// Lazy creation: the user can stage preferences before the bot
			// ever saw them and before verification completes.
			now := time.Now().UTC()
			chat = &domain.ChatSubscriber{ChatID: chatID, Alerts: []string{}, CreatedAt: now, UpdatedAt: now}
			if err := s.chats.Put(ctx, chat); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		if s.requireVerified && !chat.Verified() {
			return nil, fmt.Errorf("identity not verified: %w", domain.ErrBadRequest)
		}
		if err := s.chats.SetAlerts(ctx, chatID, alerts); err != nil {
			return nil, err
		}
		return alerts, nil
	default:
		return nil, fmt.Errorf("unknown channel %q: %w", id.Channel, domain.ErrBadRequest)
	}
}

// normalize guarantees a non-nil slice so handlers always render a JSON array.
func normalize(alerts []string) []string {
	if alerts == nil {
		return []string{}
	}
	return alerts
}
