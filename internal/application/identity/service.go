package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alerts-manage-api/internal/domain"
)

// Candidates carries the loosely-coupled identifiers a caller may present.
// Any subset may be set; resolution tries them in a fixed precedence order.
type Candidates struct {
	WhopUserID string `json:"whop_user_id"`
	TelegramID string `json:"telegram_id"`
	Phone      string `json:"phone" validate:"omitempty,e164"`
}

// Service resolves caller-supplied identifiers to exactly one subscriber
// identity across both storage partitions.
type Service interface {
	// Resolve tries candidates in precedence order (Whop account id, then
	// Telegram chat id, then phone). The first non-empty candidate matching
	// an existing record wins; later candidates are not consulted. Fails
	// with domain.ErrNotFound when no supplied candidate matches.
	Resolve(ctx context.Context, c Candidates) (domain.Identifier, error)
	// Lookup confirms the identity still exists in its partition.
	Lookup(ctx context.Context, id domain.Identifier) error
}

type subscriberStore interface {
	GetByPhone(ctx context.Context, e164 string) (*domain.Subscriber, error)
	GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Subscriber, error)
}

type chatStore interface {
	Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error)
}

type service struct {
	subscribers subscriberStore
	chats       chatStore
}

func NewService(subscribers subscriberStore, chats chatStore) Service {
	return &service{subscribers: subscribers, chats: chats}
}

func (s *service) Resolve(ctx context.Context, c Candidates) (domain.Identifier, error) {
	if c.WhopUserID != "" {
		_, err := s.subscribers.GetByWhopUserID(ctx, c.WhopUserID)
		if err == nil {
			return domain.PlatformIdentifier(c.WhopUserID), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Identifier{}, err
		}
	}
	if c.TelegramID != "" {
		if chatID, perr := strconv.ParseInt(c.TelegramID, 10, 64); perr == nil {
			_, err := s.chats.Get(ctx, chatID)
			if err == nil {
				return domain.ChatIdentifier(chatID), nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return domain.Identifier{}, err
			}
		}
	}
	if c.Phone != "" {
		_, err := s.subscribers.GetByPhone(ctx, c.Phone)
		if err == nil {
			return domain.PhoneIdentifier(c.Phone), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Identifier{}, err
		}
	}
	return domain.Identifier{}, fmt.Errorf("no subscriber matches the supplied identifiers: %w", domain.ErrNotFound)
}

func (s *service) Lookup(ctx context.Context, id domain.Identifier) error {
	switch id.Channel {
	case domain.ChannelPhone:
		_, err := s.subscribers.GetByPhone(ctx, id.Key)
		return err
	case domain.ChannelPlatform:
		_, err := s.subscribers.GetByWhopUserID(ctx, id.Key)
		return err
	case domain.ChannelChat:
		chatID, ok := id.ChatID()
		if !ok {
			return fmt.Errorf("malformed chat id %q: %w", id.Key, domain.ErrBadRequest)
		}
		_, err := s.chats.Get(ctx, chatID)
		return err
	default:
		return fmt.Errorf("unknown channel %q: %w", id.Channel, domain.ErrBadRequest)
	}
}

// Classify routes a bare stored key back to its channel by string shape:
// a leading '+' classifies as phone, an all-digit string as a chat id, and
// anything else as a Whop account id. The identifier tag stored alongside
// tokens makes this unnecessary on the main path; it remains the documented
// fallback for token rows written before the channel attribute existed.
// The heuristic is deterministic but blind to malformed keys, which is why
// it is confined to that fallback.
func Classify(key string) domain.Channel {
	if strings.HasPrefix(key, "+") {
		return domain.ChannelPhone
	}
	if key != "" && allDigits(key) {
		return domain.ChannelChat
	}
	return domain.ChannelPlatform
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
