package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/alerts-manage-api/internal/pkg/id"
)

// IssueRequest asks for a verification code to be staged and delivered.
// AttachPhone and AttachEmail are only meaningful for the platform channel:
// they store the delivery number and the account email on the Whop record.
type IssueRequest struct {
	Identity    domain.Identifier
	AttachPhone string
	AttachEmail string
}

// Service generates, persists and checks the short numeric codes that prove
// control of a channel before it is trusted.
//
// Codes carry no expiry of their own: an outstanding code stays valid until
// it is confirmed or overwritten by the next issue for the same identity.
type Service interface {
	// IssueCode stages a code on the target record (creating phone and
	// platform records that don't exist yet -- chat records are created by
	// the bot) and hands it to the delivery collaborator. A delivery failure
	// clears the staged code and surfaces domain.ErrDelivery.
	IssueCode(ctx context.Context, req IssueRequest) error
	// ConfirmCode checks the submitted code against the staged one.
	// domain.ErrNotFound when no record exists for the identity,
	// domain.ErrInvalidCode when no code is staged or it does not match.
	// Success marks the record verified, consumes the code, and returns the
	// canonical identity.
	ConfirmCode(ctx context.Context, identity domain.Identifier, code string) (domain.Identifier, error)
}

type subscriberStore interface {
	Create(ctx context.Context, s *domain.Subscriber) error
	GetByPhone(ctx context.Context, e164 string) (*domain.Subscriber, error)
	GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Subscriber, error)
	GetByCanonicalKey(ctx context.Context, channel domain.Channel, key string) (*domain.Subscriber, error)
	SetPendingCode(ctx context.Context, subscriberID, code string) error
	ClearPendingCode(ctx context.Context, subscriberID, code string) error
	MarkVerified(ctx context.Context, subscriberID string, at time.Time) error
	AttachPhone(ctx context.Context, subscriberID, e164 string) error
	AttachEmail(ctx context.Context, subscriberID, email string) error
}

type chatStore interface {
	Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error)
	SetPendingCode(ctx context.Context, chatID int64, code string) error
	ClearPendingCode(ctx context.Context, chatID int64, code string) error
	MarkVerified(ctx context.Context, chatID int64, at time.Time) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type chatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type ServiceDeps struct {
	SubscriberRepo subscriberStore
	ChatRepo       chatStore
	SMSSender      smsSender
	ChatSender     chatSender
	CodeLength     int
}

type service struct {
	subscribers subscriberStore
	chats       chatStore
	sms         smsSender
	chatSender  chatSender
	codeLength  int
}

func NewService(deps ServiceDeps) Service {
	codeLen := deps.CodeLength
	if codeLen <= 0 {
		codeLen = 6
	}
	return &service{
		subscribers: deps.SubscriberRepo,
		chats:       deps.ChatRepo,
		sms:         deps.SMSSender,
		chatSender:  deps.ChatSender,
		codeLength:  codeLen,
	}
}

func (s *service) IssueCode(ctx context.Context, req IssueRequest) error {
	code, err := generateCode(s.codeLength)
	if err != nil {
		return err
	}

	switch req.Identity.Channel {
	case domain.ChannelPhone:
		return s.issuePhone(ctx, req.Identity.Key, code)
	case domain.ChannelPlatform:
		return s.issuePlatform(ctx, req, code)
	case domain.ChannelChat:
		return s.issueChat(ctx, req.Identity, code)
	default:
		return fmt.Errorf("unknown channel %q: %w", req.Identity.Channel, domain.ErrBadRequest)
	}
}

func (s *service) issuePhone(ctx context.Context, e164, code string) error {
	if s.sms == nil {
		return fmt.Errorf("SMS sender not configured: %w", domain.ErrMisconfigured)
	}
	sub, err := s.subscribers.GetByPhone(ctx, e164)
	if errors.Is(err, domain.ErrNotFound) {
		// Phone flows permit pre-registration: the record is created the
		// first time a code is requested for the number.
		sub, err = s.createSubscriber(ctx, domain.PhoneIdentifier(e164))
	}
	if err != nil {
		return err
	}
	if err := s.subscribers.SetPendingCode(ctx, sub.SubscriberID, code); err != nil {
		return err
	}
	if err := s.sms.SendSMS(ctx, e164, verificationText(code)); err != nil {
		s.rollbackSubscriberCode(ctx, sub.SubscriberID, code)
		return fmt.Errorf("verification SMS not delivered: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) issuePlatform(ctx context.Context, req IssueRequest, code string) error {
	if s.sms == nil {
		return fmt.Errorf("SMS sender not configured: %w", domain.ErrMisconfigured)
	}
	whopUserID := req.Identity.Key
	sub, err := s.subscribers.GetByWhopUserID(ctx, whopUserID)
	if errors.Is(err, domain.ErrNotFound) {
		sub, err = s.createSubscriber(ctx, req.Identity)
	}
	if err != nil {
		return err
	}
	if req.AttachPhone != "" {
		if err := s.subscribers.AttachPhone(ctx, sub.SubscriberID, req.AttachPhone); err != nil {
			return err
		}
		sub.Phone = &req.AttachPhone
	}
	if req.AttachEmail != "" {
		if err := s.subscribers.AttachEmail(ctx, sub.SubscriberID, req.AttachEmail); err != nil {
			return err
		}
	}
	if sub.Phone == nil || *sub.Phone == "" {
		return fmt.Errorf("no phone number on record to deliver the code to: %w", domain.ErrBadRequest)
	}
	if err := s.subscribers.SetPendingCode(ctx, sub.SubscriberID, code); err != nil {
		return err
	}
	if err := s.sms.SendSMS(ctx, *sub.Phone, verificationText(code)); err != nil {
		s.rollbackSubscriberCode(ctx, sub.SubscriberID, code)
		return fmt.Errorf("verification SMS not delivered: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) issueChat(ctx context.Context, identity domain.Identifier, code string) error {
	if s.chatSender == nil {
		return fmt.Errorf("chat sender not configured: %w", domain.ErrMisconfigured)
	}
	chatID, ok := identity.ChatID()
	if !ok {
		return fmt.Errorf("malformed chat id %q: %w", identity.Key, domain.ErrBadRequest)
	}
	if _, err := s.chats.Get(ctx, chatID); err != nil {
		return err
	}
	if err := s.chats.SetPendingCode(ctx, chatID, code); err != nil {
		return err
	}
	if err := s.chatSender.SendMessage(ctx, chatID, verificationText(code)); err != nil {
		if cerr := s.chats.ClearPendingCode(ctx, chatID, code); cerr != nil {
			slog.Warn("failed to clear undelivered code", "chat_id", chatID, "err", cerr)
		}
		return fmt.Errorf("verification message not delivered: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) ConfirmCode(ctx context.Context, identity domain.Identifier, code string) (domain.Identifier, error) {
	switch identity.Channel {
	case domain.ChannelPhone, domain.ChannelPlatform:
		var (
			sub *domain.Subscriber
			err error
		)
		if identity.Channel == domain.ChannelPhone {
			sub, err = s.subscribers.GetByPhone(ctx, identity.Key)
		} else {
			sub, err = s.subscribers.GetByWhopUserID(ctx, identity.Key)
		}
		if err != nil {
			return domain.Identifier{}, err
		}
		if !codeMatches(sub.PendingCode, code) {
			return domain.Identifier{}, fmt.Errorf("code mismatch: %w", domain.ErrInvalidCode)
		}
		if err := s.subscribers.MarkVerified(ctx, sub.SubscriberID, time.Now().UTC()); err != nil {
			return domain.Identifier{}, err
		}
		return identity, nil
	case domain.ChannelChat:
		chatID, ok := identity.ChatID()
		if !ok {
			return domain.Identifier{}, fmt.Errorf("malformed chat id %q: %w", identity.Key, domain.ErrBadRequest)
		}
		chat, err := s.chats.Get(ctx, chatID)
		if err != nil {
			return domain.Identifier{}, err
		}
		if !codeMatches(chat.PendingCode, code) {
			return domain.Identifier{}, fmt.Errorf("code mismatch: %w", domain.ErrInvalidCode)
		}
		if err := s.chats.MarkVerified(ctx, chatID, time.Now().UTC()); err != nil {
			return domain.Identifier{}, err
		}
		return identity, nil
	default:
		return domain.Identifier{}, fmt.Errorf("unknown channel %q: %w", identity.Channel, domain.ErrBadRequest)
	}
}

// createSubscriber pre-registers a record for a canonical key nobody owns
// yet. Creation is transactional on the key, so two concurrent first-time
// issues cannot both create a record; the loser re-reads the winner's.
func (s *service) createSubscriber(ctx context.Context, ident domain.Identifier) (*domain.Subscriber, error) {
	now := time.Now().UTC()
	sub := &domain.Subscriber{
		SubscriberID: id.New(),
		Alerts:       []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch ident.Channel {
	case domain.ChannelPhone:
		sub.Phone = &ident.Key
	case domain.ChannelPlatform:
		sub.WhopUserID = &ident.Key
	default:
		return nil, fmt.Errorf("channel %q has no pre-registration: %w", ident.Channel, domain.ErrBadRequest)
	}
	err := s.subscribers.Create(ctx, sub)
	if errors.Is(err, domain.ErrConflict) {
		return s.subscribers.GetByCanonicalKey(ctx, ident.Channel, ident.Key)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) rollbackSubscriberCode(ctx context.Context, subscriberID, code string) {
	if err := s.subscribers.ClearPendingCode(ctx, subscriberID, code); err != nil {
		slog.Warn("failed to clear undelivered code", "subscriber_id", subscriberID, "err", err)
	}
}

// codeMatches compares the staged code with the submission in constant time.
func codeMatches(staged *string, submitted string) bool {
	if staged == nil || *staged == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*staged), []byte(submitted)) == 1
}

// generateCode produces a fixed-length numeric code with leading zeros kept.
func generateCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func verificationText(code string) string {
	return "Your verification code: " + code
}
