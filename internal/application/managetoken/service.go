package managetoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alerts-manage-api/internal/application/identity"
	"github.com/alerts-manage-api/internal/domain"
	pkgtoken "github.com/alerts-manage-api/internal/pkg/token"
)

// Minted is the result of a successful mint: the opaque token, the
// user-facing management link built from it, and the absolute expiry.
type Minted struct {
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues opaque bearer tokens bound to a resolved identity and
// authorizes them on every subsequent preference operation.
//
// Minting never invalidates earlier tokens for the same identity: any number
// of unexpired tokens may coexist. There is no revocation.
type Service interface {
	// Mint issues a token for an identity that already resolved. It does not
	// require the identity to be verified -- a token is a way back into an
	// in-progress flow, not a verification bypass.
	Mint(ctx context.Context, id domain.Identifier) (*Minted, error)
	// Authorize validates a presented token and re-fetches the live
	// subscriber. domain.ErrNotFound when the token row is absent or the
	// bound subscriber no longer exists; domain.ErrExpired when the token is
	// past its expiry (strict UTC comparison, no grace window). Token rows
	// are never deleted here -- expiry is lazy.
	Authorize(ctx context.Context, token string) (domain.Identifier, error)
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.ManageToken) error
	Get(ctx context.Context, token string) (*domain.ManageToken, error)
}

type resolver interface {
	Lookup(ctx context.Context, id domain.Identifier) error
}

type ServiceDeps struct {
	TokenRepo tokenStore
	Identity  resolver
	TTL       time.Duration
	LinkBase  string
}

type service struct {
	tokens   tokenStore
	identity resolver
	ttl      time.Duration
	linkBase string
}

func NewService(deps ServiceDeps) Service {
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &service{
		tokens:   deps.TokenRepo,
		identity: deps.Identity,
		ttl:      ttl,
		linkBase: deps.LinkBase,
	}
}

func (s *service) Mint(ctx context.Context, id domain.Identifier) (*Minted, error) {
	if err := s.identity.Lookup(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := now.Add(s.ttl)

	// A token PK collision is astronomically unlikely (256 bits of entropy)
	// but the store reports it as a conflict; one regeneration absorbs it.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		value, err := pkgtoken.NewManageToken()
		if err != nil {
			return nil, err
		}
		t := &domain.ManageToken{
			Token:         value,
			Channel:       id.Channel,
			SubscriberKey: id.Key,
			ExpiresAt:     expires.Unix(),
			CreatedAt:     now,
		}
		if err := s.tokens.Put(ctx, t); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return &Minted{Token: value, Link: s.buildLink(value), ExpiresAt: expires}, nil
	}
	return nil, lastErr
}

func (s *service) Authorize(ctx context.Context, token string) (domain.Identifier, error) {
	t, err := s.tokens.Get(ctx, token)
	if err != nil {
		return domain.Identifier{}, err
	}
	if t.Expired(time.Now()) {
		return domain.Identifier{}, fmt.Errorf("manage token past expiry: %w", domain.ErrExpired)
	}

	id := t.Identity()
	if id.Channel == "" {
		// Rows written before the channel attribute existed carry only the
		// bare key; fall back to shape classification.
		id.Channel = identity.Classify(id.Key)
	}
	if err := s.identity.Lookup(ctx, id); err != nil {
		return domain.Identifier{}, err
	}
	return id, nil
}

func (s *service) buildLink(token string) string {
	if s.linkBase == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.linkBase, token)
}
