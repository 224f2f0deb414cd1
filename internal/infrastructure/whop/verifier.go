package whop

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alerts-manage-api/internal/config"
	"github.com/alerts-manage-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const usersAPIBase = "https://api.whop.com/v5/app/users"

// Identity holds the verified claims extracted from a Whop user token.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Verifier validates x-whop-user-token assertions (ES256) against the app's
// configured public key, issuer and audience. When the token carries no
// email claim and an API key is configured, the email is fetched from the
// Whop App Users API as a best effort.
type Verifier struct {
	appID      string
	issuer     string
	publicKey  *ecdsa.PublicKey
	apiKey     string
	httpClient *http.Client
	apiBase    string
}

func NewVerifier(cfg *config.Config) (*Verifier, error) {
	if cfg.WhopAppID == "" {
		return nil, fmt.Errorf("WHOP_APP_ID not configured: %w", domain.ErrMisconfigured)
	}
	pemBytes, err := os.ReadFile(cfg.WhopPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read whop public key: %w", err)
	}
	pubKey, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse whop public key: %w", err)
	}
	return &Verifier{
		appID:      cfg.WhopAppID,
		issuer:     cfg.WhopExpectedIss,
		publicKey:  pubKey,
		apiKey:     cfg.WhopAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBase:    usersAPIBase,
	}, nil
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verify validates the user token and returns the asserted identity.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.publicKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.appID))
	if err != nil {
		return nil, fmt.Errorf("invalid whop token: %w", domain.ErrUnauthorized)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("whop token missing subject: %w", domain.ErrUnauthorized)
	}

	identity := &Identity{UserID: c.Subject, Email: c.Email}
	if identity.Email == "" {
		if email, err := v.fetchEmail(ctx, identity.UserID); err == nil {
			identity.Email = email
		}
	}
	return identity, nil
}

// fetchEmail looks up the user's email via the Whop App Users API.
func (v *Verifier) fetchEmail(ctx context.Context, userID string) (string, error) {
	if v.apiKey == "" {
		return "", fmt.Errorf("WHOP_API_KEY not configured: %w", domain.ErrMisconfigured)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiBase+"/"+userID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whop users api returned %d", resp.StatusCode)
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Email, nil
}
