// Package auth provides bearer token authentication for the API and the
// single-use token registry for live voice sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default lifetimes.
const (
	DefaultAPITokenTTL  = 24 * time.Hour
	DefaultLiveTokenTTL = 30 * time.Minute
)

var (
	// ErrInvalidToken covers expired, malformed or mis-signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenUsed means a single-use live token was already redeemed.
	ErrTokenUsed = errors.New("auth: token already used")
)

// Claims carries the authenticated user's identity.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens mints and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token service with the given signing secret. A zero ttl
// means [DefaultAPITokenTTL].
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultAPITokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint issues a signed API token for userID. The jti is a fresh UUID so the
// token can later serve as a single-use credential.
func (t *Tokens) Mint(userID uuid.UUID) (string, error) {
	return t.mint(userID, t.ttl)
}

// MintLive issues a short-lived token for starting one live voice session.
// Its jti is redeemed through a [Registry] on first use.
func (t *Tokens) MintLive(userID uuid.UUID) (string, error) {
	return t.mint(userID, DefaultLiveTokenTTL)
}

func (t *Tokens) mint(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, rejecting any signing method other
// than HS256.
func (t *Tokens) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL reports the lifetime tokens are minted with.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Registry tracks redeemed live-session token IDs so each token starts at
// most one session. Implementations must be safe for concurrent use.
type Registry interface {
	// Redeem marks jti as used for ttl. Returns ErrTokenUsed if it was
	// already redeemed.
	Redeem(ctx context.Context, jti string, ttl time.Duration) error
}

type ctxKey int

const userIDKey ctxKey = 0

// WithUserID stores the authenticated user ID on the context.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user ID from the context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
