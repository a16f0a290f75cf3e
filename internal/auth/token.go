// Package auth issues and verifies the bearer credentials that gate access
// to the chat relay.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is how long an issued credential stays valid.
const DefaultTTL = time.Hour

var (
	// ErrExpired is returned when a credential is past its expiry.
	ErrExpired = errors.New("credential expired")
	// ErrInvalid is returned for credentials with a bad signature, algorithm,
	// structure or missing claims.
	ErrInvalid = errors.New("credential invalid")
	// ErrNoSecret is returned when a Verifier or Issuer is built without a key.
	ErrNoSecret = errors.New("signing secret is empty")
)

// Claims are the verified facts carried by a credential.
type Claims struct {
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// tokenClaims is the JWT payload on the wire.
type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks credential signatures and expiry. It holds no mutable
// state and is safe for concurrent use.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier returns a Verifier for HS256 credentials signed with secret.
// A nil now defaults to time.Now.
func NewVerifier(secret []byte, now func() time.Time) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{key: secret, now: now}, nil
}

// Verify validates the credential and returns its claims. Failures wrap
// either ErrExpired or ErrInvalid.
func (v *Verifier) Verify(credential string) (Claims, error) {
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(credential, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if strings.TrimSpace(parsed.Username) == "" {
		return Claims{}, fmt.Errorf("%w: username claim is required", ErrInvalid)
	}

	claims := Claims{
		DisplayName: parsed.Username,
		ExpiresAt:   parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to the package sentinels.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// Token is a freshly issued credential.
type Token struct {
	Credential string
	Claims     Claims
}

// Bearer renders the token as an Authorization header value.
func (t Token) Bearer() string {
	return BearerToken(t.Credential)
}

// Issuer signs new credentials. Like Verifier it is stateless.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer returns an Issuer signing with secret. A non-positive ttl falls
// back to DefaultTTL and a nil now to time.Now.
func NewIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{key: secret, ttl: ttl, now: now}, nil
}

// Issue signs a credential for displayName valid for the issuer's TTL. Each
// call carries a fresh token id, so two credentials are never equal.
func (i *Issuer) Issue(displayName string) (Token, error) {
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := &tokenClaims{
		Username: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign credential: %w", err)
	}

	return Token{
		Credential: signed,
		Claims: Claims{
			DisplayName: displayName,
			IssuedAt:    issuedAt,
			ExpiresAt:   expiresAt,
		},
	}, nil
}
