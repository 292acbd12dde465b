package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of relay auth tokens.
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned when an auth token fails verification.
var ErrInvalidToken = errors.New("invalid auth token")

// SignAuthToken issues an EdDSA-signed JWT for the relay at aud.
// The issuer is the client's did:key ID.
func (p *Provider) SignAuthToken(ctx context.Context, aud string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	priv, err := p.PrivateKey(ctx)
	if err != nil {
		return "", err
	}
	iss, err := p.ClientID(ctx)
	if err != nil {
		return "", err
	}

	sub := make([]byte, 32)
	if _, err := rand.Read(sub); err != nil {
		return "", fmt.Errorf("generate subject: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    iss,
		Subject:   hex.EncodeToString(sub),
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	return signed, nil
}

// VerifyAuthToken checks an auth token against aud using the key embedded in
// its issuer DID and returns its claims.
func VerifyAuthToken(tokenString, aud string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return PublicKeyFromClientID(claims.Issuer)
	},
		jwt.WithAudience(aud),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
