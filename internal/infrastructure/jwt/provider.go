package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-recovery-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the confirmation token payload. The token ID (jti) names the
// single-use grant kept in the code store.
type Claims struct {
	Purpose domain.Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 confirmation tokens.
type Provider struct {
	secret []byte
	now    func() time.Time
}

func NewProvider(secret string, now func() time.Time) (*Provider, error) {
	if len(secret) < 32 {
		return nil, errors.New("confirmation token secret must be at least 32 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &Provider{secret: []byte(secret), now: now}, nil
}

func (p *Provider) Sign(accountID string, purpose domain.Purpose, grantID string, ttl time.Duration) (string, time.Time, error) {
	now := p.now()
	exp := now.Add(ttl)
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        grantID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign confirmation token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and purpose. Every failure wraps domain.ErrTokenInvalid.
func (p *Provider) Verify(tokenStr string, purpose domain.Purpose) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrTokenInvalid)
	}
	if claims.Purpose != purpose || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: unexpected purpose or missing subject", domain.ErrTokenInvalid)
	}
	return claims, nil
}
