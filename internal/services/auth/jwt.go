package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenParser verifies HS256 access tokens minted by the account service.
// The subject claim carries the numeric user id and exp is mandatory.
type TokenParser struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewTokenParser(secret string, leeway time.Duration) *TokenParser {
	if leeway < 0 {
		leeway = 0
	}
	return &TokenParser{
		secret: []byte(secret),
		leeway: leeway,
		now:    time.Now,
	}
}

func (p *TokenParser) Parse(raw string) (AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(p.secret) == 0 {
		return AccessClaims{}, ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.now),
	); err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return AccessClaims{}, fmt.Errorf("%w: subject %q is not a user id", ErrUnauthorized, claims.Subject)
	}
	return AccessClaims{UserID: userID, ExpiresAt: claims.ExpiresAt.Time}, nil
}
