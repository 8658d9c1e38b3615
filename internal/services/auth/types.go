package auth

import (
	"errors"
	"time"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAccountInactive = errors.New("account is deactivated")
)

type AccessClaims struct {
	UserID    int64
	ExpiresAt time.Time
}
