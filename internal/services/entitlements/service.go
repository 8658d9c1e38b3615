package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/rules"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("user not found")
)

type Store interface {
	PremiumState(ctx context.Context, userID int64) (bool, *time.Time, error)
}

// Service answers capability checks. Billing lives elsewhere; only the
// premium flag and its expiry are consulted.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) IsPremium(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, ErrValidation
	}
	if s.store == nil {
		return false, fmt.Errorf("entitlement store is not configured")
	}

	isPremium, expiresAt, err := s.store.PremiumState(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("read premium state: %w", err)
	}

	return rules.PremiumActive(isPremium, expiresAt, s.now().UTC()), nil
}
