package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementRepo reads the premium flag the billing service maintains on the
// user row.
type EntitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *EntitlementRepo {
	return &EntitlementRepo{pool: pool}
}

// PremiumState returns the raw flag and expiry; callers decide whether the
// subscription is still current.
func (r *EntitlementRepo) PremiumState(ctx context.Context, userID int64) (bool, *time.Time, error) {
	if r.pool == nil {
		return false, nil, fmt.Errorf("postgres pool is nil")
	}

	var (
		isPremium bool
		expiresAt *time.Time
	)
	err := r.pool.QueryRow(ctx, `
SELECT is_premium, premium_expires_at FROM users WHERE id = $1
`, userID).Scan(&isPremium, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, ErrUserNotFound
		}
		return false, nil, fmt.Errorf("read premium state: %w", err)
	}
	return isPremium, expiresAt, nil
}
