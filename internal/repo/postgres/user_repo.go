package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
)

type UserRepo struct {
	pool   *pgxpool.Pool
	blocks *BlockRepo
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool, blocks: NewBlockRepo(pool)}
}

const userColumns = `
	u.id,
	u.first_name,
	u.birth_date,
	u.gender,
	u.interested_in,
	u.bio,
	u.occupation,
	u.photo_key,
	u.lat,
	u.lon,
	u.city,
	u.country,
	u.pref_age_min,
	u.pref_age_max,
	u.pref_max_distance,
	u.pref_show_me,
	u.is_active,
	u.is_verified,
	u.is_premium,
	u.premium_expires_at,
	u.swipe_count,
	u.match_count,
	u.last_active_at,
	u.created_at`

func (r *UserRepo) GetByID(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
SELECT`+userColumns+`
FROM users u
WHERE u.id = $1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	blocked, err := r.blocks.BlockedIDs(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	user.BlockedUsers = blocked

	return user, nil
}

// IsActive reads the activity flag inside tx. Missing users yield ErrUserNotFound.
func (r *UserRepo) IsActive(ctx context.Context, tx pgx.Tx, userID int64) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	var active bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("read user activity: %w", err)
	}
	return active, nil
}

func (r *UserRepo) AdjustSwipeCount(ctx context.Context, tx pgx.Tx, userID int64, delta int) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if _, err := tx.Exec(ctx, `
UPDATE users
SET swipe_count = GREATEST(0, swipe_count + $2)
WHERE id = $1
`, userID, delta); err != nil {
		return fmt.Errorf("adjust swipe count: %w", err)
	}
	return nil
}

func (r *UserRepo) AdjustMatchCount(ctx context.Context, tx pgx.Tx, delta int, userIDs ...int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if len(userIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
UPDATE users
SET match_count = GREATEST(0, match_count + $2)
WHERE id = ANY($1::bigint[])
`, userIDs, delta); err != nil {
		return fmt.Errorf("adjust match count: %w", err)
	}
	return nil
}

// TouchLastActive bumps last_active_at, skipping writes within a minute of the
// previous bump.
func (r *UserRepo) TouchLastActive(ctx context.Context, userID int64, at time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := r.pool.Exec(ctx, `
UPDATE users
SET last_active_at = $2
WHERE id = $1
	AND last_active_at < $2 - INTERVAL '1 minute'
`, userID, at.UTC()); err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// Profiles loads public profiles for ids; missing ids are absent from the map.
func (r *UserRepo) Profiles(ctx context.Context, ids []int64) (map[int64]model.PublicProfile, error) {
	out := make(map[int64]model.PublicProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+userColumns+`
FROM users u
WHERE u.id = ANY($1::bigint[])
`, ids)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[user.ID] = user.Public()
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate profiles: %w", rows.Err())
	}

	return out, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	return scanUserWith(row)
}

func scanUserWith(row pgx.Row, extra ...any) (model.User, error) {
	var (
		user         model.User
		gender       string
		interestedIn []string
		lat, lon     *float64
		city         string
		country      string
		showMe       string
	)
	dest := []any{
		&user.ID,
		&user.FirstName,
		&user.BirthDate,
		&gender,
		&interestedIn,
		&user.Bio,
		&user.Occupation,
		&user.PhotoKey,
		&lat,
		&lon,
		&city,
		&country,
		&user.Preferences.AgeRange.Min,
		&user.Preferences.AgeRange.Max,
		&user.Preferences.MaxDistanceKM,
		&showMe,
		&user.IsActive,
		&user.IsVerified,
		&user.IsPremium,
		&user.PremiumExpiresAt,
		&user.Stats.TotalSwipes,
		&user.Stats.TotalMatches,
		&user.LastActiveAt,
		&user.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.User{}, err
	}

	user.Gender = enums.Gender(gender)
	user.Preferences.ShowMe = enums.Audience(showMe)
	user.InterestedIn = make([]enums.Audience, 0, len(interestedIn))
	for _, v := range interestedIn {
		user.InterestedIn = append(user.InterestedIn, enums.Audience(v))
	}
	if lat != nil && lon != nil {
		user.Location = &model.Location{
			Point:   model.Point{Lat: *lat, Lon: *lon},
			City:    city,
			Country: country,
		}
	}

	return user, nil
}
