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

const swipePairConstraint = "swipes_pair_uniq"

type SwipeRepo struct {
	pool *pgxpool.Pool
}

func NewSwipeRepo(pool *pgxpool.Pool) *SwipeRepo {
	return &SwipeRepo{pool: pool}
}

type HistoryFilter struct {
	SwiperID int64
	Action   *enums.SwipeAction
	Limit    int
	Offset   int
}

const swipeColumns = `id, swiper_id, swiped_user_id, action, is_match, match_id, swiped_at, lat, lon`

func (r *SwipeRepo) Create(ctx context.Context, tx pgx.Tx, swipe model.Swipe) (model.Swipe, error) {
	if swipe.SwiperID <= 0 || swipe.SwipedUserID <= 0 || !swipe.Action.Valid() {
		return model.Swipe{}, fmt.Errorf("invalid swipe payload")
	}
	if tx == nil {
		return model.Swipe{}, fmt.Errorf("transaction is required")
	}
	if swipe.SwipedAt.IsZero() {
		swipe.SwipedAt = time.Now().UTC()
	}

	var lat, lon *float64
	if swipe.Location != nil {
		lat, lon = &swipe.Location.Lat, &swipe.Location.Lon
	}

	created, err := scanSwipe(tx.QueryRow(ctx, `
INSERT INTO swipes (
	swiper_id,
	swiped_user_id,
	action,
	swiped_at,
	lat,
	lon
) VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+swipeColumns,
		swipe.SwiperID,
		swipe.SwipedUserID,
		swipe.Action.String(),
		swipe.SwipedAt.UTC(),
		lat,
		lon,
	))
	if err != nil {
		if IsUniqueViolation(err, swipePairConstraint) {
			return model.Swipe{}, ErrDuplicateSwipe
		}
		return model.Swipe{}, fmt.Errorf("create swipe: %w", err)
	}

	return created, nil
}

func (r *SwipeRepo) GetLastByActor(ctx context.Context, tx pgx.Tx, swiperID int64) (model.Swipe, error) {
	if tx == nil {
		return model.Swipe{}, fmt.Errorf("transaction is required")
	}

	swipe, err := scanSwipe(tx.QueryRow(ctx, `
SELECT `+swipeColumns+`
FROM swipes
WHERE swiper_id = $1
ORDER BY swiped_at DESC, id DESC
LIMIT 1
`, swiperID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Swipe{}, ErrSwipeNotFound
		}
		return model.Swipe{}, fmt.Errorf("get last swipe: %w", err)
	}
	return swipe, nil
}

func (r *SwipeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, swipeID int64) (model.Swipe, error) {
	if tx == nil {
		return model.Swipe{}, fmt.Errorf("transaction is required")
	}

	swipe, err := scanSwipe(tx.QueryRow(ctx, `
SELECT `+swipeColumns+`
FROM swipes
WHERE id = $1
FOR UPDATE
`, swipeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Swipe{}, ErrSwipeNotFound
		}
		return model.Swipe{}, fmt.Errorf("lock swipe: %w", err)
	}
	return swipe, nil
}

// FindPositive returns the like or superlike swiperID cast on swipedUserID.
func (r *SwipeRepo) FindPositive(ctx context.Context, tx pgx.Tx, swiperID, swipedUserID int64) (model.Swipe, error) {
	if tx == nil {
		return model.Swipe{}, fmt.Errorf("transaction is required")
	}

	swipe, err := scanSwipe(tx.QueryRow(ctx, `
SELECT `+swipeColumns+`
FROM swipes
WHERE swiper_id = $1
	AND swiped_user_id = $2
	AND action IN ('like', 'superlike')
FOR UPDATE
`, swiperID, swipedUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Swipe{}, ErrSwipeNotFound
		}
		return model.Swipe{}, fmt.Errorf("find reciprocal swipe: %w", err)
	}
	return swipe, nil
}

// AttachMatch marks swipes as part of matchID. Rows already attached to the
// same match are left untouched.
func (r *SwipeRepo) AttachMatch(ctx context.Context, tx pgx.Tx, matchID int64, swipeIDs ...int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if matchID <= 0 || len(swipeIDs) == 0 {
		return fmt.Errorf("invalid attach payload")
	}

	if _, err := tx.Exec(ctx, `
UPDATE swipes
SET is_match = TRUE, match_id = $1
WHERE id = ANY($2::bigint[])
	AND match_id IS DISTINCT FROM $1
`, matchID, swipeIDs); err != nil {
		return fmt.Errorf("attach match to swipes: %w", err)
	}
	return nil
}

// DeleteUnmatched removes a swipe only while it is not part of a match.
func (r *SwipeRepo) DeleteUnmatched(ctx context.Context, tx pgx.Tx, swipeID int64) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM swipes WHERE id = $1 AND is_match = FALSE`, swipeID)
	if err != nil {
		return false, fmt.Errorf("delete swipe: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SwipeRepo) SwipedUserIDs(ctx context.Context, swiperID int64) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `SELECT swiped_user_id FROM swipes WHERE swiper_id = $1`, swiperID)
	if err != nil {
		return nil, fmt.Errorf("list swiped users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("list swiped users: %w", err)
	}
	return ids, nil
}

func (r *SwipeRepo) History(ctx context.Context, f HistoryFilter) ([]model.Swipe, int, error) {
	if r.pool == nil {
		return nil, 0, fmt.Errorf("postgres pool is nil")
	}

	applyAction := f.Action != nil
	action := ""
	if applyAction {
		action = f.Action.String()
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM swipes
WHERE swiper_id = $1
	AND ($2::boolean = FALSE OR action = $3)
`, f.SwiperID, applyAction, action).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count swipe history: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+swipeColumns+`
FROM swipes
WHERE swiper_id = $1
	AND ($2::boolean = FALSE OR action = $3)
ORDER BY swiped_at DESC, id DESC
LIMIT $4 OFFSET $5
`, f.SwiperID, applyAction, action, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list swipe history: %w", err)
	}

	items, err := collectSwipes(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list swipe history: %w", err)
	}
	return items, total, nil
}

// IncomingLikes lists positive swipes targeting userID that have not become matches.
func (r *SwipeRepo) IncomingLikes(ctx context.Context, userID int64, limit int) ([]model.Swipe, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+swipeColumns+`
FROM swipes
WHERE swiped_user_id = $1
	AND action IN ('like', 'superlike')
	AND is_match = FALSE
ORDER BY swiped_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list incoming likes: %w", err)
	}

	items, err := collectSwipes(rows)
	if err != nil {
		return nil, fmt.Errorf("list incoming likes: %w", err)
	}
	return items, nil
}

// ListUnmatchedMutual finds positive swipes whose reciprocal positive swipe
// exists while neither side carries a match yet. Results are ordered by id
// and start after afterID.
func (r *SwipeRepo) ListUnmatchedMutual(ctx context.Context, afterID int64, limit int) ([]model.Swipe, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+swipeColumns+`
FROM swipes s
WHERE s.action IN ('like', 'superlike')
	AND s.is_match = FALSE
	AND s.swiper_id < s.swiped_user_id
	AND s.id > $2
	AND EXISTS (
		SELECT 1
		FROM swipes o
		WHERE o.swiper_id = s.swiped_user_id
			AND o.swiped_user_id = s.swiper_id
			AND o.action IN ('like', 'superlike')
	)
ORDER BY s.id ASC
LIMIT $1
`, limit, afterID)
	if err != nil {
		return nil, fmt.Errorf("list unmatched mutual swipes: %w", err)
	}

	items, err := collectSwipes(rows)
	if err != nil {
		return nil, fmt.Errorf("list unmatched mutual swipes: %w", err)
	}
	return items, nil
}

func collectSwipes(rows pgx.Rows) ([]model.Swipe, error) {
	defer rows.Close()

	items := make([]model.Swipe, 0)
	for rows.Next() {
		swipe, err := scanSwipe(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, swipe)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanSwipe(row pgx.Row) (model.Swipe, error) {
	var (
		swipe    model.Swipe
		action   string
		lat, lon *float64
	)
	if err := row.Scan(
		&swipe.ID,
		&swipe.SwiperID,
		&swipe.SwipedUserID,
		&action,
		&swipe.IsMatch,
		&swipe.MatchID,
		&swipe.SwipedAt,
		&lat,
		&lon,
	); err != nil {
		return model.Swipe{}, err
	}

	swipe.Action = enums.SwipeAction(action)
	if lat != nil && lon != nil {
		swipe.Location = &model.Point{Lat: *lat, Lon: *lon}
	}
	return swipe, nil
}
