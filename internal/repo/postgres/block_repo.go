package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BlockRepo struct {
	pool *pgxpool.Pool
}

func NewBlockRepo(pool *pgxpool.Pool) *BlockRepo {
	return &BlockRepo{pool: pool}
}

// Upsert records that actorUserID blocked targetUserID. Repeated blocks keep
// the original timestamp.
func (r *BlockRepo) Upsert(ctx context.Context, tx pgx.Tx, actorUserID, targetUserID int64, now time.Time) error {
	if actorUserID <= 0 || targetUserID <= 0 || actorUserID == targetUserID {
		return fmt.Errorf("invalid block payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO user_blocks (
	actor_user_id,
	target_user_id,
	created_at
) VALUES ($1, $2, $3)
ON CONFLICT (actor_user_id, target_user_id) DO NOTHING
`, actorUserID, targetUserID, now.UTC()); err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}

	return nil
}

// BlockedIDs returns users blocked by userID.
func (r *BlockRepo) BlockedIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.collectIDs(ctx, `
SELECT target_user_id FROM user_blocks WHERE actor_user_id = $1
`, userID, "list blocked users")
}

// BlockedByIDs returns users who blocked userID.
func (r *BlockRepo) BlockedByIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.collectIDs(ctx, `
SELECT actor_user_id FROM user_blocks WHERE target_user_id = $1
`, userID, "list blocking users")
}

func (r *BlockRepo) collectIDs(ctx context.Context, query string, userID int64, op string) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
