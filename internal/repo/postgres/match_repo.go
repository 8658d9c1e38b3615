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
	"github.com/ivankudzin/matchcore/internal/domain/rules"
)

const activePairIndex = "matches_active_pair_uidx"

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

type MatchListFilter struct {
	UserID int64
	Status enums.MatchStatus
	Limit  int
	Offset int
}

type MatchWithCounterpart struct {
	Match       model.Match
	Counterpart model.PublicProfile
}

type StatusChange struct {
	MatchID int64
	To      enums.MatchStatus
	ActorID int64
	Reason  *string
	At      time.Time
}

const matchColumns = `m.id, m.user_a_id, m.user_b_id, m.status, m.matched_at, m.last_message_at,
	m.message_count, m.unmatched_by, m.unmatched_at, m.unmatch_reason`

// LockPair takes a transaction-scoped advisory lock on the unordered pair.
func (r *MatchRepo) LockPair(ctx context.Context, tx pgx.Tx, x, y int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, rules.PairLockKey(x, y)); err != nil {
		return fmt.Errorf("lock match pair: %w", err)
	}
	return nil
}

// CreateOrGetActive inserts the active match for the pair or returns the one
// that already exists. created is true only when this call inserted the row.
func (r *MatchRepo) CreateOrGetActive(ctx context.Context, tx pgx.Tx, x, y int64, now time.Time) (model.Match, bool, error) {
	if tx == nil {
		return model.Match{}, false, fmt.Errorf("transaction is required")
	}
	if x <= 0 || y <= 0 || x == y {
		return model.Match{}, false, fmt.Errorf("invalid match pair")
	}
	a, b := rules.CanonicalPair(x, y)

	match, err := scanMatch(tx.QueryRow(ctx, `
INSERT INTO matches AS m (user_a_id, user_b_id, status, matched_at, last_message_at)
VALUES ($1, $2, 'active', $3, $3)
ON CONFLICT (user_a_id, user_b_id) WHERE status = 'active' DO NOTHING
RETURNING `+matchColumns,
		a, b, now.UTC(),
	))
	if err == nil {
		return match, true, nil
	}
	if IsUniqueViolation(err, activePairIndex) {
		return model.Match{}, false, ErrMatchConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Match{}, false, fmt.Errorf("create match: %w", err)
	}

	match, err = scanMatch(tx.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches m
WHERE m.user_a_id = $1
	AND m.user_b_id = $2
	AND m.status = 'active'
`, a, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, false, ErrMatchConflict
		}
		return model.Match{}, false, fmt.Errorf("read active match: %w", err)
	}
	return match, false, nil
}

func (r *MatchRepo) GetByID(ctx context.Context, matchID int64) (model.Match, error) {
	if r.pool == nil {
		return model.Match{}, fmt.Errorf("postgres pool is nil")
	}
	return r.getByID(ctx, r.pool, matchID, "")
}

func (r *MatchRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error) {
	if tx == nil {
		return model.Match{}, fmt.Errorf("transaction is required")
	}
	return r.getByID(ctx, tx, matchID, "FOR UPDATE")
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *MatchRepo) getByID(ctx context.Context, q queryRower, matchID int64, lock string) (model.Match, error) {
	match, err := scanMatch(q.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches m
WHERE m.id = $1
`+lock, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("get match: %w", err)
	}
	return match, nil
}

// UpdateStatus moves an active match to a terminal status. It reports false
// when the match was no longer active.
func (r *MatchRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, change StatusChange) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}
	if !enums.MatchStatusActive.CanTransitionTo(change.To) {
		return false, fmt.Errorf("illegal match transition to %q", change.To)
	}

	tag, err := tx.Exec(ctx, `
UPDATE matches
SET status = $2,
	unmatched_by = $3,
	unmatched_at = $4,
	unmatch_reason = $5
WHERE id = $1
	AND status = 'active'
`, change.MatchID, change.To.String(), change.ActorID, change.At.UTC(), change.Reason)
	if err != nil {
		return false, fmt.Errorf("update match status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForUser pages through userID's matches with the given status. Matches
// whose counterpart row is gone are skipped by the join.
func (r *MatchRepo) ListForUser(ctx context.Context, f MatchListFilter) ([]MatchWithCounterpart, int, error) {
	if r.pool == nil {
		return nil, 0, fmt.Errorf("postgres pool is nil")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM matches m
JOIN users u ON u.id = CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END
WHERE (m.user_a_id = $1 OR m.user_b_id = $1)
	AND m.status = $2
`, f.UserID, f.Status.String()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+matchColumns+`,`+userColumns+`
FROM matches m
JOIN users u ON u.id = CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END
WHERE (m.user_a_id = $1 OR m.user_b_id = $1)
	AND m.status = $2
ORDER BY m.last_message_at DESC, m.id DESC
LIMIT $3 OFFSET $4
`, f.UserID, f.Status.String(), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	items := make([]MatchWithCounterpart, 0, f.Limit)
	for rows.Next() {
		var (
			item   MatchWithCounterpart
			status string
		)
		user, err := scanUserWith(prefixScanner{row: rows, prefix: []any{
			&item.Match.ID,
			&item.Match.UserAID,
			&item.Match.UserBID,
			&status,
			&item.Match.MatchedAt,
			&item.Match.LastMessageAt,
			&item.Match.MessageCount,
			&item.Match.UnmatchedBy,
			&item.Match.UnmatchedAt,
			&item.Match.UnmatchReason,
		}})
		if err != nil {
			return nil, 0, fmt.Errorf("scan match: %w", err)
		}
		item.Match.Status = enums.MatchStatus(status)
		item.Match.HasConversation = item.Match.MessageCount > 0
		item.Counterpart = user.Public()
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate matches: %w", rows.Err())
	}

	return items, total, nil
}

func (r *MatchRepo) Stats(ctx context.Context, userID int64, recentSince time.Time) (model.MatchStats, error) {
	if r.pool == nil {
		return model.MatchStats{}, fmt.Errorf("postgres pool is nil")
	}

	var stats model.MatchStats
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE message_count > 0),
	COUNT(*) FILTER (WHERE message_count = 0),
	COUNT(*) FILTER (WHERE matched_at >= $2)
FROM matches
WHERE (user_a_id = $1 OR user_b_id = $1)
	AND status = 'active'
`, userID, recentSince.UTC()).Scan(
		&stats.TotalMatches,
		&stats.MatchesWithConversation,
		&stats.MatchesWithoutConversation,
		&stats.RecentMatches,
	)
	if err != nil {
		return model.MatchStats{}, fmt.Errorf("match stats: %w", err)
	}
	return stats, nil
}

// prefixScanner scans leading columns into prefix before handing the rest to
// the wrapped destination list.
type prefixScanner struct {
	row    pgx.Row
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

func scanMatch(row pgx.Row) (model.Match, error) {
	var (
		match  model.Match
		status string
	)
	if err := row.Scan(
		&match.ID,
		&match.UserAID,
		&match.UserBID,
		&status,
		&match.MatchedAt,
		&match.LastMessageAt,
		&match.MessageCount,
		&match.UnmatchedBy,
		&match.UnmatchedAt,
		&match.UnmatchReason,
	); err != nil {
		return model.Match{}, err
	}
	match.Status = enums.MatchStatus(status)
	match.HasConversation = match.MessageCount > 0
	return match, nil
}
