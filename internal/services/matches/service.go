package matches

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrReasonTooLong     = errors.New("unmatch reason too long")
	ErrMatchNotFound     = errors.New("match not found")
	ErrNotAuthorized     = errors.New("not a member of this match")
	ErrMatchInactive     = errors.New("match is not active")
)

type MatchStore interface {
	LockPair(ctx context.Context, tx pgx.Tx, x, y int64) error
	GetByID(ctx context.Context, matchID int64) (model.Match, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, change pgrepo.StatusChange) (bool, error)
	ListForUser(ctx context.Context, f pgrepo.MatchListFilter) ([]pgrepo.MatchWithCounterpart, int, error)
	Stats(ctx context.Context, userID int64, recentSince time.Time) (model.MatchStats, error)
}

type UserStore interface {
	AdjustMatchCount(ctx context.Context, tx pgx.Tx, delta int, userIDs ...int64) error
	Profiles(ctx context.Context, ids []int64) (map[int64]model.PublicProfile, error)
}

type BlockStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, actorUserID, targetUserID int64, now time.Time) error
}

type PhotoDecorator interface {
	Decorate(ctx context.Context, profiles ...*model.PublicProfile)
}

type Dependencies struct {
	Tx      Transactor
	Matches MatchStore
	Users   UserStore
	Blocks  BlockStore
	Photos  PhotoDecorator
	Cache   CacheInvalidator
	Logger  *zap.Logger
}

type ListQuery struct {
	Status enums.MatchStatus
	Page   int
	Limit  int
}

type MatchView struct {
	Match       model.Match
	Counterpart model.PublicProfile
}

type ListResult struct {
	Items      []MatchView
	Pagination model.Pagination
}

type Service struct {
	tx      Transactor
	matches MatchStore
	users   UserStore
	blocks  BlockStore
	photos  PhotoDecorator
	cache   CacheInvalidator
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:      deps.Tx,
		matches: deps.Matches,
		users:   deps.Users,
		blocks:  deps.Blocks,
		photos:  deps.Photos,
		cache:   deps.Cache,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) List(ctx context.Context, userID int64, q ListQuery) (ListResult, error) {
	if userID <= 0 {
		return ListResult{}, ErrValidation
	}
	if q.Status == "" {
		q.Status = enums.MatchStatusActive
	}
	if !q.Status.Valid() {
		return ListResult{}, ErrValidation
	}
	if !rules.ValidPage(q.Page, q.Limit) {
		return ListResult{}, ErrInvalidPagination
	}
	if s.matches == nil {
		return ListResult{}, fmt.Errorf("match dependencies are not configured")
	}

	rows, total, err := s.matches.ListForUser(ctx, pgrepo.MatchListFilter{
		UserID: userID,
		Status: q.Status,
		Limit:  q.Limit,
		Offset: rules.Offset(q.Page, q.Limit),
	})
	if err != nil {
		return ListResult{}, err
	}

	items := make([]MatchView, 0, len(rows))
	for _, row := range rows {
		items = append(items, MatchView{Match: row.Match, Counterpart: row.Counterpart})
	}
	s.decorate(ctx, items)

	return ListResult{
		Items:      items,
		Pagination: rules.Paginate(q.Page, q.Limit, total),
	}, nil
}

// Get returns the match as seen by userID. Matches whose counterpart no longer
// exists are reported as not found, mirroring List.
func (s *Service) Get(ctx context.Context, matchID, userID int64) (MatchView, error) {
	if matchID <= 0 || userID <= 0 {
		return MatchView{}, ErrValidation
	}
	if s.matches == nil || s.users == nil {
		return MatchView{}, fmt.Errorf("match dependencies are not configured")
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return MatchView{}, ErrMatchNotFound
		}
		return MatchView{}, err
	}
	if !rules.MatchIncludes(match, userID) {
		return MatchView{}, ErrNotAuthorized
	}

	counterpartID := rules.Counterpart(match, userID)
	profiles, err := s.users.Profiles(ctx, []int64{counterpartID})
	if err != nil {
		return MatchView{}, err
	}
	profile, ok := profiles[counterpartID]
	if !ok {
		return MatchView{}, ErrMatchNotFound
	}

	items := []MatchView{{Match: match, Counterpart: profile}}
	s.decorate(ctx, items)
	return items[0], nil
}

func (s *Service) Unmatch(ctx context.Context, matchID, userID int64, reason *string) (model.Match, error) {
	if reason != nil && utf8.RuneCountInString(*reason) > rules.UnmatchReasonMaxLen {
		return model.Match{}, ErrReasonTooLong
	}
	return s.terminate(ctx, matchID, userID, enums.MatchStatusUnmatched, reason)
}

// Block ends the match and records a block from userID against the counterpart,
// which also removes each from the other's discovery feed.
func (s *Service) Block(ctx context.Context, matchID, userID int64, reason *string) (model.Match, error) {
	if reason != nil && utf8.RuneCountInString(*reason) > rules.UnmatchReasonMaxLen {
		return model.Match{}, ErrReasonTooLong
	}
	return s.terminate(ctx, matchID, userID, enums.MatchStatusBlocked, reason)
}

func (s *Service) Stats(ctx context.Context, userID int64) (model.MatchStats, error) {
	if userID <= 0 {
		return model.MatchStats{}, ErrValidation
	}
	if s.matches == nil {
		return model.MatchStats{}, fmt.Errorf("match dependencies are not configured")
	}
	return s.matches.Stats(ctx, userID, s.now().UTC().Add(-rules.RecentMatchWindow))
}

func (s *Service) terminate(ctx context.Context, matchID, userID int64, to enums.MatchStatus, reason *string) (model.Match, error) {
	if matchID <= 0 || userID <= 0 {
		return model.Match{}, ErrValidation
	}
	if s.tx == nil || s.matches == nil || s.users == nil {
		return model.Match{}, fmt.Errorf("match dependencies are not configured")
	}

	now := s.now().UTC()
	var updated model.Match
	err := s.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		current, err := s.matches.GetByID(txCtx, matchID)
		if err != nil {
			return err
		}
		if !rules.MatchIncludes(current, userID) {
			return ErrNotAuthorized
		}

		// Pair lock first, row lock second: the same order the detector uses.
		if err := s.matches.LockPair(txCtx, tx, current.UserAID, current.UserBID); err != nil {
			return err
		}
		locked, err := s.matches.GetByIDForUpdate(txCtx, tx, matchID)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(to) {
			return ErrMatchInactive
		}

		changed, err := s.matches.UpdateStatus(txCtx, tx, pgrepo.StatusChange{
			MatchID: matchID,
			To:      to,
			ActorID: userID,
			Reason:  reason,
			At:      now,
		})
		if err != nil {
			return err
		}
		if !changed {
			return ErrMatchInactive
		}

		if err := s.users.AdjustMatchCount(txCtx, tx, -1, locked.UserAID, locked.UserBID); err != nil {
			return err
		}
		if to == enums.MatchStatusBlocked {
			if s.blocks == nil {
				return fmt.Errorf("block store is not configured")
			}
			if err := s.blocks.Upsert(txCtx, tx, userID, rules.Counterpart(locked, userID), now); err != nil {
				return err
			}
		}

		updated = locked
		updated.Status = to
		updated.UnmatchedBy = &userID
		updated.UnmatchedAt = &now
		updated.UnmatchReason = reason
		return nil
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, updated.UserAID, updated.UserBID)
	}
	s.logger.Info("match ended",
		zap.Int64("match_id", updated.ID),
		zap.Int64("actor_user_id", userID),
		zap.String("status", to.String()),
	)
	return updated, nil
}

func (s *Service) decorate(ctx context.Context, items []MatchView) {
	if s.photos == nil || len(items) == 0 {
		return
	}
	profiles := make([]*model.PublicProfile, 0, len(items))
	for i := range items {
		profiles = append(profiles, &items[i].Counterpart)
	}
	s.photos.Decorate(ctx, profiles...)
}
