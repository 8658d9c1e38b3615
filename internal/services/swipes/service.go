package swipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	"github.com/ivankudzin/matchcore/internal/infra/metrics"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrSelfSwipe         = errors.New("cannot swipe on yourself")
	ErrInvalidAction     = errors.New("invalid swipe action")
	ErrTargetNotFound    = errors.New("target user not found or inactive")
	ErrDuplicateSwipe    = errors.New("already swiped on this user")
	ErrNothingToUndo     = errors.New("no swipes to undo")
	ErrCannotUndoMatch   = errors.New("cannot undo a swipe that created a match")
	ErrInvalidPagination = errors.New("invalid pagination")
)

const (
	incomingLikesLimit = 100
	undoAttempts       = 3
)

// errStaleUndo means a newer swipe landed between picking the undo target and
// locking it.
var errStaleUndo = errors.New("last swipe changed during undo")

type Transactor interface {
	WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type SwipeStore interface {
	Create(ctx context.Context, tx pgx.Tx, swipe model.Swipe) (model.Swipe, error)
	GetLastByActor(ctx context.Context, tx pgx.Tx, swiperID int64) (model.Swipe, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, swipeID int64) (model.Swipe, error)
	DeleteUnmatched(ctx context.Context, tx pgx.Tx, swipeID int64) (bool, error)
	SwipedUserIDs(ctx context.Context, swiperID int64) ([]int64, error)
	History(ctx context.Context, f pgrepo.HistoryFilter) ([]model.Swipe, int, error)
	IncomingLikes(ctx context.Context, userID int64, limit int) ([]model.Swipe, error)
}

type UserStore interface {
	IsActive(ctx context.Context, tx pgx.Tx, userID int64) (bool, error)
	AdjustSwipeCount(ctx context.Context, tx pgx.Tx, userID int64, delta int) error
	Profiles(ctx context.Context, ids []int64) (map[int64]model.PublicProfile, error)
}

type PairLocker interface {
	LockPair(ctx context.Context, tx pgx.Tx, x, y int64) error
}

type MatchEvaluator interface {
	Evaluate(ctx context.Context, swipe model.Swipe) (matchsvc.Evaluation, error)
}

type PhotoDecorator interface {
	Decorate(ctx context.Context, profiles ...*model.PublicProfile)
}

type Dependencies struct {
	Tx       Transactor
	Swipes   SwipeStore
	Users    UserStore
	Pairs    PairLocker
	Detector MatchEvaluator
	Photos   PhotoDecorator
	Logger   *zap.Logger
}

type SwipeInput struct {
	SwiperID     int64
	SwipedUserID int64
	Action       string
	Location     *model.Point
}

type SwipeOutcome struct {
	Swipe model.Swipe
	Match *model.Match
}

type HistoryQuery struct {
	Action *enums.SwipeAction
	Page   int
	Limit  int
}

type HistoryItem struct {
	Swipe      model.Swipe
	SwipedUser *model.PublicProfile
}

type HistoryPage struct {
	Items      []HistoryItem
	Pagination model.Pagination
}

type IncomingLike struct {
	Profile   model.PublicProfile
	SuperLike bool
	LikedAt   time.Time
}

type Service struct {
	tx       Transactor
	swipes   SwipeStore
	users    UserStore
	pairs    PairLocker
	detector MatchEvaluator
	photos   PhotoDecorator
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:       deps.Tx,
		swipes:   deps.Swipes,
		users:    deps.Users,
		pairs:    deps.Pairs,
		detector: deps.Detector,
		photos:   deps.Photos,
		logger:   logger,
		now:      time.Now,
	}
}

// Swipe records the swipe and, for positive actions, runs match detection.
// A detection failure is returned as an error but the recorded swipe stays;
// the reconcile job picks up pairs left without a match.
func (s *Service) Swipe(ctx context.Context, in SwipeInput) (SwipeOutcome, error) {
	swipe, err := s.Record(ctx, in)
	if err != nil {
		return SwipeOutcome{}, err
	}

	out := SwipeOutcome{Swipe: swipe}
	if !swipe.Action.Positive() || s.detector == nil {
		return out, nil
	}

	ev, err := s.detector.Evaluate(ctx, swipe)
	if err != nil {
		s.logger.Error("match evaluation failed",
			zap.Int64("swipe_id", swipe.ID),
			zap.Int64("swiper_id", swipe.SwiperID),
			zap.Int64("swiped_user_id", swipe.SwipedUserID),
			zap.Error(err),
		)
		return SwipeOutcome{}, err
	}
	if ev.IsMatch && ev.Match != nil {
		matchID := ev.Match.ID
		out.Swipe.IsMatch = true
		out.Swipe.MatchID = &matchID
		out.Match = ev.Match
	}
	return out, nil
}

// Record validates and persists one swipe. Checks run in a fixed order:
// self-swipe, action, target state, duplicate.
func (s *Service) Record(ctx context.Context, in SwipeInput) (model.Swipe, error) {
	if in.SwiperID <= 0 || in.SwipedUserID <= 0 {
		return model.Swipe{}, ErrValidation
	}
	if in.SwiperID == in.SwipedUserID {
		return model.Swipe{}, ErrSelfSwipe
	}
	action, ok := enums.ParseSwipeAction(in.Action)
	if !ok {
		return model.Swipe{}, ErrInvalidAction
	}
	if in.Location != nil && !rules.ValidPoint(*in.Location) {
		return model.Swipe{}, ErrValidation
	}
	if s.tx == nil || s.swipes == nil || s.users == nil {
		return model.Swipe{}, fmt.Errorf("swipe dependencies are not configured")
	}

	var created model.Swipe
	err := s.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		active, err := s.users.IsActive(txCtx, tx, in.SwipedUserID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrUserNotFound) {
				return ErrTargetNotFound
			}
			return err
		}
		if !active {
			return ErrTargetNotFound
		}

		created, err = s.swipes.Create(txCtx, tx, model.Swipe{
			SwiperID:     in.SwiperID,
			SwipedUserID: in.SwipedUserID,
			Action:       action,
			SwipedAt:     s.now().UTC(),
			Location:     in.Location,
		})
		if err != nil {
			if errors.Is(err, pgrepo.ErrDuplicateSwipe) {
				return ErrDuplicateSwipe
			}
			return err
		}

		return s.users.AdjustSwipeCount(txCtx, tx, in.SwiperID, 1)
	})
	if err != nil {
		return model.Swipe{}, err
	}

	metrics.SwipeRecorded(action.String())
	return created, nil
}

// UndoLast deletes the caller's most recent swipe unless it produced a match.
func (s *Service) UndoLast(ctx context.Context, userID int64) (model.Swipe, error) {
	if userID <= 0 {
		return model.Swipe{}, ErrValidation
	}
	if s.tx == nil || s.swipes == nil || s.users == nil || s.pairs == nil {
		return model.Swipe{}, fmt.Errorf("swipe dependencies are not configured")
	}

	var (
		undone model.Swipe
		err    error
	)
	for attempt := 1; attempt <= undoAttempts; attempt++ {
		undone, err = s.undoOnce(ctx, userID)
		if !errors.Is(err, errStaleUndo) {
			break
		}
		s.logger.Debug("undo target changed, retrying", zap.Int64("user_id", userID), zap.Int("attempt", attempt))
	}
	if err != nil {
		return model.Swipe{}, err
	}

	s.logger.Info("swipe undone",
		zap.Int64("swipe_id", undone.ID),
		zap.Int64("swiper_id", undone.SwiperID),
		zap.String("action", undone.Action.String()),
	)
	return undone, nil
}

func (s *Service) undoOnce(ctx context.Context, userID int64) (model.Swipe, error) {
	var undone model.Swipe
	err := s.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		last, err := s.swipes.GetLastByActor(txCtx, tx, userID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSwipeNotFound) {
				return ErrNothingToUndo
			}
			return err
		}

		// Detection for this pair holds the same lock, so a match cannot
		// attach to the swipe between the check and the delete.
		if err := s.pairs.LockPair(txCtx, tx, last.SwiperID, last.SwipedUserID); err != nil {
			return err
		}
		locked, err := s.swipes.GetByIDForUpdate(txCtx, tx, last.ID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSwipeNotFound) {
				return errStaleUndo
			}
			return err
		}
		latest, err := s.swipes.GetLastByActor(txCtx, tx, userID)
		if err != nil {
			return err
		}
		if latest.ID != locked.ID {
			return errStaleUndo
		}
		if locked.IsMatch {
			return ErrCannotUndoMatch
		}

		deleted, err := s.swipes.DeleteUnmatched(txCtx, tx, locked.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrCannotUndoMatch
		}
		if err := s.users.AdjustSwipeCount(txCtx, tx, userID, -1); err != nil {
			return err
		}
		undone = locked
		return nil
	})
	if err != nil {
		return model.Swipe{}, err
	}
	return undone, nil
}

func (s *Service) SwipedUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.swipes == nil {
		return nil, fmt.Errorf("swipe dependencies are not configured")
	}
	return s.swipes.SwipedUserIDs(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID int64, q HistoryQuery) (HistoryPage, error) {
	if userID <= 0 {
		return HistoryPage{}, ErrValidation
	}
	if !rules.ValidPage(q.Page, q.Limit) {
		return HistoryPage{}, ErrInvalidPagination
	}
	if q.Action != nil && !q.Action.Valid() {
		return HistoryPage{}, ErrInvalidAction
	}
	if s.swipes == nil || s.users == nil {
		return HistoryPage{}, fmt.Errorf("swipe dependencies are not configured")
	}

	rows, total, err := s.swipes.History(ctx, pgrepo.HistoryFilter{
		SwiperID: userID,
		Action:   q.Action,
		Limit:    q.Limit,
		Offset:   rules.Offset(q.Page, q.Limit),
	})
	if err != nil {
		return HistoryPage{}, err
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SwipedUserID)
	}
	profiles, err := s.users.Profiles(ctx, ids)
	if err != nil {
		return HistoryPage{}, err
	}

	items := make([]HistoryItem, 0, len(rows))
	decorated := make([]*model.PublicProfile, 0, len(rows))
	for _, row := range rows {
		item := HistoryItem{Swipe: row}
		if profile, ok := profiles[row.SwipedUserID]; ok {
			item.SwipedUser = &profile
			decorated = append(decorated, item.SwipedUser)
		}
		items = append(items, item)
	}
	if s.photos != nil {
		s.photos.Decorate(ctx, decorated...)
	}

	return HistoryPage{
		Items:      items,
		Pagination: rules.Paginate(q.Page, q.Limit, total),
	}, nil
}

// IncomingLikes lists users who liked userID and are not yet matched with them.
func (s *Service) IncomingLikes(ctx context.Context, userID int64) ([]IncomingLike, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.swipes == nil || s.users == nil {
		return nil, fmt.Errorf("swipe dependencies are not configured")
	}

	rows, err := s.swipes.IncomingLikes(ctx, userID, incomingLikesLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SwiperID)
	}
	profiles, err := s.users.Profiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	likes := make([]IncomingLike, 0, len(rows))
	for _, row := range rows {
		profile, ok := profiles[row.SwiperID]
		if !ok {
			continue
		}
		likes = append(likes, IncomingLike{
			Profile:   profile,
			SuperLike: row.Action == enums.SwipeActionSuperLike,
			LikedAt:   row.SwipedAt,
		})
	}
	if s.photos != nil {
		decorated := make([]*model.PublicProfile, 0, len(likes))
		for i := range likes {
			decorated = append(decorated, &likes[i].Profile)
		}
		s.photos.Decorate(ctx, decorated...)
	}
	return likes, nil
}
