package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/infra/metrics"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type SwipeStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, swipeID int64) (model.Swipe, error)
	FindPositive(ctx context.Context, tx pgx.Tx, swiperID, swipedUserID int64) (model.Swipe, error)
	AttachMatch(ctx context.Context, tx pgx.Tx, matchID int64, swipeIDs ...int64) error
}

type PairStore interface {
	LockPair(ctx context.Context, tx pgx.Tx, x, y int64) error
	CreateOrGetActive(ctx context.Context, tx pgx.Tx, x, y int64, now time.Time) (model.Match, bool, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error)
}

type CounterStore interface {
	AdjustMatchCount(ctx context.Context, tx pgx.Tx, delta int, userIDs ...int64) error
}

type EventPublisher interface {
	PublishMatchCreated(ctx context.Context, match model.Match) error
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...int64)
}

type DetectorConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type DetectorDependencies struct {
	Tx        Transactor
	Swipes    SwipeStore
	Pairs     PairStore
	Counters  CounterStore
	Publisher EventPublisher
	Cache     CacheInvalidator
	Logger    *zap.Logger
}

// Evaluation is the outcome of checking one swipe for reciprocity.
type Evaluation struct {
	IsMatch bool
	Match   *model.Match
	Created bool
}

// Detector turns mutual positive swipes into exactly one active match per pair.
// All work for a pair runs under a transaction-scoped advisory lock, so two
// reciprocal swipes committed at the same moment serialize here.
type Detector struct {
	tx        Transactor
	swipes    SwipeStore
	pairs     PairStore
	counters  CounterStore
	publisher EventPublisher
	cache     CacheInvalidator
	logger    *zap.Logger
	cfg       DetectorConfig
	now       func() time.Time
}

func NewDetector(deps DetectorDependencies, cfg DetectorConfig) *Detector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 20 * time.Millisecond
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		tx:        deps.Tx,
		swipes:    deps.Swipes,
		pairs:     deps.Pairs,
		counters:  deps.Counters,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Evaluate checks whether swipe has a positive reciprocal swipe and, if so,
// attaches both swipes to the pair's active match, creating it when needed.
// Calling it again for an already matched swipe returns the existing match.
func (d *Detector) Evaluate(ctx context.Context, swipe model.Swipe) (Evaluation, error) {
	if swipe.ID <= 0 || swipe.SwiperID <= 0 || swipe.SwipedUserID <= 0 {
		return Evaluation{}, fmt.Errorf("evaluate match: invalid swipe")
	}
	if !swipe.Action.Positive() {
		return Evaluation{}, nil
	}
	if d.tx == nil || d.swipes == nil || d.pairs == nil || d.counters == nil {
		return Evaluation{}, fmt.Errorf("match detector dependencies are not configured")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialInterval
	policy.MaxInterval = d.cfg.MaxInterval

	attempt := 0
	result, err := backoff.Retry(ctx, func() (Evaluation, error) {
		attempt++
		if attempt > 1 {
			metrics.MatchRetry()
		}

		ev, err := d.evaluateOnce(ctx, swipe)
		if err == nil {
			return ev, nil
		}
		if errors.Is(err, pgrepo.ErrMatchConflict) {
			metrics.MatchConflict()
		}
		if pgrepo.IsRetryable(err) {
			d.logger.Debug("match evaluation retry",
				zap.Int64("swipe_id", swipe.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return Evaluation{}, err
		}
		return Evaluation{}, backoff.Permanent(err)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(d.cfg.MaxAttempts)))
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate match for swipe %d: %w", swipe.ID, err)
	}

	if result.Created && result.Match != nil {
		d.afterCreate(ctx, *result.Match)
	}
	return result, nil
}

func (d *Detector) evaluateOnce(ctx context.Context, swipe model.Swipe) (Evaluation, error) {
	var result Evaluation
	err := d.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		result = Evaluation{}

		if err := d.pairs.LockPair(txCtx, tx, swipe.SwiperID, swipe.SwipedUserID); err != nil {
			return err
		}

		own, err := d.swipes.GetByIDForUpdate(txCtx, tx, swipe.ID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSwipeNotFound) {
				return nil
			}
			return err
		}
		if !own.Action.Positive() {
			return nil
		}
		if own.MatchID != nil {
			match, err := d.pairs.GetByIDForUpdate(txCtx, tx, *own.MatchID)
			if err != nil {
				return err
			}
			result = Evaluation{IsMatch: true, Match: &match}
			return nil
		}

		reciprocal, err := d.swipes.FindPositive(txCtx, tx, own.SwipedUserID, own.SwiperID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSwipeNotFound) {
				return nil
			}
			return err
		}

		if reciprocal.MatchID != nil {
			match, err := d.pairs.GetByIDForUpdate(txCtx, tx, *reciprocal.MatchID)
			if err != nil {
				return err
			}
			if err := d.swipes.AttachMatch(txCtx, tx, match.ID, own.ID); err != nil {
				return err
			}
			result = Evaluation{IsMatch: true, Match: &match}
			return nil
		}

		match, created, err := d.pairs.CreateOrGetActive(txCtx, tx, own.SwiperID, own.SwipedUserID, d.now().UTC())
		if err != nil {
			return err
		}
		if err := d.swipes.AttachMatch(txCtx, tx, match.ID, own.ID, reciprocal.ID); err != nil {
			return err
		}
		if created {
			if err := d.counters.AdjustMatchCount(txCtx, tx, 1, match.UserAID, match.UserBID); err != nil {
				return err
			}
		}
		result = Evaluation{IsMatch: true, Match: &match, Created: created}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	return result, nil
}

func (d *Detector) afterCreate(ctx context.Context, match model.Match) {
	metrics.MatchCreated()
	d.logger.Info("match created",
		zap.Int64("match_id", match.ID),
		zap.Int64("user_a_id", match.UserAID),
		zap.Int64("user_b_id", match.UserBID),
	)

	if d.cache != nil {
		d.cache.Invalidate(ctx, match.UserAID, match.UserBID)
	}
	if d.publisher != nil {
		if err := d.publisher.PublishMatchCreated(ctx, match); err != nil {
			d.logger.Warn("publish match created failed", zap.Int64("match_id", match.ID), zap.Error(err))
		}
	}
}
