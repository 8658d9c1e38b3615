package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/infra/metrics"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
)

const defaultBatch = 200

type MutualSwipeLister interface {
	ListUnmatchedMutual(ctx context.Context, afterID int64, limit int) ([]model.Swipe, error)
}

type MatchEvaluator interface {
	Evaluate(ctx context.Context, swipe model.Swipe) (matchsvc.Evaluation, error)
}

type Result struct {
	Scanned int
	Created int
	Failed  int
}

// Job repairs pairs whose reciprocal positive swipes were committed but never
// turned into a match, for example when detection failed after the second
// swipe was recorded.
type Job struct {
	swipes    MutualSwipeLister
	evaluator MatchEvaluator
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

func New(swipes MutualSwipeLister, evaluator MatchEvaluator, batch int, logger *zap.Logger) *Job {
	if batch <= 0 {
		batch = defaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		swipes:    swipes,
		evaluator: evaluator,
		batch:     batch,
		logger:    logger,
		now:       time.Now,
	}
}

// Run walks every pending swipe in id order, batch by batch. Swipes that keep
// failing are skipped by the cursor, so they never hide newer pending pairs.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if j.swipes == nil || j.evaluator == nil {
		return Result{}, nil
	}

	started := j.now()
	var (
		res     Result
		afterID int64
	)
	for {
		pending, err := j.swipes.ListUnmatchedMutual(ctx, afterID, j.batch)
		if err != nil {
			return res, fmt.Errorf("list unmatched mutual swipes: %w", err)
		}

		for _, swipe := range pending {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			afterID = swipe.ID
			j.evaluate(ctx, swipe, &res)
		}
		if len(pending) < j.batch {
			break
		}
	}

	if res.Scanned > 0 {
		j.logger.Info("match reconciliation completed",
			zap.Int("scanned", res.Scanned),
			zap.Int("created", res.Created),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", j.now().Sub(started)),
		)
	}
	return res, nil
}

func (j *Job) evaluate(ctx context.Context, swipe model.Swipe, res *Result) {
	evaluation, err := j.evaluator.Evaluate(ctx, swipe)
	if err != nil {
		res.Failed++
		j.logger.Warn("reconcile swipe failed",
			zap.Int64("swipe_id", swipe.ID),
			zap.Int64("swiper_id", swipe.SwiperID),
			zap.Int64("swiped_user_id", swipe.SwipedUserID),
			zap.Error(err),
		)
		return
	}
	if evaluation.Created {
		res.Created++
		metrics.MatchReconciled()
	}
}
