package swipes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
)

type evaluatorStub struct {
	calls int
	ev    matchsvc.Evaluation
	err   error
}

func (s *evaluatorStub) Evaluate(context.Context, model.Swipe) (matchsvc.Evaluation, error) {
	s.calls++
	return s.ev, s.err
}

func newTestService(l *ledger, detector MatchEvaluator) *Service {
	svc := NewService(Dependencies{
		Tx:       &serialTx{},
		Swipes:   l,
		Users:    l,
		Pairs:    l,
		Detector: detector,
		Photos:   photoStub{},
	})
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func TestRecordValidationOrder(t *testing.T) {
	l := newLedger(1, 2)
	l.active[3] = false
	svc := newTestService(l, nil)
	ctx := context.Background()

	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 1, Action: "bogus"}); !errors.Is(err, ErrSelfSwipe) {
		t.Fatalf("self swipe should be reported before action, got %v", err)
	}
	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 99, Action: "bogus"}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("invalid action should be reported before target, got %v", err)
	}
	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 99, Action: "like"}); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound for missing user, got %v", err)
	}
	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 3, Action: "like"}); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound for inactive user, got %v", err)
	}

	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "dislike"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "like"}); !errors.Is(err, ErrDuplicateSwipe) {
		t.Fatalf("expected ErrDuplicateSwipe, got %v", err)
	}
	if l.swipeCounts[1] != 1 {
		t.Fatalf("expected one counted swipe, got %d", l.swipeCounts[1])
	}
}

func TestRecordRejectsInvalidLocation(t *testing.T) {
	svc := newTestService(newLedger(1, 2), nil)
	_, err := svc.Record(context.Background(), SwipeInput{
		SwiperID:     1,
		SwipedUserID: 2,
		Action:       "like",
		Location:     &model.Point{Lat: 95, Lon: 0},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSwipeRunsDetectionForPositiveActions(t *testing.T) {
	l := newLedger(1, 2, 3)
	match := model.Match{ID: 42, UserAID: 1, UserBID: 2, Status: enums.MatchStatusActive}
	detector := &evaluatorStub{ev: matchsvc.Evaluation{IsMatch: true, Match: &match, Created: true}}
	svc := newTestService(l, detector)

	out, err := svc.Swipe(context.Background(), SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "LIKE"})
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if !out.Swipe.IsMatch || out.Swipe.MatchID == nil || *out.Swipe.MatchID != 42 || out.Match == nil {
		t.Fatalf("expected match in outcome, got %+v", out)
	}

	if _, err := svc.Swipe(context.Background(), SwipeInput{SwiperID: 1, SwipedUserID: 3, Action: "dislike"}); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	if detector.calls != 1 {
		t.Fatalf("dislike must skip detection, got %d calls", detector.calls)
	}
}

func TestSwipeDetectionFailureKeepsSwipe(t *testing.T) {
	l := newLedger(1, 2)
	svc := newTestService(l, &evaluatorStub{err: errors.New("db gone")})

	if _, err := svc.Swipe(context.Background(), SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "superlike"}); err == nil {
		t.Fatalf("expected detection error")
	}
	if len(l.swipes) != 1 {
		t.Fatalf("swipe must remain recorded, got %d", len(l.swipes))
	}
}

func TestLikeAfterDislikeIsRecordedWithoutMatch(t *testing.T) {
	l := newLedger(1, 2)
	tx := &serialTx{}
	detector := matchsvc.NewDetector(matchsvc.DetectorDependencies{
		Tx:       tx,
		Swipes:   l,
		Pairs:    pairs{l},
		Counters: l,
	}, matchsvc.DetectorConfig{MaxAttempts: 3, InitialInterval: time.Millisecond})
	svc := NewService(Dependencies{Tx: tx, Swipes: l, Users: l, Pairs: l, Detector: detector})
	ctx := context.Background()

	if _, err := svc.Swipe(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "dislike"}); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	out, err := svc.Swipe(ctx, SwipeInput{SwiperID: 2, SwipedUserID: 1, Action: "like"})
	if err != nil {
		t.Fatalf("like: %v", err)
	}

	if out.Swipe.IsMatch || out.Match != nil {
		t.Fatalf("expected no match, got %+v", out)
	}
	if _, ok := l.swipes[out.Swipe.ID]; !ok {
		t.Fatalf("like must be recorded")
	}
	if len(l.matches) != 0 || l.matchCounts[1] != 0 || l.matchCounts[2] != 0 {
		t.Fatalf("unexpected match state: matches=%d counts=%+v", len(l.matches), l.matchCounts)
	}
}

func TestConcurrentReciprocalSwipesCreateOneMatch(t *testing.T) {
	l := newLedger(1, 2)
	tx := &serialTx{}
	detector := matchsvc.NewDetector(matchsvc.DetectorDependencies{
		Tx:       tx,
		Swipes:   l,
		Pairs:    pairs{l},
		Counters: l,
	}, matchsvc.DetectorConfig{MaxAttempts: 3, InitialInterval: time.Millisecond})
	svc := NewService(Dependencies{Tx: tx, Swipes: l, Users: l, Pairs: l, Detector: detector})

	var (
		wg       sync.WaitGroup
		outcomes [2]SwipeOutcome
		errs     [2]error
	)
	inputs := []SwipeInput{
		{SwiperID: 1, SwipedUserID: 2, Action: "like"},
		{SwiperID: 2, SwipedUserID: 1, Action: "superlike"},
	}
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in SwipeInput) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Swipe(context.Background(), in)
		}(i, in)
	}
	wg.Wait()

	matched := 0
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("swipe %d: %v", i, errs[i])
		}
		if outcomes[i].Swipe.IsMatch {
			matched++
		}
	}
	if matched == 0 {
		t.Fatalf("expected at least one swipe to report the match")
	}
	if len(l.matches) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(l.matches))
	}
	for _, s := range l.swipes {
		if !s.IsMatch || s.MatchID == nil {
			t.Fatalf("swipe %d not attached to the match", s.ID)
		}
	}
	if l.matchCounts[1] != 1 || l.matchCounts[2] != 1 {
		t.Fatalf("unexpected match counts: %+v", l.matchCounts)
	}
}

func TestUndoLast(t *testing.T) {
	l := newLedger(1, 2, 3)
	svc := newTestService(l, nil)
	ctx := context.Background()

	if _, err := svc.UndoLast(ctx, 1); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}

	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "like"}); err != nil {
		t.Fatalf("record first: %v", err)
	}
	second, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 3, Action: "dislike"})
	if err != nil {
		t.Fatalf("record second: %v", err)
	}

	undone, err := svc.UndoLast(ctx, 1)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.ID != second.ID {
		t.Fatalf("expected most recent swipe %d undone, got %d", second.ID, undone.ID)
	}
	if len(l.swipes) != 1 || l.swipeCounts[1] != 1 {
		t.Fatalf("unexpected state after undo: swipes=%d count=%d", len(l.swipes), l.swipeCounts[1])
	}

	if _, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 3, Action: "like"}); err != nil {
		t.Fatalf("re-swipe after undo: %v", err)
	}
}

func TestUndoLastRefusesMatchedSwipe(t *testing.T) {
	l := newLedger(1, 2)
	svc := newTestService(l, nil)
	ctx := context.Background()

	swipe, err := svc.Record(ctx, SwipeInput{SwiperID: 1, SwipedUserID: 2, Action: "like"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.AttachMatch(ctx, nil, 7, swipe.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if _, err := svc.UndoLast(ctx, 1); !errors.Is(err, ErrCannotUndoMatch) {
		t.Fatalf("expected ErrCannotUndoMatch, got %v", err)
	}
	if len(l.swipes) != 1 {
		t.Fatalf("matched swipe must not be deleted")
	}
}

// lateSwipeLedger records another swipe right after the first lookup of the
// actor's latest swipe, before the undo transaction locks it.
type lateSwipeLedger struct {
	*ledger
	once sync.Once
	late model.Swipe
}

func (l *lateSwipeLedger) GetLastByActor(ctx context.Context, tx pgx.Tx, swiperID int64) (model.Swipe, error) {
	last, err := l.ledger.GetLastByActor(ctx, tx, swiperID)
	l.once.Do(func() {
		l.late, _ = l.ledger.Create(ctx, tx, model.Swipe{
			SwiperID:     swiperID,
			SwipedUserID: 3,
			Action:       enums.SwipeActionLike,
			SwipedAt:     last.SwipedAt.Add(time.Minute),
		})
	})
	return last, err
}

func TestUndoLastTargetsSwipeRecordedDuringUndo(t *testing.T) {
	l := newLedger(1, 2, 3)
	racing := &lateSwipeLedger{ledger: l}
	svc := NewService(Dependencies{
		Tx:     &serialTx{},
		Swipes: racing,
		Users:  l,
		Pairs:  l,
	})
	ctx := context.Background()

	first, err := l.Create(ctx, nil, model.Swipe{
		SwiperID:     1,
		SwipedUserID: 2,
		Action:       enums.SwipeActionDislike,
		SwipedAt:     time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed swipe: %v", err)
	}

	undone, err := svc.UndoLast(ctx, 1)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if racing.late.ID == 0 {
		t.Fatalf("expected a swipe to be recorded during undo")
	}
	if undone.ID != racing.late.ID {
		t.Fatalf("expected newest swipe %d undone, got %d", racing.late.ID, undone.ID)
	}
	if _, ok := l.swipes[first.ID]; !ok {
		t.Fatalf("older swipe %d must survive the undo", first.ID)
	}
}

func TestHistory(t *testing.T) {
	l := newLedger(1, 2, 3, 4)
	svc := newTestService(l, nil)
	ctx := context.Background()

	for _, in := range []SwipeInput{
		{SwiperID: 1, SwipedUserID: 2, Action: "like"},
		{SwiperID: 1, SwipedUserID: 3, Action: "dislike"},
		{SwiperID: 1, SwipedUserID: 4, Action: "like"},
	} {
		if _, err := svc.Record(ctx, in); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	delete(l.profiles, 4)

	page, err := svc.History(ctx, 1, HistoryQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Pagination.Total != 3 || len(page.Items) != 2 || !page.Pagination.HasNextPage {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}
	if page.Items[0].Swipe.SwipedUserID != 4 || page.Items[0].SwipedUser != nil {
		t.Fatalf("expected newest swipe first with missing profile, got %+v", page.Items[0])
	}
	if page.Items[1].SwipedUser == nil || page.Items[1].SwipedUser.PhotoURL == "" {
		t.Fatalf("expected decorated profile, got %+v", page.Items[1])
	}

	like := enums.SwipeActionLike
	page, err = svc.History(ctx, 1, HistoryQuery{Action: &like, Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("history filtered: %v", err)
	}
	if page.Pagination.Total != 2 {
		t.Fatalf("expected two likes, got %d", page.Pagination.Total)
	}

	if _, err := svc.History(ctx, 1, HistoryQuery{Page: 1, Limit: 0}); !errors.Is(err, ErrInvalidPagination) {
		t.Fatalf("expected ErrInvalidPagination, got %v", err)
	}
}

func TestIncomingLikes(t *testing.T) {
	l := newLedger(1, 2, 3, 4)
	svc := newTestService(l, nil)
	ctx := context.Background()

	for _, in := range []SwipeInput{
		{SwiperID: 2, SwipedUserID: 1, Action: "like"},
		{SwiperID: 3, SwipedUserID: 1, Action: "superlike"},
		{SwiperID: 4, SwipedUserID: 1, Action: "dislike"},
	} {
		if _, err := svc.Record(ctx, in); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	likes, err := svc.IncomingLikes(ctx, 1)
	if err != nil {
		t.Fatalf("incoming likes: %v", err)
	}
	if len(likes) != 2 {
		t.Fatalf("expected two incoming likes, got %d", len(likes))
	}
	if likes[0].Profile.ID != 3 || !likes[0].SuperLike {
		t.Fatalf("expected newest superlike first, got %+v", likes[0])
	}
	if likes[1].SuperLike {
		t.Fatalf("plain like flagged as superlike")
	}
}
