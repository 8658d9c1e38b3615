package swipes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
)

type serialTx struct {
	mu sync.Mutex
}

func (s *serialTx) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, nil)
}

// ledger is an in-memory swipes, users and matches store that enforces the
// same uniqueness rules as the schema.
type ledger struct {
	mu          sync.Mutex
	nextSwipeID int64
	nextMatchID int64
	swipes      map[int64]model.Swipe
	matches     map[int64]model.Match
	active      map[int64]bool
	profiles    map[int64]model.PublicProfile
	swipeCounts map[int64]int
	matchCounts map[int64]int
}

func newLedger(userIDs ...int64) *ledger {
	l := &ledger{
		swipes:      make(map[int64]model.Swipe),
		matches:     make(map[int64]model.Match),
		active:      make(map[int64]bool),
		profiles:    make(map[int64]model.PublicProfile),
		swipeCounts: make(map[int64]int),
		matchCounts: make(map[int64]int),
	}
	for _, id := range userIDs {
		l.active[id] = true
		l.profiles[id] = model.PublicProfile{ID: id, PhotoKey: "p"}
	}
	return l
}

func (l *ledger) Create(_ context.Context, _ pgx.Tx, swipe model.Swipe) (model.Swipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.swipes {
		if existing.SwiperID == swipe.SwiperID && existing.SwipedUserID == swipe.SwipedUserID {
			return model.Swipe{}, pgrepo.ErrDuplicateSwipe
		}
	}
	l.nextSwipeID++
	swipe.ID = l.nextSwipeID
	l.swipes[swipe.ID] = swipe
	return swipe, nil
}

func (l *ledger) GetLastByActor(_ context.Context, _ pgx.Tx, swiperID int64) (model.Swipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		last  model.Swipe
		found bool
	)
	for _, s := range l.swipes {
		if s.SwiperID != swiperID {
			continue
		}
		if !found || s.SwipedAt.After(last.SwipedAt) || (s.SwipedAt.Equal(last.SwipedAt) && s.ID > last.ID) {
			last, found = s, true
		}
	}
	if !found {
		return model.Swipe{}, pgrepo.ErrSwipeNotFound
	}
	return last, nil
}

func (l *ledger) GetByIDForUpdate(_ context.Context, _ pgx.Tx, swipeID int64) (model.Swipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.swipes[swipeID]
	if !ok {
		return model.Swipe{}, pgrepo.ErrSwipeNotFound
	}
	return s, nil
}

func (l *ledger) DeleteUnmatched(_ context.Context, _ pgx.Tx, swipeID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.swipes[swipeID]
	if !ok || s.IsMatch {
		return false, nil
	}
	delete(l.swipes, swipeID)
	return true, nil
}

func (l *ledger) SwipedUserIDs(_ context.Context, swiperID int64) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0)
	for _, s := range l.swipes {
		if s.SwiperID == swiperID {
			ids = append(ids, s.SwipedUserID)
		}
	}
	return ids, nil
}

func (l *ledger) sorted(filter func(model.Swipe) bool) []model.Swipe {
	out := make([]model.Swipe, 0)
	for _, s := range l.swipes {
		if filter(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SwipedAt.Equal(out[j].SwipedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SwipedAt.After(out[j].SwipedAt)
	})
	return out
}

func (l *ledger) History(_ context.Context, f pgrepo.HistoryFilter) ([]model.Swipe, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.sorted(func(s model.Swipe) bool {
		return s.SwiperID == f.SwiperID && (f.Action == nil || s.Action == *f.Action)
	})
	total := len(all)
	if f.Offset >= total {
		return []model.Swipe{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (l *ledger) IncomingLikes(_ context.Context, userID int64, limit int) ([]model.Swipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.sorted(func(s model.Swipe) bool {
		return s.SwipedUserID == userID && s.Action.Positive() && !s.IsMatch
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (l *ledger) IsActive(_ context.Context, _ pgx.Tx, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	active, ok := l.active[userID]
	if !ok {
		return false, pgrepo.ErrUserNotFound
	}
	return active, nil
}

func (l *ledger) AdjustSwipeCount(_ context.Context, _ pgx.Tx, userID int64, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.swipeCounts[userID] += delta
	return nil
}

func (l *ledger) AdjustMatchCount(_ context.Context, _ pgx.Tx, delta int, userIDs ...int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range userIDs {
		l.matchCounts[id] += delta
	}
	return nil
}

func (l *ledger) Profiles(_ context.Context, ids []int64) (map[int64]model.PublicProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]model.PublicProfile, len(ids))
	for _, id := range ids {
		if p, ok := l.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (l *ledger) LockPair(context.Context, pgx.Tx, int64, int64) error {
	return nil
}

func (l *ledger) FindPositive(_ context.Context, _ pgx.Tx, swiperID, swipedUserID int64) (model.Swipe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.swipes {
		if s.SwiperID == swiperID && s.SwipedUserID == swipedUserID && s.Action.Positive() {
			return s, nil
		}
	}
	return model.Swipe{}, pgrepo.ErrSwipeNotFound
}

func (l *ledger) AttachMatch(_ context.Context, _ pgx.Tx, matchID int64, swipeIDs ...int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range swipeIDs {
		s := l.swipes[id]
		mid := matchID
		s.IsMatch = true
		s.MatchID = &mid
		l.swipes[id] = s
	}
	return nil
}

// pairs exposes the ledger's match table to the detector.
type pairs struct{ *ledger }

func (p pairs) CreateOrGetActive(_ context.Context, _ pgx.Tx, x, y int64, now time.Time) (model.Match, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, b := rules.CanonicalPair(x, y)
	for _, m := range p.matches {
		if m.UserAID == a && m.UserBID == b && m.Status == enums.MatchStatusActive {
			return m, false, nil
		}
	}
	p.nextMatchID++
	m := model.Match{ID: p.nextMatchID, UserAID: a, UserBID: b, Status: enums.MatchStatusActive, MatchedAt: now, LastMessageAt: now}
	p.matches[m.ID] = m
	return m, true, nil
}

func (p pairs) GetByIDForUpdate(_ context.Context, _ pgx.Tx, matchID int64) (model.Match, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.matches[matchID]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return m, nil
}

type photoStub struct{}

func (photoStub) Decorate(_ context.Context, profiles ...*model.PublicProfile) {
	for _, p := range profiles {
		p.PhotoURL = "https://cdn.test/" + p.PhotoKey
	}
}
