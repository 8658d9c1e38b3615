package matches

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

// serialTx runs every transaction under one mutex, standing in for the pair lock.
type serialTx struct {
	mu    sync.Mutex
	calls int
}

func (s *serialTx) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fn(ctx, nil)
}

type memStore struct {
	mu          sync.Mutex
	swipes      map[int64]model.Swipe
	matches     map[int64]model.Match
	nextMatchID int64
	matchCounts map[int64]int
	blocks      map[[2]int64]time.Time
	profiles    map[int64]model.PublicProfile
	conflicts   int
	lockCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		swipes:      make(map[int64]model.Swipe),
		matches:     make(map[int64]model.Match),
		matchCounts: make(map[int64]int),
		blocks:      make(map[[2]int64]time.Time),
		profiles:    make(map[int64]model.PublicProfile),
	}
}

func (m *memStore) addSwipe(id, swiper, swiped int64, action enums.SwipeAction) model.Swipe {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Swipe{ID: id, SwiperID: swiper, SwipedUserID: swiped, Action: action, SwipedAt: time.Now().UTC()}
	m.swipes[id] = s
	return s
}

func (m *memStore) addMatch(match model.Match) model.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMatchID++
	if match.ID == 0 {
		match.ID = m.nextMatchID
	}
	match.UserAID, match.UserBID = rules.CanonicalPair(match.UserAID, match.UserBID)
	if match.Status == "" {
		match.Status = enums.MatchStatusActive
	}
	m.matches[match.ID] = match
	return match
}

func (m *memStore) GetByIDForUpdate(_ context.Context, _ pgx.Tx, swipeID int64) (model.Swipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swipes[swipeID]
	if !ok {
		return model.Swipe{}, pgrepo.ErrSwipeNotFound
	}
	return s, nil
}

func (m *memStore) FindPositive(_ context.Context, _ pgx.Tx, swiperID, swipedUserID int64) (model.Swipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.swipes {
		if s.SwiperID == swiperID && s.SwipedUserID == swipedUserID && s.Action.Positive() {
			return s, nil
		}
	}
	return model.Swipe{}, pgrepo.ErrSwipeNotFound
}

func (m *memStore) AttachMatch(_ context.Context, _ pgx.Tx, matchID int64, swipeIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range swipeIDs {
		s := m.swipes[id]
		s.IsMatch = true
		mid := matchID
		s.MatchID = &mid
		m.swipes[id] = s
	}
	return nil
}

func (m *memStore) LockPair(context.Context, pgx.Tx, int64, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	return nil
}

func (m *memStore) CreateOrGetActive(_ context.Context, _ pgx.Tx, x, y int64, now time.Time) (model.Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return model.Match{}, false, pgrepo.ErrMatchConflict
	}
	a, b := rules.CanonicalPair(x, y)
	for _, match := range m.matches {
		if match.UserAID == a && match.UserBID == b && match.Status == enums.MatchStatusActive {
			return match, false, nil
		}
	}
	m.nextMatchID++
	match := model.Match{
		ID:            m.nextMatchID,
		UserAID:       a,
		UserBID:       b,
		Status:        enums.MatchStatusActive,
		MatchedAt:     now,
		LastMessageAt: now,
	}
	m.matches[match.ID] = match
	return match, true, nil
}

func (m *memStore) matchByID(matchID int64) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return match, nil
}

// matchStore adapts memStore to the lifecycle's MatchStore, whose
// GetByIDForUpdate reads matches instead of swipes.
type matchStore struct{ *memStore }

func (m matchStore) GetByID(_ context.Context, matchID int64) (model.Match, error) {
	return m.matchByID(matchID)
}

func (m matchStore) GetByIDForUpdate(_ context.Context, _ pgx.Tx, matchID int64) (model.Match, error) {
	return m.matchByID(matchID)
}

func (m matchStore) UpdateStatus(_ context.Context, _ pgx.Tx, change pgrepo.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[change.MatchID]
	if !ok || match.Status != enums.MatchStatusActive {
		return false, nil
	}
	actor := change.ActorID
	at := change.At
	match.Status = change.To
	match.UnmatchedBy = &actor
	match.UnmatchedAt = &at
	match.UnmatchReason = change.Reason
	m.matches[change.MatchID] = match
	return true, nil
}

func (m matchStore) ListForUser(_ context.Context, f pgrepo.MatchListFilter) ([]pgrepo.MatchWithCounterpart, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]pgrepo.MatchWithCounterpart, 0)
	for _, match := range m.matches {
		if match.Status != f.Status || !rules.MatchIncludes(match, f.UserID) {
			continue
		}
		profile, ok := m.profiles[rules.Counterpart(match, f.UserID)]
		if !ok {
			continue
		}
		all = append(all, pgrepo.MatchWithCounterpart{Match: match, Counterpart: profile})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Match.LastMessageAt.Equal(all[j].Match.LastMessageAt) {
			return all[i].Match.ID > all[j].Match.ID
		}
		return all[i].Match.LastMessageAt.After(all[j].Match.LastMessageAt)
	})
	total := len(all)
	if f.Offset >= total {
		return []pgrepo.MatchWithCounterpart{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (m matchStore) Stats(_ context.Context, userID int64, recentSince time.Time) (model.MatchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats model.MatchStats
	for _, match := range m.matches {
		if match.Status != enums.MatchStatusActive || !rules.MatchIncludes(match, userID) {
			continue
		}
		stats.TotalMatches++
		if match.MessageCount > 0 {
			stats.MatchesWithConversation++
		} else {
			stats.MatchesWithoutConversation++
		}
		if !match.MatchedAt.Before(recentSince) {
			stats.RecentMatches++
		}
	}
	return stats, nil
}

func (m *memStore) AdjustMatchCount(_ context.Context, _ pgx.Tx, delta int, userIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		m.matchCounts[id] += delta
		if m.matchCounts[id] < 0 {
			m.matchCounts[id] = 0
		}
	}
	return nil
}

func (m *memStore) Upsert(_ context.Context, _ pgx.Tx, actorUserID, targetUserID int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[[2]int64{actorUserID, targetUserID}] = now
	return nil
}

func (m *memStore) Profiles(_ context.Context, ids []int64) (map[int64]model.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]model.PublicProfile, len(ids))
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type publisherStub struct {
	mu      sync.Mutex
	matches []model.Match
}

func (p *publisherStub) PublishMatchCreated(_ context.Context, match model.Match) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches = append(p.matches, match)
	return nil
}

type cacheStub struct {
	mu  sync.Mutex
	ids []int64
}

func (c *cacheStub) Invalidate(_ context.Context, userIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, userIDs...)
}
