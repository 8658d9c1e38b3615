package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	usersvc "github.com/ivankudzin/matchcore/internal/services/users"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrViewerNotFound    = errors.New("viewer not found")
)

type CandidateStore interface {
	FindCandidates(ctx context.Context, q pgrepo.CandidateQuery) ([]model.Candidate, error)
	CountCandidates(ctx context.Context, q pgrepo.CandidateQuery) (int, error)
}

type BlockStore interface {
	BlockedByIDs(ctx context.Context, userID int64) ([]int64, error)
}

type ViewerDirectory interface {
	Get(ctx context.Context, userID int64) (model.User, error)
}

type SwipeLedger interface {
	SwipedUserIDs(ctx context.Context, userID int64) ([]int64, error)
}

type PhotoDecorator interface {
	Decorate(ctx context.Context, profiles ...*model.PublicProfile)
}

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

type Dependencies struct {
	Candidates CandidateStore
	Blocks     BlockStore
	Viewers    ViewerDirectory
	Swipes     SwipeLedger
	Photos     PhotoDecorator
	Logger     *zap.Logger
}

type Result struct {
	Users []model.Candidate
	Count int
}

// SearchQuery holds explicit filters. Zero values leave a filter unset; a
// zero MaxDistanceKM disables the distance bound.
type SearchQuery struct {
	MinAge        int
	MaxAge        int
	Gender        enums.Gender
	MaxDistanceKM int
	City          string
	Country       string
	Page          int
	Limit         int
}

type SearchResult struct {
	Users      []model.Candidate
	Pagination model.Pagination
}

type Service struct {
	candidates CandidateStore
	blocks     BlockStore
	viewers    ViewerDirectory
	swipes     SwipeLedger
	photos     PhotoDecorator
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = rules.DefaultPageLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = rules.MaxPageLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		candidates: deps.Candidates,
		blocks:     deps.Blocks,
		viewers:    deps.Viewers,
		swipes:     deps.Swipes,
		photos:     deps.Photos,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Discover returns up to limit candidates the viewer has not swiped on, has
// not blocked and is not blocked by, filtered by mutual gender interest, the
// viewer's age range and, when the viewer has a location, distance.
func (s *Service) Discover(ctx context.Context, viewerID int64, limit int) (Result, error) {
	if viewerID <= 0 {
		return Result{}, ErrValidation
	}
	if s.candidates == nil || s.viewers == nil || s.swipes == nil {
		return Result{}, fmt.Errorf("feed dependencies are not configured")
	}
	limit = s.clampLimit(limit)

	viewer, err := s.viewers.Get(ctx, viewerID)
	if err != nil {
		if errors.Is(err, usersvc.ErrNotFound) {
			return Result{}, ErrViewerNotFound
		}
		return Result{}, fmt.Errorf("load viewer: %w", err)
	}

	exclude, err := s.exclusions(ctx, viewer)
	if err != nil {
		return Result{}, err
	}

	minAge, maxAge := rules.NormalizeAgeRange(viewer.Preferences.AgeRange.Min, viewer.Preferences.AgeRange.Max)
	birthFrom, birthTo := rules.BirthDateWindow(s.now().UTC(), minAge, maxAge)

	q := pgrepo.CandidateQuery{
		ViewerID:       viewer.ID,
		ViewerGender:   viewer.Gender,
		ShowMe:         viewer.Preferences.ShowMe,
		BirthFrom:      birthFrom,
		BirthTo:        birthTo,
		ExcludeIDs:     setKeys(exclude),
		MaxDistanceKM:  rules.NormalizeMaxDistanceKM(viewer.Preferences.MaxDistanceKM),
		MutualInterest: true,
		Limit:          limit,
	}
	if viewer.Location != nil {
		origin := viewer.Location.Point
		q.Origin = &origin
	}

	found, err := s.candidates.FindCandidates(ctx, q)
	if err != nil {
		return Result{}, err
	}

	users := make([]model.Candidate, 0, len(found))
	for _, candidate := range withinRadius(found, q) {
		if _, skip := exclude[candidate.Profile.ID]; skip {
			continue
		}
		users = append(users, candidate)
		if len(users) == limit {
			break
		}
	}
	s.decorate(ctx, users)

	s.logger.Debug("discovery served",
		zap.Int64("viewer_id", viewer.ID),
		zap.Int("excluded", len(exclude)),
		zap.Int("returned", len(users)),
	)
	return Result{Users: users, Count: len(users)}, nil
}

// Search pages through active users matching explicit filters. Unlike
// Discover it ignores the viewer's stored preferences and swipe history;
// blocks in either direction still exclude.
func (s *Service) Search(ctx context.Context, viewerID int64, in SearchQuery) (SearchResult, error) {
	if viewerID <= 0 {
		return SearchResult{}, ErrValidation
	}
	if !rules.ValidPage(in.Page, in.Limit) {
		return SearchResult{}, ErrInvalidPagination
	}
	minAge, maxAge, err := searchAgeRange(in.MinAge, in.MaxAge)
	if err != nil {
		return SearchResult{}, err
	}
	if in.Gender != "" && !in.Gender.Valid() {
		return SearchResult{}, ErrValidation
	}
	if in.MaxDistanceKM < 0 || in.MaxDistanceKM > rules.MaxDistanceKM {
		return SearchResult{}, ErrValidation
	}
	if s.candidates == nil || s.viewers == nil {
		return SearchResult{}, fmt.Errorf("feed dependencies are not configured")
	}

	viewer, err := s.viewers.Get(ctx, viewerID)
	if err != nil {
		if errors.Is(err, usersvc.ErrNotFound) {
			return SearchResult{}, ErrViewerNotFound
		}
		return SearchResult{}, fmt.Errorf("load viewer: %w", err)
	}

	exclude, err := s.blockExclusions(ctx, viewer)
	if err != nil {
		return SearchResult{}, err
	}

	birthFrom, birthTo := rules.BirthDateWindow(s.now().UTC(), minAge, maxAge)
	q := pgrepo.CandidateQuery{
		ViewerID:     viewer.ID,
		ViewerGender: viewer.Gender,
		Gender:       in.Gender,
		BirthFrom:    birthFrom,
		BirthTo:      birthTo,
		City:         in.City,
		Country:      in.Country,
		ExcludeIDs:   setKeys(exclude),
		Order:        pgrepo.OrderNewest,
		Limit:        in.Limit,
		Offset:       rules.Offset(in.Page, in.Limit),
	}
	if in.MaxDistanceKM > 0 && viewer.Location != nil {
		origin := viewer.Location.Point
		q.Origin = &origin
		q.MaxDistanceKM = in.MaxDistanceKM
	}

	total, err := s.candidates.CountCandidates(ctx, q)
	if err != nil {
		return SearchResult{}, err
	}
	found, err := s.candidates.FindCandidates(ctx, q)
	if err != nil {
		return SearchResult{}, err
	}
	users := withinRadius(found, q)
	if users == nil {
		users = []model.Candidate{}
	}
	s.decorate(ctx, users)

	s.logger.Debug("search served",
		zap.Int64("viewer_id", viewer.ID),
		zap.Int("total", total),
		zap.Int("returned", len(users)),
	)
	return SearchResult{
		Users:      users,
		Pagination: rules.Paginate(in.Page, in.Limit, total),
	}, nil
}

func searchAgeRange(minAge, maxAge int) (int, int, error) {
	if minAge == 0 {
		minAge = rules.DefaultAgeMin
	}
	if maxAge == 0 {
		maxAge = rules.MaxAge
	}
	if minAge < rules.DefaultAgeMin || maxAge > rules.MaxAge || minAge > maxAge {
		return 0, 0, ErrValidation
	}
	return minAge, maxAge, nil
}

// withinRadius re-checks the distance bound of q in process and records the
// computed distance on every kept candidate. Without a bound it is a no-op.
func withinRadius(found []model.Candidate, q pgrepo.CandidateQuery) []model.Candidate {
	if q.Origin == nil || q.MaxDistanceKM <= 0 {
		return found
	}
	kept := make([]model.Candidate, 0, len(found))
	for _, candidate := range found {
		if candidate.Location == nil {
			continue
		}
		distance := rules.HaversineKM(*q.Origin, *candidate.Location)
		if distance > float64(q.MaxDistanceKM) {
			continue
		}
		candidate.DistanceKM = &distance
		kept = append(kept, candidate)
	}
	return kept
}

func (s *Service) decorate(ctx context.Context, users []model.Candidate) {
	if s.photos == nil || len(users) == 0 {
		return
	}
	profiles := make([]*model.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, &users[i].Profile)
	}
	s.photos.Decorate(ctx, profiles...)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func (s *Service) exclusions(ctx context.Context, viewer model.User) (map[int64]struct{}, error) {
	exclude, err := s.blockExclusions(ctx, viewer)
	if err != nil {
		return nil, err
	}

	swiped, err := s.swipes.SwipedUserIDs(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load swiped users: %w", err)
	}
	for _, id := range swiped {
		exclude[id] = struct{}{}
	}
	return exclude, nil
}

// blockExclusions returns the viewer and every user blocked in either direction.
func (s *Service) blockExclusions(ctx context.Context, viewer model.User) (map[int64]struct{}, error) {
	exclude := map[int64]struct{}{viewer.ID: {}}
	for _, id := range viewer.BlockedUsers {
		exclude[id] = struct{}{}
	}

	if s.blocks != nil {
		blockedBy, err := s.blocks.BlockedByIDs(ctx, viewer.ID)
		if err != nil {
			return nil, fmt.Errorf("load blocked-by users: %w", err)
		}
		for _, id := range blockedBy {
			exclude[id] = struct{}{}
		}
	}
	return exclude, nil
}

func setKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
