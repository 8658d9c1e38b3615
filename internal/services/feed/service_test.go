package feed

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	usersvc "github.com/ivankudzin/matchcore/internal/services/users"
)

type candidateStoreStub struct {
	last      pgrepo.CandidateQuery
	lastCount pgrepo.CandidateQuery
	result    []model.Candidate
	total     int
}

func (s *candidateStoreStub) FindCandidates(_ context.Context, q pgrepo.CandidateQuery) ([]model.Candidate, error) {
	s.last = q
	return s.result, nil
}

func (s *candidateStoreStub) CountCandidates(_ context.Context, q pgrepo.CandidateQuery) (int, error) {
	s.lastCount = q
	return s.total, nil
}

func located(id int64, lat, lon float64) model.Candidate {
	return model.Candidate{
		Profile:  model.PublicProfile{ID: id, PhotoKey: "k"},
		Location: &model.Point{Lat: lat, Lon: lon},
	}
}

type blockStoreStub struct{ ids []int64 }

func (s blockStoreStub) BlockedByIDs(context.Context, int64) ([]int64, error) { return s.ids, nil }

type directoryStub struct{ users map[int64]model.User }

func (d directoryStub) Get(_ context.Context, userID int64) (model.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return model.User{}, usersvc.ErrNotFound
	}
	return u, nil
}

type ledgerStub struct{ ids []int64 }

func (l ledgerStub) SwipedUserIDs(context.Context, int64) ([]int64, error) { return l.ids, nil }

type photoStub struct{ calls int }

func (p *photoStub) Decorate(_ context.Context, profiles ...*model.PublicProfile) {
	p.calls++
	for _, profile := range profiles {
		profile.PhotoURL = "signed"
	}
}

var feedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func viewer() model.User {
	return model.User{
		ID:           1,
		Gender:       enums.GenderFemale,
		BlockedUsers: []int64{5},
		Location:     &model.Location{Point: model.Point{Lat: 52.52, Lon: 13.405}},
		Preferences: model.Preferences{
			AgeRange:      model.AgeRange{Min: 25, Max: 35},
			MaxDistanceKM: 30,
			ShowMe:        enums.Audience(enums.GenderMale),
		},
	}
}

func newTestService(candidates *candidateStoreStub, photos *photoStub, users ...model.User) *Service {
	dir := directoryStub{users: make(map[int64]model.User)}
	for _, u := range users {
		dir.users[u.ID] = u
	}
	svc := NewService(Dependencies{
		Candidates: candidates,
		Blocks:     blockStoreStub{ids: []int64{6}},
		Viewers:    dir,
		Swipes:     ledgerStub{ids: []int64{7, 8}},
		Photos:     photos,
	}, Config{DefaultLimit: 20, MaxLimit: 100})
	svc.now = func() time.Time { return feedNow }
	return svc
}

func TestDiscoverBuildsQueryFromPreferences(t *testing.T) {
	store := &candidateStoreStub{}
	svc := newTestService(store, &photoStub{}, viewer())

	if _, err := svc.Discover(context.Background(), 1, 0); err != nil {
		t.Fatalf("discover: %v", err)
	}

	q := store.last
	if q.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", q.Limit)
	}
	if q.Origin == nil || q.Origin.Lat != 52.52 {
		t.Fatalf("expected viewer origin, got %+v", q.Origin)
	}
	if q.MaxDistanceKM != 30 || q.ShowMe != enums.Audience(enums.GenderMale) || q.ViewerGender != enums.GenderFemale {
		t.Fatalf("unexpected preference filters: %+v", q)
	}
	if !q.MutualInterest || q.Gender != "" || q.Offset != 0 {
		t.Fatalf("discovery must require mutual interest without explicit filters: %+v", q)
	}

	wantFrom, wantTo := rules.BirthDateWindow(feedNow, 25, 35)
	if !q.BirthFrom.Equal(wantFrom) || !q.BirthTo.Equal(wantTo) {
		t.Fatalf("unexpected birth window: %s..%s", q.BirthFrom, q.BirthTo)
	}

	excluded := append([]int64(nil), q.ExcludeIDs...)
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })
	want := []int64{1, 5, 6, 7, 8}
	if len(excluded) != len(want) {
		t.Fatalf("unexpected exclusions: %v", excluded)
	}
	for i := range want {
		if excluded[i] != want[i] {
			t.Fatalf("unexpected exclusions: %v", excluded)
		}
	}
}

func TestDiscoverClampsLimit(t *testing.T) {
	store := &candidateStoreStub{}
	svc := newTestService(store, &photoStub{}, viewer())

	if _, err := svc.Discover(context.Background(), 1, 500); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if store.last.Limit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", store.last.Limit)
	}
}

func TestDiscoverWithoutLocationSkipsDistance(t *testing.T) {
	v := viewer()
	v.Location = nil
	store := &candidateStoreStub{}
	svc := newTestService(store, &photoStub{}, v)

	if _, err := svc.Discover(context.Background(), 1, 10); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if store.last.Origin != nil {
		t.Fatalf("expected no origin for viewer without location")
	}
}

func TestDiscoverFiltersExcludedAndSignsPhotos(t *testing.T) {
	store := &candidateStoreStub{result: []model.Candidate{
		located(10, 52.53, 13.405),
		located(7, 52.54, 13.405),
		located(11, 52.60, 13.405),
	}}
	photos := &photoStub{}
	svc := newTestService(store, photos, viewer())

	res, err := svc.Discover(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.Count != 2 || len(res.Users) != 2 {
		t.Fatalf("expected two candidates after filtering, got %d", res.Count)
	}
	if res.Users[0].Profile.ID != 10 || res.Users[1].Profile.ID != 11 {
		t.Fatalf("unexpected order: %+v", res.Users)
	}
	if res.Users[0].Profile.PhotoURL != "signed" || photos.calls != 1 {
		t.Fatalf("expected photos decorated once")
	}
}

func TestDiscoverUnknownViewer(t *testing.T) {
	svc := newTestService(&candidateStoreStub{}, &photoStub{})
	if _, err := svc.Discover(context.Background(), 42, 10); !errors.Is(err, ErrViewerNotFound) {
		t.Fatalf("expected ErrViewerNotFound, got %v", err)
	}
	if _, err := svc.Discover(context.Background(), 0, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDiscoverRechecksDistanceBound(t *testing.T) {
	v := viewer()
	v.Preferences.MaxDistanceKM = 50
	// About 40 km and 60 km due north of the viewer.
	near := located(20, 52.88, 13.405)
	far := located(21, 53.06, 13.405)
	noLocation := model.Candidate{Profile: model.PublicProfile{ID: 22}}
	store := &candidateStoreStub{result: []model.Candidate{near, far, noLocation}}
	svc := newTestService(store, &photoStub{}, v)

	res, err := svc.Discover(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Users) != 1 || res.Users[0].Profile.ID != 20 {
		t.Fatalf("expected only the 40 km candidate, got %+v", res.Users)
	}
	d := res.Users[0].DistanceKM
	if d == nil || *d < 39.5 || *d > 40.5 {
		t.Fatalf("expected computed distance near 40 km, got %v", d)
	}
}

func TestSearchBuildsQueryFromFilters(t *testing.T) {
	store := &candidateStoreStub{total: 45, result: []model.Candidate{located(30, 52.6, 13.4)}}
	photos := &photoStub{}
	svc := newTestService(store, photos, viewer())

	res, err := svc.Search(context.Background(), 1, SearchQuery{
		MinAge:        21,
		MaxAge:        30,
		Gender:        enums.GenderNonBinary,
		MaxDistanceKM: 100,
		City:          "berlin",
		Country:       "de",
		Page:          2,
		Limit:         20,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	q := store.last
	if q.Gender != enums.GenderNonBinary || q.MutualInterest {
		t.Fatalf("unexpected gender filters: %+v", q)
	}
	if q.City != "berlin" || q.Country != "de" || q.Order != pgrepo.OrderNewest {
		t.Fatalf("unexpected text filters: %+v", q)
	}
	if q.Limit != 20 || q.Offset != 20 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", q.Limit, q.Offset)
	}
	if q.Origin == nil || q.MaxDistanceKM != 100 {
		t.Fatalf("expected distance bound from the viewer location: %+v", q)
	}
	wantFrom, wantTo := rules.BirthDateWindow(feedNow, 21, 30)
	if !q.BirthFrom.Equal(wantFrom) || !q.BirthTo.Equal(wantTo) {
		t.Fatalf("unexpected birth window: %s..%s", q.BirthFrom, q.BirthTo)
	}
	if store.lastCount.Offset != q.Offset || store.lastCount.City != q.City {
		t.Fatalf("count must use the same filters: %+v", store.lastCount)
	}

	excluded := append([]int64(nil), q.ExcludeIDs...)
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })
	if len(excluded) != 3 || excluded[0] != 1 || excluded[1] != 5 || excluded[2] != 6 {
		t.Fatalf("search excludes self and blocks only, got %v", excluded)
	}

	if res.Pagination.Total != 45 || res.Pagination.TotalPages != 3 || !res.Pagination.HasNextPage || !res.Pagination.HasPrevPage {
		t.Fatalf("unexpected pagination: %+v", res.Pagination)
	}
	if len(res.Users) != 1 || res.Users[0].Profile.PhotoURL != "signed" || photos.calls != 1 {
		t.Fatalf("unexpected users: %+v", res.Users)
	}
}

func TestSearchDefaultsAndDistanceWithoutLocation(t *testing.T) {
	v := viewer()
	v.Location = nil
	store := &candidateStoreStub{}
	svc := newTestService(store, &photoStub{}, v)

	res, err := svc.Search(context.Background(), 1, SearchQuery{MaxDistanceKM: 10, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if store.last.Origin != nil || store.last.MaxDistanceKM != 0 {
		t.Fatalf("distance needs a viewer location: %+v", store.last)
	}
	wantFrom, wantTo := rules.BirthDateWindow(feedNow, rules.DefaultAgeMin, rules.MaxAge)
	if !store.last.BirthFrom.Equal(wantFrom) || !store.last.BirthTo.Equal(wantTo) {
		t.Fatalf("unexpected default birth window: %s..%s", store.last.BirthFrom, store.last.BirthTo)
	}
	if res.Users == nil || res.Pagination.Total != 0 || res.Pagination.HasNextPage {
		t.Fatalf("unexpected empty result: %+v", res)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newTestService(&candidateStoreStub{}, &photoStub{}, viewer())
	ctx := context.Background()

	cases := []struct {
		name string
		q    SearchQuery
		want error
	}{
		{"bad page", SearchQuery{Page: 0, Limit: 10}, ErrInvalidPagination},
		{"limit too large", SearchQuery{Page: 1, Limit: 101}, ErrInvalidPagination},
		{"min age under 18", SearchQuery{MinAge: 16, Page: 1, Limit: 10}, ErrValidation},
		{"max age over 100", SearchQuery{MaxAge: 120, Page: 1, Limit: 10}, ErrValidation},
		{"inverted ages", SearchQuery{MinAge: 40, MaxAge: 30, Page: 1, Limit: 10}, ErrValidation},
		{"unknown gender", SearchQuery{Gender: "robot", Page: 1, Limit: 10}, ErrValidation},
		{"distance too large", SearchQuery{MaxDistanceKM: 501, Page: 1, Limit: 10}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Search(ctx, 1, tc.q); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}

	if _, err := svc.Search(ctx, 42, SearchQuery{Page: 1, Limit: 10}); !errors.Is(err, ErrViewerNotFound) {
		t.Fatalf("expected ErrViewerNotFound, got %v", err)
	}
}
