package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
)

type FeedRepo struct {
	pool *pgxpool.Pool
}

func NewFeedRepo(pool *pgxpool.Pool) *FeedRepo {
	return &FeedRepo{pool: pool}
}

type CandidateOrder int

const (
	// OrderRecentActivity sorts by last activity, most recent first.
	OrderRecentActivity CandidateOrder = iota
	// OrderNewest sorts by account creation, newest first.
	OrderNewest
)

// CandidateQuery describes one candidate lookup. A nil Origin disables the
// distance bound. With an origin, results are sorted nearest first and Order
// only breaks ties.
type CandidateQuery struct {
	ViewerID      int64
	ViewerGender  enums.Gender
	Origin        *model.Point
	MaxDistanceKM int
	// ShowMe restricts candidate gender from the viewer's preferences.
	ShowMe enums.Audience
	// Gender restricts candidate gender explicitly and takes precedence over ShowMe.
	Gender enums.Gender
	// MutualInterest keeps only candidates interested in the viewer's gender.
	MutualInterest bool
	BirthFrom      time.Time
	BirthTo        time.Time
	City           string
	Country        string
	ExcludeIDs     []int64
	Order          CandidateOrder
	Limit          int
	Offset         int
}

const distanceExpr = `2 * 6371.0088 * ASIN(LEAST(1.0, SQRT(
	POWER(SIN(RADIANS(u.lat - %[1]s) / 2), 2)
	+ COS(RADIANS(%[1]s)) * COS(RADIANS(u.lat)) * POWER(SIN(RADIANS(u.lon - %[2]s) / 2), 2)
)))`

// candidateFilter renders the WHERE clause shared by FindCandidates and
// CountCandidates, plus the distance expression when an origin is set.
type candidateFilter struct {
	where    []string
	args     []any
	distance string
}

func (f *candidateFilter) arg(v any) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func buildCandidateFilter(q CandidateQuery) *candidateFilter {
	f := &candidateFilter{}
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}

	f.where = append(f.where,
		"u.is_active = TRUE",
		"u.id <> "+f.arg(q.ViewerID),
		"NOT (u.id = ANY("+f.arg(exclude)+"::bigint[]))",
		"u.birth_date BETWEEN "+f.arg(q.BirthFrom.UTC())+"::date AND "+f.arg(q.BirthTo.UTC())+"::date",
	)

	switch {
	case q.Gender != "":
		f.where = append(f.where, "u.gender = "+f.arg(string(q.Gender)))
	case q.ShowMe != "" && !q.ShowMe.IsEveryone():
		f.where = append(f.where, "u.gender = "+f.arg(string(q.ShowMe)))
	}
	if q.MutualInterest {
		f.where = append(f.where, "u.interested_in && ARRAY["+f.arg(string(q.ViewerGender))+"::text, 'everyone']")
	}
	if city := strings.TrimSpace(q.City); city != "" {
		f.where = append(f.where, "STRPOS(LOWER(u.city), LOWER("+f.arg(city)+"::text)) > 0")
	}
	if country := strings.TrimSpace(q.Country); country != "" {
		f.where = append(f.where, "STRPOS(LOWER(u.country), LOWER("+f.arg(country)+"::text)) > 0")
	}

	if q.Origin != nil && q.MaxDistanceKM > 0 {
		lat := f.arg(q.Origin.Lat) + "::float8"
		lon := f.arg(q.Origin.Lon) + "::float8"
		f.distance = fmt.Sprintf(distanceExpr, lat, lon)
		f.where = append(f.where,
			"u.lat IS NOT NULL",
			f.distance+" <= "+f.arg(float64(q.MaxDistanceKM))+"::float8",
		)
	}
	return f
}

func (f *candidateFilter) clause() string {
	return strings.Join(f.where, "\n\tAND ")
}

// FindCandidates runs the candidate filter server-side. Only active users are
// returned; with an origin the result is bounded by MaxDistanceKM.
func (r *FeedRepo) FindCandidates(ctx context.Context, q CandidateQuery) ([]model.Candidate, error) {
	if q.ViewerID <= 0 {
		return nil, fmt.Errorf("invalid viewer id")
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	f := buildCandidateFilter(q)
	distanceColumn := "NULL::float8"
	orderBy := make([]string, 0, 3)
	if f.distance != "" {
		distanceColumn = f.distance
		orderBy = append(orderBy, "distance_km ASC")
	}
	switch q.Order {
	case OrderNewest:
		orderBy = append(orderBy, "u.created_at DESC")
	default:
		orderBy = append(orderBy, "u.last_active_at DESC")
	}
	orderBy = append(orderBy, "u.id DESC")

	limit := f.arg(q.Limit)
	offset := f.arg(q.Offset)
	rows, err := r.pool.Query(ctx, `
SELECT`+userColumns+`,
	`+distanceColumn+` AS distance_km
FROM users u
WHERE
	`+f.clause()+`
ORDER BY `+strings.Join(orderBy, ", ")+`
LIMIT `+limit+` OFFSET `+offset, f.args...)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	items := make([]model.Candidate, 0, q.Limit)
	for rows.Next() {
		var distance *float64
		user, err := scanUserWith(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidate := model.Candidate{Profile: user.Public(), DistanceKM: distance}
		if user.Location != nil {
			point := user.Location.Point
			candidate.Location = &point
		}
		items = append(items, candidate)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate candidates: %w", rows.Err())
	}

	return items, nil
}

// CountCandidates counts every row FindCandidates could page through for q.
func (r *FeedRepo) CountCandidates(ctx context.Context, q CandidateQuery) (int, error) {
	if q.ViewerID <= 0 {
		return 0, fmt.Errorf("invalid viewer id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	f := buildCandidateFilter(q)
	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM users u
WHERE
	`+f.clause(), f.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return total, nil
}
