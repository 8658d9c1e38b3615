package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/pkg/validate"
	authsvc "github.com/ivankudzin/matchcore/internal/services/auth"
	feedsvc "github.com/ivankudzin/matchcore/internal/services/feed"
	"github.com/ivankudzin/matchcore/internal/transport/http/dto"
)

type FeedService interface {
	Discover(ctx context.Context, viewerID int64, limit int) (feedsvc.Result, error)
	Search(ctx context.Context, viewerID int64, q feedsvc.SearchQuery) (feedsvc.SearchResult, error)
}

type DiscoverHandler struct {
	service FeedService
	logger  *zap.Logger
	now     func() time.Time
}

func NewDiscoverHandler(service FeedService, logger *zap.Logger) *DiscoverHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoverHandler{service: service, logger: logger, now: time.Now}
}

func (h *DiscoverHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "FEED_SERVICE_UNAVAILABLE", "discovery is unavailable")
		return
	}

	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 0)
	result, err := h.service.Discover(r.Context(), identity.UserID, limit)
	if err != nil {
		switch {
		case errors.Is(err, feedsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid discovery request")
		case errors.Is(err, feedsvc.ErrViewerNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "user not found")
		default:
			h.logger.Error("discovery failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to load discovery feed")
		}
		return
	}

	users := candidateResponses(result.Users, h.now().UTC())
	writeData(w, http.StatusOK, "Discovery feed", dto.DiscoverResponse{Users: users, Count: result.Count})
}

// Search serves GET /filters/search.
func (h *DiscoverHandler) Search(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "FEED_SERVICE_UNAVAILABLE", "search is unavailable")
		return
	}

	req, page, limit, err := parseSearchRequest(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	result, err := h.service.Search(r.Context(), identity.UserID, feedsvc.SearchQuery{
		MinAge:        req.MinAge,
		MaxAge:        req.MaxAge,
		Gender:        enums.Gender(req.Gender),
		MaxDistanceKM: req.MaxDistanceKM,
		City:          req.City,
		Country:       req.Country,
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		switch {
		case errors.Is(err, feedsvc.ErrInvalidPagination):
			writeBadRequest(w, "VALIDATION_ERROR", "page must be >= 1 and limit between 1 and 100")
		case errors.Is(err, feedsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid search filters")
		case errors.Is(err, feedsvc.ErrViewerNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "user not found")
		default:
			h.logger.Error("search failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to search users")
		}
		return
	}

	writePage(w, "Search results retrieved", candidateResponses(result.Users, h.now().UTC()), result.Pagination)
}

func parseSearchRequest(r *http.Request) (dto.SearchRequest, int, int, error) {
	page, limit, err := parsePage(r)
	if err != nil {
		return dto.SearchRequest{}, 0, 0, err
	}
	query := r.URL.Query()
	req := dto.SearchRequest{
		Gender:  strings.ToLower(strings.TrimSpace(query.Get("gender"))),
		City:    strings.TrimSpace(query.Get("city")),
		Country: strings.TrimSpace(query.Get("country")),
	}
	if req.MinAge, err = queryInt(r, "minAge", 0); err != nil {
		return dto.SearchRequest{}, 0, 0, err
	}
	if req.MaxAge, err = queryInt(r, "maxAge", 0); err != nil {
		return dto.SearchRequest{}, 0, 0, err
	}
	if req.MaxDistanceKM, err = queryInt(r, "maxDistance", 0); err != nil {
		return dto.SearchRequest{}, 0, 0, err
	}
	return req, page, limit, nil
}

func candidateResponses(candidates []model.Candidate, now time.Time) []dto.CandidateResponse {
	out := make([]dto.CandidateResponse, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, dto.CandidateResponse{
			PublicProfileResponse: profileResponse(candidate.Profile, now),
			DistanceKM:            candidate.DistanceKM,
		})
	}
	return out
}
