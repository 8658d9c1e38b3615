package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/pkg/validate"
	authsvc "github.com/ivankudzin/matchcore/internal/services/auth"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
	"github.com/ivankudzin/matchcore/internal/transport/http/dto"
)

type MatchService interface {
	List(ctx context.Context, userID int64, q matchsvc.ListQuery) (matchsvc.ListResult, error)
	Get(ctx context.Context, matchID, userID int64) (matchsvc.MatchView, error)
	Unmatch(ctx context.Context, matchID, userID int64, reason *string) (model.Match, error)
	Block(ctx context.Context, matchID, userID int64, reason *string) (model.Match, error)
	Stats(ctx context.Context, userID int64) (model.MatchStats, error)
}

type MatchesHandler struct {
	service MatchService
	logger  *zap.Logger
	now     func() time.Time
}

func NewMatchesHandler(service MatchService, logger *zap.Logger) *MatchesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchesHandler{service: service, logger: logger, now: time.Now}
}

func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	page, limit, err := parsePage(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	q := matchsvc.ListQuery{Page: page, Limit: limit}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := enums.ParseMatchStatus(raw)
		if !ok {
			writeBadRequest(w, "VALIDATION_ERROR", "status must be one of active, unmatched, blocked")
			return
		}
		q.Status = status
	}

	result, err := h.service.List(r.Context(), identity.UserID, q)
	if err != nil {
		if errors.Is(err, matchsvc.ErrInvalidPagination) || errors.Is(err, matchsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "page must be >= 1 and limit between 1 and 100")
			return
		}
		h.logger.Error("list matches failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load matches")
		return
	}

	now := h.now().UTC()
	items := make([]dto.MatchResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, h.viewResponse(item, now))
	}
	writePage(w, "Matches", items, result.Pagination)
}

func (h *MatchesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	stats, err := h.service.Stats(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("match stats failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load match stats")
		return
	}

	writeData(w, http.StatusOK, "Match statistics", dto.MatchStatsEnvelope{Stats: dto.MatchStatsResponse{
		TotalMatches:               stats.TotalMatches,
		MatchesWithConversation:    stats.MatchesWithConversation,
		MatchesWithoutConversation: stats.MatchesWithoutConversation,
		RecentMatches:              stats.RecentMatches,
	}})
}

func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}
	matchID, ok := parsePathID(chi.URLParam(r, "id"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return
	}

	view, err := h.service.Get(r.Context(), matchID, identity.UserID)
	if err != nil {
		h.writeMatchError(w, identity.UserID, "get match", err)
		return
	}
	writeData(w, http.StatusOK, "Match", dto.MatchEnvelope{Match: h.viewResponse(view, h.now().UTC())})
}

func (h *MatchesHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}
	h.terminate(w, r, "Unmatched successfully", h.service.Unmatch)
}

func (h *MatchesHandler) Block(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}
	h.terminate(w, r, "User blocked", h.service.Block)
}

func (h *MatchesHandler) terminate(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	op func(ctx context.Context, matchID, userID int64, reason *string) (model.Match, error),
) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	matchID, ok := parsePathID(chi.URLParam(r, "id"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return
	}

	var req dto.UnmatchRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	match, err := op(r.Context(), matchID, identity.UserID, req.Reason)
	if err != nil {
		h.writeMatchError(w, identity.UserID, "end match", err)
		return
	}
	writeData(w, http.StatusOK, message, dto.MatchEnvelope{Match: matchResponse(match)})
}

func (h *MatchesHandler) writeMatchError(w http.ResponseWriter, userID int64, op string, err error) {
	switch {
	case errors.Is(err, matchsvc.ErrValidation), errors.Is(err, matchsvc.ErrReasonTooLong):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match request")
	case errors.Is(err, matchsvc.ErrMatchInactive):
		writeBadRequest(w, "MATCH_INACTIVE", "match is not active")
	case errors.Is(err, matchsvc.ErrMatchNotFound):
		writeNotFound(w, "MATCH_NOT_FOUND", "match not found")
	case errors.Is(err, matchsvc.ErrNotAuthorized):
		writeForbidden(w, "FORBIDDEN", "not authorized to access this match")
	default:
		h.logger.Error(op+" failed", zap.Int64("user_id", userID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to process match request")
	}
}

func (h *MatchesHandler) viewResponse(view matchsvc.MatchView, now time.Time) dto.MatchResponse {
	resp := matchResponse(view.Match)
	profile := profileResponse(view.Counterpart, now)
	resp.User = &profile
	return resp
}
