package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/pkg/validate"
	authsvc "github.com/ivankudzin/matchcore/internal/services/auth"
	swipesvc "github.com/ivankudzin/matchcore/internal/services/swipes"
	"github.com/ivankudzin/matchcore/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/matchcore/internal/transport/http/errors"
)

type SwipeService interface {
	Swipe(ctx context.Context, in swipesvc.SwipeInput) (swipesvc.SwipeOutcome, error)
	UndoLast(ctx context.Context, userID int64) (model.Swipe, error)
	History(ctx context.Context, userID int64, q swipesvc.HistoryQuery) (swipesvc.HistoryPage, error)
	IncomingLikes(ctx context.Context, userID int64) ([]swipesvc.IncomingLike, error)
}

type SwipeRateLimiter interface {
	AllowSwipe(ctx context.Context, userID int64) (int64, bool, error)
	Remaining(ctx context.Context, userID int64) (int, error)
}

type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
}

type SwipeHandler struct {
	service SwipeService
	limiter SwipeRateLimiter
	premium PremiumChecker
	logger  *zap.Logger
	now     func() time.Time
}

func NewSwipeHandler(service SwipeService, limiter SwipeRateLimiter, premium PremiumChecker, logger *zap.Logger) *SwipeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwipeHandler{
		service: service,
		limiter: limiter,
		premium: premium,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *SwipeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req dto.SwipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	retryAfter, limited, counted := h.rateLimited(r.Context(), identity.UserID)
	if limited {
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "SWIPE_LIMIT_REACHED",
			Message:       "hourly swipe limit reached",
			RetryAfterSec: retryAfter,
		})
		return
	}

	in := swipesvc.SwipeInput{
		SwiperID:     identity.UserID,
		SwipedUserID: req.SwipedUserID,
		Action:       req.Action,
	}
	if req.Location != nil {
		in.Location = &model.Point{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}

	out, err := h.service.Swipe(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid swipe request")
		case errors.Is(err, swipesvc.ErrSelfSwipe):
			writeBadRequest(w, "SELF_SWIPE", "cannot swipe on yourself")
		case errors.Is(err, swipesvc.ErrInvalidAction):
			writeBadRequest(w, "INVALID_ACTION", "action must be one of like, dislike, superlike")
		case errors.Is(err, swipesvc.ErrDuplicateSwipe):
			writeBadRequest(w, "ALREADY_SWIPED", "already swiped on this user")
		case errors.Is(err, swipesvc.ErrTargetNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "user not found or inactive")
		default:
			h.logger.Error("swipe failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to process swipe")
		}
		return
	}

	resp := dto.SwipeResponse{
		Swipe:   swipeResponse(out.Swipe),
		IsMatch: out.Swipe.IsMatch,
	}
	message := "Swipe recorded"
	if out.Match != nil {
		m := matchResponse(*out.Match)
		resp.Match = &m
		message = "It's a match!"
	}
	if counted {
		if left, err := h.limiter.Remaining(r.Context(), identity.UserID); err == nil && left >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
		}
	}
	writeData(w, http.StatusCreated, message, resp)
}

func (h *SwipeHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	page, limit, err := parsePage(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}
	q := swipesvc.HistoryQuery{Page: page, Limit: limit}
	if raw := strings.TrimSpace(r.URL.Query().Get("action")); raw != "" {
		action, ok := enums.ParseSwipeAction(raw)
		if !ok {
			writeBadRequest(w, "INVALID_ACTION", "action must be one of like, dislike, superlike")
			return
		}
		q.Action = &action
	}

	result, err := h.service.History(r.Context(), identity.UserID, q)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrInvalidPagination), errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "page must be >= 1 and limit between 1 and 100")
		case errors.Is(err, swipesvc.ErrInvalidAction):
			writeBadRequest(w, "INVALID_ACTION", "action must be one of like, dislike, superlike")
		default:
			h.logger.Error("swipe history failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to load swipe history")
		}
		return
	}

	now := h.now().UTC()
	items := make([]dto.SwipeItemResponse, 0, len(result.Items))
	for _, item := range result.Items {
		resp := swipeResponse(item.Swipe)
		if item.SwipedUser != nil {
			profile := profileResponse(*item.SwipedUser, now)
			resp.SwipedUser = &profile
		}
		items = append(items, resp)
	}
	writePage(w, "Swipe history", items, result.Pagination)
}

func (h *SwipeHandler) Likes(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	likes, err := h.service.IncomingLikes(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("incoming likes failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load likes")
		return
	}

	now := h.now().UTC()
	users := make([]dto.IncomingLikeResponse, 0, len(likes))
	for _, like := range likes {
		users = append(users, dto.IncomingLikeResponse{
			PublicProfileResponse: profileResponse(like.Profile, now),
			SuperLike:             like.SuperLike,
			LikedAt:               like.LikedAt,
		})
	}
	writeData(w, http.StatusOK, "Users who liked you", dto.IncomingLikesResponse{Users: users, Count: len(users)})
}

func (h *SwipeHandler) Undo(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	undone, err := h.service.UndoLast(r.Context(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrNothingToUndo):
			writeNotFound(w, "NOTHING_TO_UNDO", "no swipes to undo")
		case errors.Is(err, swipesvc.ErrCannotUndoMatch):
			writeBadRequest(w, "CANNOT_UNDO_MATCH", "cannot undo a swipe that created a match")
		default:
			h.logger.Error("undo swipe failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to undo swipe")
		}
		return
	}

	writeData(w, http.StatusOK, "Swipe undone", dto.UndoResponse{Swipe: swipeResponse(undone)})
}

// rateLimited fails open: limiter or entitlement errors let the swipe through.
// counted reports whether the swipe was charged against the hourly window.
func (h *SwipeHandler) rateLimited(ctx context.Context, userID int64) (retryAfter int64, limited, counted bool) {
	if h.limiter == nil {
		return 0, false, false
	}
	if h.premium != nil {
		premium, err := h.premium.IsPremium(ctx, userID)
		if err != nil {
			h.logger.Warn("premium check failed", zap.Int64("user_id", userID), zap.Error(err))
		} else if premium {
			return 0, false, false
		}
	}

	retryAfter, allowed, err := h.limiter.AllowSwipe(ctx, userID)
	if err != nil {
		h.logger.Warn("swipe rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
		return 0, false, false
	}
	return retryAfter, !allowed, true
}
