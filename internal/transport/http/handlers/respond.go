package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/model"
	"github.com/ivankudzin/matchcore/internal/domain/rules"
	"github.com/ivankudzin/matchcore/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/matchcore/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusBadRequest, code, message)
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusUnauthorized, code, message)
}

func writeForbidden(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusForbidden, code, message)
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusNotFound, code, message)
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.WriteError(w, http.StatusInternalServerError, code, message)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	httperrors.Write(w, status, dto.Envelope{Success: true, Message: message, Data: data})
}

func writePage(w http.ResponseWriter, message string, data any, p model.Pagination) {
	httperrors.Write(w, http.StatusOK, dto.Envelope{
		Success: true,
		Message: message,
		Data:    data,
		Pagination: &dto.Pagination{
			Page:        p.Page,
			Limit:       p.Limit,
			Total:       p.Total,
			TotalPages:  p.TotalPages,
			HasNextPage: p.HasNextPage,
			HasPrevPage: p.HasPrevPage,
		},
	})
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

// parsePage reads page and limit query parameters. Absent values take the
// defaults; present but non-numeric values are an error.
func parsePage(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit", rules.DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return value, nil
}

func parsePathID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func profileResponse(p model.PublicProfile, now time.Time) dto.PublicProfileResponse {
	return dto.PublicProfileResponse{
		ID:           p.ID,
		FirstName:    p.FirstName,
		Age:          rules.AgeAt(p.BirthDate, now),
		Gender:       string(p.Gender),
		Bio:          p.Bio,
		Occupation:   p.Occupation,
		PhotoURL:     p.PhotoURL,
		City:         p.City,
		LastActiveAt: p.LastActiveAt,
	}
}

func swipeResponse(s model.Swipe) dto.SwipeItemResponse {
	return dto.SwipeItemResponse{
		ID:           s.ID,
		SwiperID:     s.SwiperID,
		SwipedUserID: s.SwipedUserID,
		Action:       s.Action.String(),
		IsMatch:      s.IsMatch,
		MatchID:      s.MatchID,
		SwipedAt:     s.SwipedAt,
	}
}

func matchResponse(m model.Match) dto.MatchResponse {
	return dto.MatchResponse{
		ID:              m.ID,
		Users:           [2]int64{m.UserAID, m.UserBID},
		Status:          m.Status.String(),
		MatchedAt:       m.MatchedAt,
		LastMessageAt:   m.LastMessageAt,
		HasConversation: m.HasConversation,
		MessageCount:    m.MessageCount,
		UnmatchedBy:     m.UnmatchedBy,
		UnmatchedAt:     m.UnmatchedAt,
		UnmatchReason:   m.UnmatchReason,
	}
}
