package dto

import "time"

type SwipeRequest struct {
	SwipedUserID int64         `json:"swipedUserId" validate:"required,gt=0"`
	Action       string        `json:"action" validate:"required"`
	Location     *PointPayload `json:"location,omitempty"`
}

// SearchRequest is decoded from the query string of a search request.
type SearchRequest struct {
	MinAge        int    `json:"minAge" validate:"omitempty,gte=18,lte=100"`
	MaxAge        int    `json:"maxAge" validate:"omitempty,gte=18,lte=100"`
	Gender        string `json:"gender" validate:"omitempty,oneof=male female non-binary other"`
	MaxDistanceKM int    `json:"maxDistance" validate:"omitempty,gte=1,lte=500"`
	City          string `json:"city" validate:"max=100"`
	Country       string `json:"country" validate:"max=100"`
}

type PointPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type SwipeItemResponse struct {
	ID           int64                  `json:"id"`
	SwiperID     int64                  `json:"swiperId"`
	SwipedUserID int64                  `json:"swipedUserId"`
	Action       string                 `json:"action"`
	IsMatch      bool                   `json:"isMatch"`
	MatchID      *int64                 `json:"matchId,omitempty"`
	SwipedAt     time.Time              `json:"swipedAt"`
	SwipedUser   *PublicProfileResponse `json:"swipedUser,omitempty"`
}

type SwipeResponse struct {
	Swipe   SwipeItemResponse `json:"swipe"`
	IsMatch bool              `json:"isMatch"`
	Match   *MatchResponse    `json:"match,omitempty"`
}

type UndoResponse struct {
	Swipe SwipeItemResponse `json:"swipe"`
}

type IncomingLikeResponse struct {
	PublicProfileResponse
	SuperLike bool      `json:"superLike"`
	LikedAt   time.Time `json:"likedAt"`
}

type IncomingLikesResponse struct {
	Users []IncomingLikeResponse `json:"users"`
	Count int                    `json:"count"`
}
