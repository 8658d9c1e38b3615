package model

import (
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
)

type Swipe struct {
	ID           int64
	SwiperID     int64
	SwipedUserID int64
	Action       enums.SwipeAction
	IsMatch      bool
	MatchID      *int64
	SwipedAt     time.Time
	Location     *Point
}
