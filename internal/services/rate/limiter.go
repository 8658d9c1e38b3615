package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const swipeWindow = time.Hour

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

// Limiter caps swipes per user in a fixed hourly window. A zero limit
// disables it.
type Limiter struct {
	store   WindowStore
	perHour int
}

func NewLimiter(store WindowStore, perHour int) *Limiter {
	if perHour < 0 {
		perHour = 0
	}
	return &Limiter{store: store, perHour: perHour}
}

// AllowSwipe counts one swipe. When the window is exhausted it returns the
// seconds until the window resets.
func (l *Limiter) AllowSwipe(ctx context.Context, userID int64) (int64, bool, error) {
	if userID <= 0 {
		return 0, false, fmt.Errorf("invalid user id")
	}
	if l.perHour == 0 {
		return 0, true, nil
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, swipeKey(userID), swipeWindow)
	if err != nil {
		return 0, false, err
	}
	if count > int64(l.perHour) {
		return ceilSeconds(ttl), false, nil
	}
	return 0, true, nil
}

// Remaining reports how many swipes are left in the current window.
func (l *Limiter) Remaining(ctx context.Context, userID int64) (int, error) {
	if l.perHour == 0 {
		return -1, nil
	}
	if l.store == nil {
		return 0, fmt.Errorf("rate limiter store is nil")
	}

	count, _, err := l.store.WindowState(ctx, swipeKey(userID))
	if err != nil {
		return 0, err
	}
	left := l.perHour - int(count)
	if left < 0 {
		left = 0
	}
	return left, nil
}

func swipeKey(userID int64) string {
	return "rate:swipes:hour:" + strconv.FormatInt(userID, 10)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
