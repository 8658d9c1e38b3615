package enums

import "strings"

type SwipeAction string

const (
	SwipeActionLike      SwipeAction = "like"
	SwipeActionDislike   SwipeAction = "dislike"
	SwipeActionSuperLike SwipeAction = "superlike"
)

func ParseSwipeAction(raw string) (SwipeAction, bool) {
	action := SwipeAction(strings.ToLower(strings.TrimSpace(raw)))
	return action, action.Valid()
}

func (a SwipeAction) Valid() bool {
	switch a {
	case SwipeActionLike, SwipeActionDislike, SwipeActionSuperLike:
		return true
	default:
		return false
	}
}

// Positive reports whether the action can take part in a match.
func (a SwipeAction) Positive() bool {
	return a == SwipeActionLike || a == SwipeActionSuperLike
}

func (a SwipeAction) String() string {
	return string(a)
}
