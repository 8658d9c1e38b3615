package enums

import "strings"

type MatchStatus string

const (
	MatchStatusActive    MatchStatus = "active"
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusBlocked   MatchStatus = "blocked"
)

func ParseMatchStatus(raw string) (MatchStatus, bool) {
	status := MatchStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusActive, MatchStatusUnmatched, MatchStatusBlocked:
		return true
	default:
		return false
	}
}

// CanTransitionTo allows only active -> unmatched and active -> blocked.
// Unmatched and blocked are terminal.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if s != MatchStatusActive {
		return false
	}
	return next == MatchStatusUnmatched || next == MatchStatusBlocked
}

func (s MatchStatus) String() string {
	return string(s)
}
