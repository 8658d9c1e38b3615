package model

import (
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
)

// Match stores the unordered pair canonically: UserAID < UserBID.
type Match struct {
	ID              int64
	UserAID         int64
	UserBID         int64
	Status          enums.MatchStatus
	MatchedAt       time.Time
	LastMessageAt   time.Time
	HasConversation bool
	MessageCount    int
	UnmatchedBy     *int64
	UnmatchedAt     *time.Time
	UnmatchReason   *string
}

type MatchStats struct {
	TotalMatches               int
	MatchesWithConversation    int
	MatchesWithoutConversation int
	RecentMatches              int
}
