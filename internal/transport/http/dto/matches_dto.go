package dto

import "time"

type MatchResponse struct {
	ID              int64                  `json:"id"`
	Users           [2]int64               `json:"users"`
	Status          string                 `json:"status"`
	MatchedAt       time.Time              `json:"matchedAt"`
	LastMessageAt   time.Time              `json:"lastMessageAt"`
	HasConversation bool                   `json:"hasConversation"`
	MessageCount    int                    `json:"messageCount"`
	UnmatchedBy     *int64                 `json:"unmatchedBy,omitempty"`
	UnmatchedAt     *time.Time             `json:"unmatchedAt,omitempty"`
	UnmatchReason   *string                `json:"unmatchReason,omitempty"`
	User            *PublicProfileResponse `json:"user,omitempty"`
}

type MatchEnvelope struct {
	Match MatchResponse `json:"match"`
}

type MatchStatsResponse struct {
	TotalMatches               int `json:"totalMatches"`
	MatchesWithConversation    int `json:"matchesWithConversation"`
	MatchesWithoutConversation int `json:"matchesWithoutConversation"`
	RecentMatches              int `json:"recentMatches"`
}

type MatchStatsEnvelope struct {
	Stats MatchStatsResponse `json:"stats"`
}

type UnmatchRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=200"`
}
