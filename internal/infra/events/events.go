package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/matchcore/internal/domain/model"
)

const (
	TypeMatchCreated       = "match.created"
	RoutingKeyMatchCreated = "match_created"
)

type MatchCreated struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MatchID   int64     `json:"matchId"`
	Users     [2]int64  `json:"users"`
	MatchedAt time.Time `json:"matchedAt"`
}

type Publisher interface {
	PublishMatchCreated(ctx context.Context, match model.Match) error
	Close() error
}

func NewMatchCreated(match model.Match) MatchCreated {
	return MatchCreated{
		ID:        uuid.NewString(),
		Type:      TypeMatchCreated,
		MatchID:   match.ID,
		Users:     [2]int64{match.UserAID, match.UserBID},
		MatchedAt: match.MatchedAt.UTC(),
	}
}

func encode(event any) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return body, nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishMatchCreated(context.Context, model.Match) error { return nil }

func (NopPublisher) Close() error { return nil }
