package model

import (
	"time"

	"github.com/ivankudzin/matchcore/internal/domain/enums"
)

type AgeRange struct {
	Min int
	Max int
}

type Preferences struct {
	AgeRange      AgeRange
	MaxDistanceKM int
	ShowMe        enums.Audience
}

type UserStats struct {
	TotalSwipes  int
	TotalMatches int
}

type User struct {
	ID               int64
	FirstName        string
	BirthDate        time.Time
	Gender           enums.Gender
	InterestedIn     []enums.Audience
	Bio              string
	Occupation       string
	PhotoKey         string
	Location         *Location
	Preferences      Preferences
	BlockedUsers     []int64
	IsActive         bool
	IsVerified       bool
	IsPremium        bool
	PremiumExpiresAt *time.Time
	Stats            UserStats
	LastActiveAt     time.Time
	CreatedAt        time.Time
}

// PublicProfile is the subset of a user shown to other users.
type PublicProfile struct {
	ID           int64
	FirstName    string
	BirthDate    time.Time
	Gender       enums.Gender
	Bio          string
	Occupation   string
	PhotoKey     string
	PhotoURL     string
	City         string
	LastActiveAt time.Time
}

func (u User) Public() PublicProfile {
	p := PublicProfile{
		ID:           u.ID,
		FirstName:    u.FirstName,
		BirthDate:    u.BirthDate,
		Gender:       u.Gender,
		Bio:          u.Bio,
		Occupation:   u.Occupation,
		PhotoKey:     u.PhotoKey,
		LastActiveAt: u.LastActiveAt,
	}
	if u.Location != nil {
		p.City = u.Location.City
	}
	return p
}
