package dto

import "time"

type PublicProfileResponse struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"firstName"`
	Age          int       `json:"age"`
	Gender       string    `json:"gender"`
	Bio          string    `json:"bio,omitempty"`
	Occupation   string    `json:"occupation,omitempty"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
	City         string    `json:"city,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

type CandidateResponse struct {
	PublicProfileResponse
	DistanceKM *float64 `json:"distanceKm,omitempty"`
}

type DiscoverResponse struct {
	Users []CandidateResponse `json:"users"`
	Count int                 `json:"count"`
}
