package model

// Candidate is a discovery feed entry. Location is kept for distance checks
// and is not shown to the viewer.
type Candidate struct {
	Profile    PublicProfile
	DistanceKM *float64
	Location   *Point
}
