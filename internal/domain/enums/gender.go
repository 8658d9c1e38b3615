package enums

import "strings"

type Gender string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "non-binary"
	GenderOther     Gender = "other"
)

// Audience is a gender preference. It admits every Gender value plus
// AudienceEveryone.
type Audience string

const AudienceEveryone Audience = "everyone"

func ParseGender(raw string) (Gender, bool) {
	g := Gender(strings.ToLower(strings.TrimSpace(raw)))
	return g, g.Valid()
}

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary, GenderOther:
		return true
	default:
		return false
	}
}

func ParseAudience(raw string) (Audience, bool) {
	a := Audience(strings.ToLower(strings.TrimSpace(raw)))
	return a, a.Valid()
}

func (a Audience) Valid() bool {
	return a == AudienceEveryone || Gender(a).Valid()
}

func (a Audience) IsEveryone() bool {
	return a == AudienceEveryone
}

// Admits reports whether a user of gender g falls within the audience.
func (a Audience) Admits(g Gender) bool {
	return a == AudienceEveryone || Gender(a) == g
}

// AdmitsAny reports whether any audience entry admits g.
func AdmitsAny(audiences []Audience, g Gender) bool {
	for _, a := range audiences {
		if a.Admits(g) {
			return true
		}
	}
	return false
}
