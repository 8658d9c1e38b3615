package rules

import "time"

const (
	DefaultAgeMin        = 18
	DefaultAgeMax        = 80
	MaxAge               = 100
	DefaultMaxDistanceKM = 50
	MaxDistanceKM        = 500
	SwipesPerHourFree    = 100
	UnmatchReasonMaxLen  = 200
	RecentMatchWindow    = 7 * 24 * time.Hour
)

// BirthDateWindow returns the inclusive birth date range of users aged
// between minAge and maxAge years at now: [now-maxAge years, now-minAge years].
// Out-of-range bounds fall back to the defaults.
func BirthDateWindow(now time.Time, minAge, maxAge int) (from, to time.Time) {
	minAge, maxAge = NormalizeAgeRange(minAge, maxAge)
	now = now.UTC()
	from = now.AddDate(-maxAge, 0, 0)
	to = now.AddDate(-minAge, 0, 0)
	return from, to
}

func NormalizeAgeRange(minAge, maxAge int) (int, int) {
	if minAge < DefaultAgeMin {
		minAge = DefaultAgeMin
	}
	if maxAge <= 0 || maxAge > MaxAge {
		maxAge = DefaultAgeMax
	}
	if maxAge < minAge {
		maxAge = minAge
	}
	return minAge, maxAge
}

func NormalizeMaxDistanceKM(km int) int {
	switch {
	case km <= 0:
		return DefaultMaxDistanceKM
	case km > MaxDistanceKM:
		return MaxDistanceKM
	default:
		return km
	}
}

// AgeAt returns full years between birthDate and now.
func AgeAt(birthDate, now time.Time) int {
	if birthDate.IsZero() {
		return 0
	}
	birthDate = birthDate.UTC()
	now = now.UTC()
	age := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() || (now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// PremiumActive reports whether a premium flag is effective at now.
func PremiumActive(isPremium bool, expiresAt *time.Time, now time.Time) bool {
	if !isPremium {
		return false
	}
	return expiresAt == nil || expiresAt.After(now)
}
