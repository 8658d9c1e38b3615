package rules

import (
	"hash/fnv"
	"strconv"

	"github.com/ivankudzin/matchcore/internal/domain/model"
)

// CanonicalPair orders two user ids so the smaller one comes first.
func CanonicalPair(x, y int64) (int64, int64) {
	if x < y {
		return x, y
	}
	return y, x
}

// PairKey identifies the unordered pair {x, y}.
func PairKey(x, y int64) string {
	a, b := CanonicalPair(x, y)
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// PairLockKey maps the unordered pair to a 64-bit advisory lock key.
func PairLockKey(x, y int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("match-pair:" + PairKey(x, y)))
	return int64(h.Sum64())
}

func MatchIncludes(m model.Match, userID int64) bool {
	return userID > 0 && (m.UserAID == userID || m.UserBID == userID)
}

// Counterpart returns the other member of the match, or 0 when userID is not a member.
func Counterpart(m model.Match, userID int64) int64 {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	default:
		return 0
	}
}
