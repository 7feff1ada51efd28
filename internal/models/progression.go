package models

import "math"

// XP awarded per action.
const (
	XPPostCreated           int64 = 10
	XPLikeReceived          int64 = 2
	XPFollowGained          int64 = 5
	XPRegistrationBonus     int64 = 50
	XPRSILinkBonus          int64 = 25
	XPQuestCompleted        int64 = 50
	XPEventParticipation    int64 = 25
	XPSessionStatsPerMinute int64 = 1
)

// MaxXPAward bounds a single manual award.
const MaxXPAward int64 = 1_000_000

// maxLevelRoot is the largest n with n*n*100 <= math.MaxInt64.
const maxLevelRoot int64 = 303_700_049

// Level derives a level from total XP: floor(sqrt(xp/100)) + 1.
func Level(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// floor(sqrt(floor(q))) == floor(sqrt(q)), so integer division is exact.
	q := xp / 100
	n := min(int64(math.Sqrt(float64(q))), maxLevelRoot)
	for n > 0 && n*n > q {
		n--
	}
	for n < maxLevelRoot && (n+1)*(n+1) <= q {
		n++
	}
	return int(n) + 1
}

// XPForLevel is the minimum XP of level L: (L-1)^2 * 100. Levels beyond
// what int64 XP can reach saturate at math.MaxInt64.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	if n > maxLevelRoot {
		return math.MaxInt64
	}
	return n * n * 100
}

// LevelProgress describes where an XP total sits inside its level.
type LevelProgress struct {
	Level           int     `json:"level"`
	XP              int64   `json:"xp"`
	CurrentLevelXP  int64   `json:"currentLevelXp"`
	NextLevelXP     int64   `json:"nextLevelXp"`
	ProgressPercent float64 `json:"progressPercent"`
}

// Progress computes the level and percentage toward the next level, clamped to [0,100].
func Progress(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := Level(xp)
	cur := XPForLevel(level)
	next := XPForLevel(level + 1)

	pct := float64(xp-cur) / float64(next-cur) * 100
	pct = math.Max(0, math.Min(100, pct))

	return LevelProgress{
		Level:           level,
		XP:              xp,
		CurrentLevelXP:  cur,
		NextLevelXP:     next,
		ProgressPercent: pct,
	}
}
