package domain

import "math"

// Estimated1RM estimates the one-rep max for a set using the simplified
// Epley-family curve weight * (1 + reps/30). Single-rep sets are taken at
// face value and zero-rep sets score zero. PR comparisons depend on this
// exact shape, so do not swap in Brzycki or a rounded variant.
func Estimated1RM(weightKg float64, reps int) float64 {
	if reps == 0 {
		return 0
	}
	if reps == 1 {
		return weightKg
	}
	return weightKg * (1 + float64(reps)/30.0)
}

// LevelFromTotalXP derives the level curve from cumulative XP:
// level = floor(sqrt(xp/100)) + 1, next level at level^2 * 100.
// Monotonic non-decreasing in xp; level 1 starts at 0 XP.
func LevelFromTotalXP(totalXP int) (level, xpToNextLevel int) {
	if totalXP < 0 {
		totalXP = 0
	}
	level = int(math.Sqrt(float64(totalXP)/100.0)) + 1
	xpForNextLevel := level * level * 100
	xpToNextLevel = xpForNextLevel - totalXP
	if xpToNextLevel < 0 {
		xpToNextLevel = 0
	}
	return level, xpToNextLevel
}
