package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimated1RM(t *testing.T) {
	require.Equal(t, 0.0, Estimated1RM(100, 0))
	require.Equal(t, 100.0, Estimated1RM(100, 1))
	require.InDelta(t, 116.67, Estimated1RM(100, 5), 0.01)
	require.InDelta(t, 133.33, Estimated1RM(100, 10), 0.01)

	// More reps at the same weight always scores higher past one rep.
	require.Greater(t, Estimated1RM(100, 8), Estimated1RM(100, 5))
	require.Greater(t, Estimated1RM(100, 2), Estimated1RM(100, 1))
}

func TestLevelFromTotalXP(t *testing.T) {
	cases := []struct {
		totalXP       int
		level         int
		xpToNextLevel int
	}{
		{totalXP: 0, level: 1, xpToNextLevel: 100},
		{totalXP: 99, level: 1, xpToNextLevel: 1},
		{totalXP: 100, level: 2, xpToNextLevel: 300},
		{totalXP: 399, level: 2, xpToNextLevel: 1},
		{totalXP: 400, level: 3, xpToNextLevel: 500},
		{totalXP: 2500, level: 6, xpToNextLevel: 1100},
		{totalXP: -5, level: 1, xpToNextLevel: 100},
	}
	for _, tc := range cases {
		level, toNext := LevelFromTotalXP(tc.totalXP)
		require.Equal(t, tc.level, level, "totalXP=%d", tc.totalXP)
		require.Equal(t, tc.xpToNextLevel, toNext, "totalXP=%d", tc.totalXP)
	}
}

func TestLevelFromTotalXPMonotonic(t *testing.T) {
	prev := 0
	for xp := 0; xp <= 5000; xp += 50 {
		level, _ := LevelFromTotalXP(xp)
		require.GreaterOrEqual(t, level, prev)
		prev = level
	}
}
