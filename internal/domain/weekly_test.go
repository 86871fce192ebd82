package domain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var weeklyNow = time.Date(2026, time.January, 7, 15, 0, 0, 0, time.UTC)

func newWeeklyFixture(store *fakeStore) *WeeklyService {
	svc := NewWeeklyService(store, DefaultPolicy())
	svc.now = func() time.Time { return weeklyNow }
	return svc
}

func TestTrackWeeklyBucketsMondayStart(t *testing.T) {
	store := newFakeStore()
	// Wednesday 2026-01-07 belongs to the week starting Monday 2026-01-05.
	started := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-1", 100, 5, started))
	store.putSet(benchSet("w-1", "s-2", 100, 5, started.Add(time.Minute)))
	svc := newWeeklyFixture(store)

	result, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, "2026-01-05", result.Week.WeekStart)
	require.Equal(t, 1, result.Week.WorkoutsCompleted)
	require.Equal(t, 2, result.Week.TotalSets)
	require.InDelta(t, 1000.0, result.Week.TotalVolume, 0.001)
	require.Equal(t, 1, result.Week.ActiveDays)
	require.Equal(t, 1, result.Streaks["WEEKLY_1"])
	require.Empty(t, result.PerfectWeekCodes)
}

func TestTrackWeeklyUsesWorkoutTimezone(t *testing.T) {
	store := newFakeStore()
	// 01:00 UTC on Monday 2026-01-05 is still Sunday evening in New York,
	// so the workout lands in the week of Monday 2025-12-29.
	started := time.Date(2026, time.January, 5, 1, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "America/New_York"))
	store.putSet(benchSet("w-1", "s-1", 100, 5, started))
	svc := newWeeklyFixture(store)

	result, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, "2025-12-29", result.Week.WeekStart)
	require.Equal(t, 1, result.Week.ActiveDays)
}

func TestTrackWeeklySameWeekKeepsStreakLength(t *testing.T) {
	store := newFakeStore()
	monday := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", monday, "UTC"))
	store.putWorkout(finishedWorkout("user-1", "w-2", monday.AddDate(0, 0, 2), "UTC"))
	svc := newWeeklyFixture(store)

	first, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, first.Streaks["WEEKLY_1"])

	second, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-2", "")
	require.NoError(t, err)
	require.Equal(t, 2, second.Week.WorkoutsCompleted)
	require.Equal(t, 2, second.Week.ActiveDays)
	// Second workout in the same week does not extend the streak.
	require.Equal(t, 1, second.Streaks["WEEKLY_1"])
}

func TestTrackWeeklyRedeliveryDoesNotInflateCounts(t *testing.T) {
	store := newFakeStore()
	started := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-1", 100, 5, started))
	svc := newWeeklyFixture(store)

	first, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, first.Week.WorkoutsCompleted)

	// The same finish event delivered again must leave the week unchanged.
	second, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, second.Week.WorkoutsCompleted)
	require.Equal(t, 1, second.Week.TotalSets)
	require.InDelta(t, 500.0, second.Week.TotalVolume, 0.001)
	require.Equal(t, 1, second.Week.ActiveDays)
	require.Equal(t, 1, second.Streaks["WEEKLY_1"])
	require.Empty(t, second.PerfectWeekCodes)
}

func TestTrackWeeklyExtendsConsecutiveWeek(t *testing.T) {
	store := newFakeStore()
	store.streaks = append(store.streaks, &UserStreakLog{
		ID:         "streak-1",
		UserID:     "user-1",
		StreakType: "WEEKLY_1",
		Length:     3,
		WeekEnded:  "2025-12-29",
		Active:     true,
	})
	started := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	svc := newWeeklyFixture(store)

	result, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, 4, result.Streaks["WEEKLY_1"])

	active, err := store.ActiveStreak(context.Background(), "user-1", "WEEKLY_1")
	require.NoError(t, err)
	require.Equal(t, "2026-01-05", active.WeekEnded)
}

func TestTrackWeeklyGapBreaksStreak(t *testing.T) {
	store := newFakeStore()
	store.streaks = append(store.streaks, &UserStreakLog{
		ID:         "streak-1",
		UserID:     "user-1",
		StreakType: "WEEKLY_1",
		Length:     5,
		WeekEnded:  "2025-12-15",
		Active:     true,
	})
	started := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	svc := newWeeklyFixture(store)

	result, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Streaks["WEEKLY_1"])

	active, err := store.ActiveStreak(context.Background(), "user-1", "WEEKLY_1")
	require.NoError(t, err)
	require.Equal(t, 1, active.Length)
	require.False(t, store.streaks[0].Active)
}

func TestTrackWeeklyPerfectWeek(t *testing.T) {
	store := newFakeStore()
	monday := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	svc := newWeeklyFixture(store)

	var result *WeeklyResult
	for i := 0; i < 6; i++ {
		workoutID := fmt.Sprintf("w-%d", i)
		store.putWorkout(finishedWorkout("user-1", workoutID, monday.AddDate(0, 0, i), "UTC"))
		var err error
		result, err = svc.TrackWeeklyActivity(context.Background(), "user-1", workoutID, "")
		require.NoError(t, err)

		if i == 4 {
			require.Equal(t, []string{"PERFECT_WEEK_5"}, result.PerfectWeekCodes)
		}
	}

	require.Equal(t, 6, result.Week.WorkoutsCompleted)
	require.Equal(t, 6, result.Week.ActiveDays)
	require.Equal(t, []string{"PERFECT_WEEK_5", "PERFECT_WEEK_6"}, result.PerfectWeekCodes)
	require.Equal(t, 1, result.Streaks["WEEKLY_5"])
}

func TestTrackWeeklyUnfinishedWorkout(t *testing.T) {
	store := newFakeStore()
	store.putWorkout(Workout{
		ID:        "w-1",
		UserID:    "user-1",
		StartedAt: weeklyNow,
		Timezone:  "UTC",
	})
	svc := newWeeklyFixture(store)

	_, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.ErrorIs(t, err, ErrWorkoutNotFinished)
}

func TestTrackWeeklyForeignWorkout(t *testing.T) {
	store := newFakeStore()
	store.putWorkout(finishedWorkout("user-2", "w-1", weeklyNow.Add(-2*time.Hour), "UTC"))
	svc := newWeeklyFixture(store)

	_, err := svc.TrackWeeklyActivity(context.Background(), "user-1", "w-1", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}
