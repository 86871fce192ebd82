package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func namedEvaluator(name string, chosen *string) BadgeEvaluator {
	return func(context.Context, Store, string, Achievement) (bool, error) {
		*chosen = name
		return false, nil
	}
}

func TestEvaluatorRegistryResolution(t *testing.T) {
	var chosen string
	registry := NewEvaluatorRegistry()
	registry.RegisterCode("WORKOUT_10", namedEvaluator("exact", &chosen))
	registry.RegisterPrefix("WORKOUT_", namedEvaluator("prefix", &chosen))
	registry.RegisterPrefix("PR_", namedEvaluator("short-prefix", &chosen))
	registry.RegisterPrefix("PR_COUNT_", namedEvaluator("long-prefix", &chosen))
	registry.RegisterFallback(namedEvaluator("fallback", &chosen))

	run := func(code string) string {
		eval := registry.Resolve(Achievement{Code: code})
		require.NotNil(t, eval)
		_, err := eval(context.Background(), nil, "", Achievement{Code: code})
		require.NoError(t, err)
		return chosen
	}

	require.Equal(t, "exact", run("WORKOUT_10"))
	require.Equal(t, "prefix", run("WORKOUT_50"))
	require.Equal(t, "long-prefix", run("PR_COUNT_5"))
	require.Equal(t, "short-prefix", run("PR_STREAK_3"))
	require.Equal(t, "fallback", run("SOMETHING_ELSE"))
}

func TestEvaluatorRegistryNoFallback(t *testing.T) {
	registry := NewEvaluatorRegistry()
	require.Nil(t, registry.Resolve(Achievement{Code: "UNKNOWN"}))
}

func TestUnlockBadgesGrantsAndNotifies(t *testing.T) {
	store := newFakeStore()
	store.seed(
		Achievement{Code: "FIRST_WORKOUT", Title: "First Workout", Description: "Finish your first workout"},
		Achievement{Code: "WORKOUT_10", Title: "Ten Workouts", Threshold: 10},
	)
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))

	policy := DefaultPolicy()
	svc := NewBadgeService(store, DefaultEvaluatorRegistry(policy), quietLogger())

	earned, count, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.Equal(t, "FIRST_WORKOUT", earned[0].Code)
	require.Equal(t, 1, count)

	notifications := store.notificationsOfType(NotificationAchievement)
	require.Len(t, notifications, 1)
	require.Equal(t, "First Workout", notifications[0].Title)
	require.Equal(t, "FIRST_WORKOUT", notifications[0].Metadata["code"])

	// No new activity: nothing more to grant, nothing re-notified.
	again, count, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, again)
	require.Equal(t, 1, count)
	require.Equal(t, 1, store.notificationCount())
}

func TestUnlockBadgesThresholdCounts(t *testing.T) {
	store := newFakeStore()
	store.seed(
		Achievement{Code: "WORKOUT_3", Title: "Three Workouts", Threshold: 3},
		Achievement{Code: "WORKOUT_10", Title: "Ten Workouts", Threshold: 10},
	)
	started := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		store.putWorkout(finishedWorkout("user-1", fmt.Sprintf("w-%d", i), started.AddDate(0, 0, i), "UTC"))
	}

	svc := NewBadgeService(store, DefaultEvaluatorRegistry(DefaultPolicy()), quietLogger())

	earned, _, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.Equal(t, "WORKOUT_3", earned[0].Code)
}

func TestUnlockBadgesPerfectWeekSuffix(t *testing.T) {
	store := newFakeStore()
	// No threshold on the definition; the numeric code suffix decides.
	store.seed(Achievement{Code: "PERFECT_WEEK_5", Title: "Perfect Week"})
	require.NoError(t, store.UpsertActivityWeek(context.Background(), UserActivityWeek{
		ID:                "week-1",
		UserID:            "user-1",
		WeekStart:         "2026-03-02",
		WorkoutsCompleted: 5,
	}))

	svc := NewBadgeService(store, DefaultEvaluatorRegistry(DefaultPolicy()), quietLogger())

	earned, _, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.Equal(t, "PERFECT_WEEK_5", earned[0].Code)
}

func TestUnlockBadgesMuscleGroupFallback(t *testing.T) {
	store := newFakeStore()
	store.seed(Achievement{Code: "CHEST_CHAMP", Title: "Chest Champ", MuscleGroup: "chest"})
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	for i := 0; i < 10; i++ {
		store.putSet(benchSet("w-1", fmt.Sprintf("s-%d", i), 100, 5, started.Add(time.Duration(i)*time.Minute)))
	}

	svc := NewBadgeService(store, DefaultEvaluatorRegistry(DefaultPolicy()), quietLogger())

	earned, _, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.Equal(t, "CHEST_CHAMP", earned[0].Code)
}

func TestUnlockBadgesEvaluatorErrorSkipped(t *testing.T) {
	store := newFakeStore()
	store.seed(
		Achievement{Code: "BROKEN", Title: "Broken"},
		Achievement{Code: "WORKING", Title: "Working"},
	)
	registry := NewEvaluatorRegistry()
	registry.RegisterCode("BROKEN", func(context.Context, Store, string, Achievement) (bool, error) {
		return false, errors.New("predicate exploded")
	})
	registry.RegisterCode("WORKING", func(context.Context, Store, string, Achievement) (bool, error) {
		return true, nil
	})

	svc := NewBadgeService(store, registry, quietLogger())

	earned, count, err := svc.UnlockBadges(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.Equal(t, "WORKING", earned[0].Code)
	require.Equal(t, 1, count)
}
