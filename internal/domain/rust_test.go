package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var rustNow = time.Date(2026, time.April, 20, 12, 0, 0, 0, time.UTC)

func newRustFixture(store *fakeStore) *RustService {
	svc := NewRustService(store, DefaultPolicy())
	svc.now = func() time.Time { return rustNow }
	return svc
}

func TestCheckRustThresholdBoundary(t *testing.T) {
	store := newFakeStore()
	// WORKOUT_* badges rust after 14 days; exactly 14 is still clean.
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "WORKOUT_10",
		LastMaintainedAt: rustNow.AddDate(0, 0, -14),
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, result.Updates)
	require.False(t, store.badges[0].IsRusty)
}

func TestCheckRustPastThreshold(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "WORKOUT_10",
		LastMaintainedAt: rustNow.AddDate(0, 0, -15),
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	require.Equal(t, "WORKOUT_10", result.Updates[0].BadgeCode)
	require.True(t, result.Updates[0].IsNowRusty)
	require.Equal(t, 15, result.Updates[0].DaysSinceActivity)
	require.Equal(t, []string{"WORKOUT_10"}, result.NewlyRusted)
	require.True(t, store.badges[0].IsRusty)
}

func TestCheckRustExemptBadgesNeverRust(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "PERFECT_WEEK_5",
		LastMaintainedAt: rustNow.AddDate(0, 0, -100),
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, result.Updates)
	require.False(t, store.badges[0].IsRusty)
}

func TestCheckRustAggregatesNotifications(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "FIRST_WORKOUT",
		LastMaintainedAt: rustNow.AddDate(0, 0, -20),
	})
	store.putBadge(UserBadge{
		ID:               "b-2",
		UserID:           "user-1",
		AchievementCode:  "WORKOUT_10",
		LastMaintainedAt: rustNow.AddDate(0, 0, -20),
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, result.NewlyRusted, 2)
	// One notification regardless of how many badges rusted.
	require.Len(t, store.notificationsOfType(NotificationBadgeRusty), 1)
}

func TestCheckRustPolishesRecoveredBadges(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "FIRST_PR",
		IsRusty:          true,
		LastMaintainedAt: rustNow.AddDate(0, 0, -1),
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"FIRST_PR"}, result.Polished)
	require.False(t, store.badges[0].IsRusty)
	require.Len(t, store.notificationsOfType(NotificationBadgePolished), 1)
}

func TestCheckRustFallsBackToLastWorkout(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:              "b-1",
		UserID:          "user-1",
		AchievementCode: "LEVEL_5",
	})
	store.putWorkout(finishedWorkout("user-1", "w-1", rustNow.AddDate(0, 0, -40), "UTC"))
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	require.True(t, result.Updates[0].IsNowRusty)
}

func TestCheckRustSkipsBadgesWithoutAnyActivity(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:              "b-1",
		UserID:          "user-1",
		AchievementCode: "LEVEL_5",
	})
	svc := newRustFixture(store)

	result, err := svc.CheckRust(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, result.Updates)
}

func TestPolish(t *testing.T) {
	store := newFakeStore()
	store.putBadge(UserBadge{
		ID:               "b-1",
		UserID:           "user-1",
		AchievementCode:  "FIRST_WORKOUT",
		IsRusty:          true,
		LastMaintainedAt: rustNow.AddDate(0, 0, -30),
	})
	svc := newRustFixture(store)

	require.NoError(t, svc.Polish(context.Background(), "user-1", "FIRST_WORKOUT"))
	require.False(t, store.badges[0].IsRusty)
	require.Equal(t, rustNow, store.badges[0].LastMaintainedAt)
}

func TestPolishUnknownBadge(t *testing.T) {
	store := newFakeStore()
	svc := newRustFixture(store)

	err := svc.Polish(context.Background(), "user-1", "FIRST_WORKOUT")
	require.ErrorIs(t, err, ErrBadgeNotFound)
}
