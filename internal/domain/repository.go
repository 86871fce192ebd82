package domain

import (
	"context"
	"time"
)

// WorkoutRepository reads workout and set rows written by the external
// workout-capture flow. Lookups returning (nil, nil) mean not found;
// services translate that into the sentinel errors.
type WorkoutRepository interface {
	Workout(ctx context.Context, workoutID string) (*Workout, error)
	SetsByIDs(ctx context.Context, setIDs []string) ([]WorkoutSet, error)
	SetsByWorkout(ctx context.Context, workoutID string) ([]WorkoutSet, error)
	// HistoricalSets returns the user's non-deleted sets for an exercise
	// excluding one workout, bounded to the heaviest limit rows.
	HistoricalSets(ctx context.Context, userID, exerciseID, excludeWorkoutID string, limit int) ([]WorkoutSet, error)
	MarkSetPR(ctx context.Context, setID string) error
	WorkoutsInRange(ctx context.Context, userID string, from, to time.Time) ([]Workout, error)
	FinishedWorkoutCount(ctx context.Context, userID string) (int, error)
	LastFinishedWorkoutEnd(ctx context.Context, userID string) (*time.Time, error)
	PRSetCount(ctx context.Context, userID string) (int, error)
	MuscleGroupSetCount(ctx context.Context, userID, muscleGroup string) (int, error)
}

// LedgerRepository owns the XP ledger and the derived level cache.
type LedgerRepository interface {
	AppendXP(ctx context.Context, entry XpLogEntry) error
	// XPEntriesForSources returns existing grants keyed by source id for
	// the given source type.
	XPEntriesForSources(ctx context.Context, userID string, source XpSource, sourceIDs []string) (map[string]XpLogEntry, error)
	XPTotalSince(ctx context.Context, userID string, since time.Time) (int, error)
	XPTotal(ctx context.Context, userID string) (int, error)
	LevelCache(ctx context.Context, userID string) (*UserLevelCache, error)
	UpsertLevelCache(ctx context.Context, cache UserLevelCache) error
}

// ActivityWeekRepository owns weekly aggregates and streak rows.
type ActivityWeekRepository interface {
	ActivityWeek(ctx context.Context, userID, weekStart string) (*UserActivityWeek, error)
	UpsertActivityWeek(ctx context.Context, week UserActivityWeek) error
	MaxWeeklyWorkouts(ctx context.Context, userID string) (int, error)
	TotalVolume(ctx context.Context, userID string) (float64, error)
	ActiveStreak(ctx context.Context, userID, streakType string) (*UserStreakLog, error)
	InsertStreak(ctx context.Context, streak UserStreakLog) error
	UpdateStreak(ctx context.Context, streak UserStreakLog) error
	DeactivateStreak(ctx context.Context, streakID string) error
}

// BadgeRepository owns achievements (read-only reference data) and the
// per-user badge rows.
type BadgeRepository interface {
	Achievements(ctx context.Context) ([]Achievement, error)
	BadgesByUser(ctx context.Context, userID string) ([]UserBadge, error)
	InsertBadge(ctx context.Context, badge UserBadge) error
	SetBadgeRust(ctx context.Context, userID, achievementCode string, rusty bool) error
	PolishBadge(ctx context.Context, userID, achievementCode string, at time.Time) (bool, error)
}

// NotificationRepository records notifications for the external
// dispatcher; the Postgres implementation also stages an outbox event in
// the same transaction.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Notification, *Cursor, error)
}

// Store is the full persistence surface the engine runs against.
type Store interface {
	WorkoutRepository
	LedgerRepository
	ActivityWeekRepository
	BadgeRepository
	NotificationRepository

	// WithUserLock serializes fn against all other engine work for the
	// same user. Two near-simultaneous invocations (a retried request,
	// say) must not both pass an idempotency or streak-continuation
	// check before either writes.
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store Store) error) error
}

// Cursor models the pagination token for notification listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
