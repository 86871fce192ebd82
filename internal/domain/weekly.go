package domain

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const weekDateLayout = "2006-01-02"

// WeeklyResult reports the state touched by one tracking call.
type WeeklyResult struct {
	Week             UserActivityWeek
	Streaks          map[string]int
	PerfectWeekCodes []string
}

// WeeklyService buckets finished workouts into Monday-start weeks in the
// workout's own timezone and maintains the streak state machine.
type WeeklyService struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewWeeklyService constructs a WeeklyService.
func NewWeeklyService(store Store, policy Policy) *WeeklyService {
	return &WeeklyService{store: store, policy: policy, now: time.Now}
}

// TrackWeeklyActivity folds a finished workout into the user's weekly
// aggregate and advances any qualifying streaks. The workout's stored
// timezone wins over the hint.
func (s *WeeklyService) TrackWeeklyActivity(ctx context.Context, userID, workoutID, timezoneHint string) (*WeeklyResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if workoutID == "" {
		return nil, fmt.Errorf("%w: workout id is required", ErrInvalidInput)
	}

	workout, err := s.store.Workout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil || workout.Deleted {
		return nil, ErrWorkoutNotFound
	}
	if workout.UserID != userID {
		return nil, fmt.Errorf("%w: workout does not belong to user", ErrInvalidInput)
	}
	if !workout.Finished() {
		return nil, ErrWorkoutNotFinished
	}

	var result *WeeklyResult
	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		tracked, err := s.track(ctx, store, workout, timezoneHint)
		if err != nil {
			return err
		}
		result = tracked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *WeeklyService) track(ctx context.Context, store Store, workout *Workout, timezoneHint string) (*WeeklyResult, error) {
	loc := resolveLocation(workout.Timezone, timezoneHint)
	local := workout.StartedAt.In(loc)
	weekStartLocal := mondayOf(local)
	weekStart := weekStartLocal.Format(weekDateLayout)

	week, err := store.ActivityWeek(ctx, workout.UserID, weekStart)
	if err != nil {
		return nil, err
	}
	if week == nil {
		week = &UserActivityWeek{
			ID:        newID(),
			UserID:    workout.UserID,
			WeekStart: weekStart,
		}
	}

	summary, err := s.summarizeWeek(ctx, store, workout.UserID, weekStartLocal, loc)
	if err != nil {
		return nil, err
	}
	week.WorkoutsCompleted = summary.completed
	week.TotalSets = summary.sets
	week.TotalVolume = summary.volume
	week.ActiveDays = summary.activeDays
	week.UpdatedAt = s.now().UTC()

	if err := store.UpsertActivityWeek(ctx, *week); err != nil {
		return nil, err
	}

	streaks := make(map[string]int, len(s.policy.StreakCategories))
	for _, category := range s.policy.StreakCategories {
		if week.WorkoutsCompleted < category.MinWorkouts {
			// Not qualifying does not break anything; a streak only
			// breaks when a later qualifying week reveals a gap.
			continue
		}
		length, err := s.advanceStreak(ctx, store, workout.UserID, category.Type, weekStart)
		if err != nil {
			return nil, err
		}
		streaks[category.Type] = length
	}

	perfect := make([]string, 0)
	for code, threshold := range s.policy.PerfectWeekThresholds {
		if week.WorkoutsCompleted >= threshold {
			perfect = append(perfect, code)
		}
	}
	sort.Strings(perfect)

	return &WeeklyResult{Week: *week, Streaks: streaks, PerfectWeekCodes: perfect}, nil
}

// advanceStreak applies the continuation state machine for one category:
// create, extend by exactly one week, idempotent same-week re-entry, or
// break-and-restart on a gap.
func (s *WeeklyService) advanceStreak(ctx context.Context, store Store, userID, streakType, weekStart string) (int, error) {
	active, err := store.ActiveStreak(ctx, userID, streakType)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	if active == nil {
		fresh := UserStreakLog{
			ID:         newID(),
			UserID:     userID,
			StreakType: streakType,
			Length:     1,
			WeekEnded:  weekStart,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := store.InsertStreak(ctx, fresh); err != nil {
			return 0, err
		}
		return 1, nil
	}

	switch {
	case active.WeekEnded == weekStart:
		// Same week processed again.
		return active.Length, nil
	case addWeeks(active.WeekEnded, 1) == weekStart:
		active.Length++
		active.WeekEnded = weekStart
		active.UpdatedAt = now
		if err := store.UpdateStreak(ctx, *active); err != nil {
			return 0, err
		}
		return active.Length, nil
	default:
		if err := store.DeactivateStreak(ctx, active.ID); err != nil {
			return 0, err
		}
		fresh := UserStreakLog{
			ID:         newID(),
			UserID:     userID,
			StreakType: streakType,
			Length:     1,
			WeekEnded:  weekStart,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := store.InsertStreak(ctx, fresh); err != nil {
			return 0, err
		}
		return 1, nil
	}
}

type weekSummary struct {
	completed  int
	sets       int
	volume     float64
	activeDays int
}

// summarizeWeek recomputes the week's aggregates from the stored workouts
// inside [weekStart, weekStart+7d). Completed counts and volume cover
// finished workouts only; active days count any non-deleted workout.
// Recomputing instead of incrementing keeps redelivered finish events
// from inflating the counts.
func (s *WeeklyService) summarizeWeek(ctx context.Context, store Store, userID string, weekStartLocal time.Time, loc *time.Location) (weekSummary, error) {
	weekEndLocal := weekStartLocal.AddDate(0, 0, 7)
	workouts, err := store.WorkoutsInRange(ctx, userID, weekStartLocal.UTC(), weekEndLocal.UTC())
	if err != nil {
		return weekSummary{}, err
	}

	var sum weekSummary
	days := make(map[string]struct{})
	for _, w := range workouts {
		days[w.StartedAt.In(loc).Format(weekDateLayout)] = struct{}{}
		if !w.Finished() {
			continue
		}
		sum.completed++
		sets, err := store.SetsByWorkout(ctx, w.ID)
		if err != nil {
			return weekSummary{}, err
		}
		sum.sets += len(sets)
		for _, set := range sets {
			sum.volume += set.Volume()
		}
	}
	sum.activeDays = len(days)
	return sum, nil
}

// mondayOf returns local midnight of the Monday of t's calendar week,
// with days mapped Mon=0 through Sun=6.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// addWeeks shifts a YYYY-MM-DD week-start date by n weeks.
func addWeeks(weekStart string, n int) string {
	t, err := time.Parse(weekDateLayout, weekStart)
	if err != nil {
		return weekStart
	}
	return t.AddDate(0, 0, 7*n).Format(weekDateLayout)
}

// resolveLocation loads the workout's IANA zone, falling back to the
// hint, then UTC.
func resolveLocation(stored, hint string) *time.Location {
	for _, name := range []string{stored, hint} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
