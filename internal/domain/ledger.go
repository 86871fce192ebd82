// Package domain implements the gamification engine: XP accrual, levels,
// personal records, weekly streaks, and the badge lifecycle.
package domain

import (
	"context"
	"fmt"
	"time"
)

// AwardXPResult reports what one Award XP call granted.
type AwardXPResult struct {
	XPAwarded  int
	TodayTotal int
}

// XPService appends XP grants to the ledger and keeps the level cache in
// step. Grants are idempotent per set and capped per workout and per
// local day; cap saturation is a normal zero-grant outcome, not an error.
type XPService struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewXPService constructs an XPService.
func NewXPService(store Store, policy Policy) *XPService {
	return &XPService{store: store, policy: policy, now: time.Now}
}

// AwardXP grants XP for the given sets, which must all belong to one of
// the user's workouts, plus the workout-finished bonus when due.
func (s *XPService) AwardXP(ctx context.Context, userID string, setIDs []string) (*AwardXPResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(setIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one set id is required", ErrInvalidInput)
	}

	var result *AwardXPResult
	err := s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		granted, err := s.award(ctx, store, userID, setIDs)
		if err != nil {
			return err
		}
		result = granted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *XPService) award(ctx context.Context, store Store, userID string, setIDs []string) (*AwardXPResult, error) {
	sets, err := store.SetsByIDs(ctx, setIDs)
	if err != nil {
		return nil, err
	}
	if len(sets) != len(setIDs) {
		return nil, fmt.Errorf("%w: %d of %d sets", ErrSetNotFound, len(setIDs)-len(sets), len(setIDs))
	}

	workoutID := sets[0].WorkoutID
	for _, set := range sets[1:] {
		if set.WorkoutID != workoutID {
			return nil, fmt.Errorf("%w: sets span multiple workouts", ErrInvalidInput)
		}
	}

	workout, err := store.Workout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil || workout.Deleted {
		return nil, ErrWorkoutNotFound
	}
	if workout.UserID != userID {
		return nil, fmt.Errorf("%w: sets do not belong to user", ErrInvalidInput)
	}

	now := s.now().UTC()
	midnight := localMidnight(now, workout.Timezone)

	dailyTotal, err := store.XPTotalSince(ctx, userID, midnight)
	if err != nil {
		return nil, err
	}
	if dailyTotal >= s.policy.DailyXPCap {
		return &AwardXPResult{XPAwarded: 0, TodayTotal: dailyTotal}, nil
	}

	// Workout-level cap tracking counts every grant already logged
	// against any of this workout's sets, not just the requested ones.
	workoutSets, err := store.SetsByWorkout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	workoutSetIDs := make([]string, 0, len(workoutSets))
	for _, set := range workoutSets {
		workoutSetIDs = append(workoutSetIDs, set.ID)
	}
	existing, err := store.XPEntriesForSources(ctx, userID, XpSourceSet, workoutSetIDs)
	if err != nil {
		return nil, err
	}
	workoutTotal := 0
	for _, entry := range existing {
		workoutTotal += entry.Amount
	}

	granted := 0
	for _, setID := range setIDs {
		if _, done := existing[setID]; done {
			continue
		}
		// Caps are hard stops: the last grant is trimmed to land exactly
		// on the cap and no further sets are considered.
		amount := s.policy.XPPerSet
		if remaining := s.policy.DailyXPCap - dailyTotal - granted; remaining < amount {
			amount = remaining
		}
		if remaining := s.policy.WorkoutXPCap - workoutTotal - granted; remaining < amount {
			amount = remaining
		}
		if amount <= 0 {
			break
		}
		if err := store.AppendXP(ctx, XpLogEntry{
			ID:        newID(),
			UserID:    userID,
			Source:    XpSourceSet,
			SourceID:  setID,
			Amount:    amount,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
		granted += amount
	}

	if workout.Finished() && dailyTotal+granted < s.policy.DailyXPCap {
		bonus, err := store.XPEntriesForSources(ctx, userID, XpSourceWorkout, []string{workoutID})
		if err != nil {
			return nil, err
		}
		if _, done := bonus[workoutID]; !done {
			amount := s.policy.XPWorkoutBonus
			if remaining := s.policy.DailyXPCap - dailyTotal - granted; remaining < amount {
				amount = remaining
			}
			if err := store.AppendXP(ctx, XpLogEntry{
				ID:        newID(),
				UserID:    userID,
				Source:    XpSourceWorkout,
				SourceID:  workoutID,
				Amount:    amount,
				CreatedAt: now,
			}); err != nil {
				return nil, err
			}
			granted += amount
		}
	}

	if granted > 0 {
		if _, err := recalculateLevel(ctx, store, userID, now); err != nil {
			return nil, err
		}
	}

	return &AwardXPResult{XPAwarded: granted, TodayTotal: dailyTotal + granted}, nil
}

// RecalculateLevel rebuilds the user's level cache from the full ledger
// sum. Safe to re-run at any time.
func (s *XPService) RecalculateLevel(ctx context.Context, userID string) (*UserLevelCache, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	var cache *UserLevelCache
	err := s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		updated, err := recalculateLevel(ctx, store, userID, s.now().UTC())
		if err != nil {
			return err
		}
		cache = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cache, nil
}

func recalculateLevel(ctx context.Context, store Store, userID string, now time.Time) (*UserLevelCache, error) {
	total, err := store.XPTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	level, toNext := LevelFromTotalXP(total)
	cache := UserLevelCache{
		UserID:        userID,
		TotalXP:       total,
		Level:         level,
		XPToNextLevel: toNext,
		UpdatedAt:     now,
	}
	if err := store.UpsertLevelCache(ctx, cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// localMidnight returns the most recent midnight in the named IANA zone
// as an absolute instant. Unknown zones fall back to UTC.
func localMidnight(now time.Time, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
