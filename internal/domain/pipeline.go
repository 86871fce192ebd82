package domain

import (
	"context"
	"fmt"
	"log"
)

// StageFailure names a pipeline stage that failed and why. Failures are
// reported, never propagated backwards: a stage that blows up must not
// roll back what earlier stages already committed.
type StageFailure struct {
	Stage  string
	Reason string
}

// PipelineResult aggregates whatever subset of stages succeeded for one
// finished workout.
type PipelineResult struct {
	XP        *AwardXPResult
	Level     *UserLevelCache
	PRs       []PersonalRecord
	Weekly    *WeeklyResult
	NewBadges []EarnedBadge
	Failures  []StageFailure
}

// Pipeline sequences the gamification stages for a finished workout:
// Award XP, Recalculate Level, Detect PRs, Track Weekly Activity, Unlock
// Badges. Each stage is idempotent and independently retryable, so the
// pipeline runs best-effort front to back.
type Pipeline struct {
	store  Store
	xp     *XPService
	prs    *PRService
	weekly *WeeklyService
	badges *BadgeService
	logger *log.Logger
}

// NewPipeline constructs a Pipeline over the shared store and services.
func NewPipeline(store Store, xp *XPService, prs *PRService, weekly *WeeklyService, badges *BadgeService, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{store: store, xp: xp, prs: prs, weekly: weekly, badges: badges, logger: logger}
}

// WorkoutFinished runs the full gamification sequence for a finished
// workout. Only a missing or unfinished workout is a hard error; any
// stage failure is logged, recorded, and skipped past.
func (p *Pipeline) WorkoutFinished(ctx context.Context, workoutID, timezoneHint string) (*PipelineResult, error) {
	if workoutID == "" {
		return nil, fmt.Errorf("%w: workout id is required", ErrInvalidInput)
	}
	workout, err := p.store.Workout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil || workout.Deleted {
		return nil, ErrWorkoutNotFound
	}
	if !workout.Finished() {
		return nil, ErrWorkoutNotFinished
	}

	result := &PipelineResult{Failures: make([]StageFailure, 0)}
	fail := func(stage string, err error) {
		p.logger.Printf("pipeline: stage %s failed (workout=%s): %v", stage, workoutID, err)
		result.Failures = append(result.Failures, StageFailure{Stage: stage, Reason: err.Error()})
	}

	sets, err := p.store.SetsByWorkout(ctx, workoutID)
	if err != nil {
		fail("award_xp", err)
	} else if len(sets) > 0 {
		setIDs := make([]string, 0, len(sets))
		for _, set := range sets {
			setIDs = append(setIDs, set.ID)
		}
		if awarded, err := p.xp.AwardXP(ctx, workout.UserID, setIDs); err != nil {
			fail("award_xp", err)
		} else {
			result.XP = awarded
		}
	}

	if level, err := p.xp.RecalculateLevel(ctx, workout.UserID); err != nil {
		fail("recalculate_level", err)
	} else {
		result.Level = level
	}

	if records, err := p.prs.DetectPRs(ctx, workoutID); err != nil {
		fail("detect_prs", err)
	} else {
		result.PRs = records
	}

	if weekly, err := p.weekly.TrackWeeklyActivity(ctx, workout.UserID, workoutID, timezoneHint); err != nil {
		fail("weekly_activity", err)
	} else {
		result.Weekly = weekly
	}

	if earned, _, err := p.badges.UnlockBadges(ctx, workout.UserID); err != nil {
		fail("unlock_badges", err)
	} else {
		result.NewBadges = earned
	}

	return result, nil
}
