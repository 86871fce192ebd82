package domain

import (
	"context"
	"fmt"
	"log"
)

// PersonalRecord describes a set that beat the user's historical best
// estimated 1RM for an exercise.
type PersonalRecord struct {
	ExerciseID  string
	SetID       string
	NewPR       float64
	PreviousPR  float64
	Improvement float64
}

// PRService flags new personal records on finished workouts.
type PRService struct {
	store  Store
	policy Policy
	logger *log.Logger
}

// NewPRService constructs a PRService.
func NewPRService(store Store, policy Policy, logger *log.Logger) *PRService {
	if logger == nil {
		logger = log.Default()
	}
	return &PRService{store: store, policy: policy, logger: logger}
}

// DetectPRs compares each exercise's best set in the workout against the
// user's historical best for that exercise, excluding the workout itself.
// Equal values are not records; only strict improvements count. Failures
// on one exercise's historical lookup are logged and do not abort the
// remaining exercises.
func (s *PRService) DetectPRs(ctx context.Context, workoutID string) ([]PersonalRecord, error) {
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
	if !workout.Finished() {
		return nil, ErrWorkoutNotFinished
	}

	var records []PersonalRecord
	err = s.store.WithUserLock(ctx, workout.UserID, func(ctx context.Context, store Store) error {
		detected, err := s.detect(ctx, store, workout)
		if err != nil {
			return err
		}
		records = detected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PRService) detect(ctx context.Context, store Store, workout *Workout) ([]PersonalRecord, error) {
	sets, err := store.SetsByWorkout(ctx, workout.ID)
	if err != nil {
		return nil, err
	}

	// Best set per exercise, ties resolved to the first encountered.
	exerciseOrder := make([]string, 0)
	bestByExercise := make(map[string]WorkoutSet)
	for _, set := range sets {
		best, seen := bestByExercise[set.ExerciseID]
		if !seen {
			exerciseOrder = append(exerciseOrder, set.ExerciseID)
			bestByExercise[set.ExerciseID] = set
			continue
		}
		if Estimated1RM(set.WeightKg, set.Reps) > Estimated1RM(best.WeightKg, best.Reps) {
			bestByExercise[set.ExerciseID] = set
		}
	}

	records := make([]PersonalRecord, 0)
	for _, exerciseID := range exerciseOrder {
		best := bestByExercise[exerciseID]
		history, err := store.HistoricalSets(ctx, workout.UserID, exerciseID, workout.ID, s.policy.PRHistoryLimit)
		if err != nil {
			s.logger.Printf("pr detect: historical lookup failed (exercise=%s, user=%s): %v", exerciseID, workout.UserID, err)
			continue
		}

		previous := 0.0
		for _, past := range history {
			if oneRM := Estimated1RM(past.WeightKg, past.Reps); oneRM > previous {
				previous = oneRM
			}
		}

		current := Estimated1RM(best.WeightKg, best.Reps)
		if current <= previous {
			continue
		}

		if err := store.MarkSetPR(ctx, best.ID); err != nil {
			s.logger.Printf("pr detect: flagging set failed (set=%s): %v", best.ID, err)
			continue
		}
		records = append(records, PersonalRecord{
			ExerciseID:  exerciseID,
			SetID:       best.ID,
			NewPR:       current,
			PreviousPR:  previous,
			Improvement: current - previous,
		})
	}

	return records, nil
}
