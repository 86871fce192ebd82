package domain

import "time"

// Workout is a training session recorded by the workout-capture flow.
// The engine treats workouts as read-only input; only sets are mutated
// (the PR flag).
type Workout struct {
	ID        string
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time
	Timezone  string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Finished reports whether the workout has an end timestamp. XP workout
// bonuses and PR detection only apply to finished workouts.
func (w *Workout) Finished() bool {
	return w.EndedAt != nil && !w.EndedAt.IsZero()
}

// WorkoutSet is one completed resistance-training set.
type WorkoutSet struct {
	ID          string
	WorkoutID   string
	ExerciseID  string
	MuscleGroup string
	WeightKg    float64
	Reps        int
	IsPR        bool
	Deleted     bool
	CreatedAt   time.Time
}

// Volume returns weight times reps for the set.
func (s WorkoutSet) Volume() float64 {
	return s.WeightKg * float64(s.Reps)
}
