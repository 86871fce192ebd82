package domain

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDetectPRsFirstEverSet(t *testing.T) {
	store := newFakeStore()
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-1", 100, 5, started))
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	records, err := svc.DetectPRs(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "bench-press", records[0].ExerciseID)
	require.Equal(t, "s-1", records[0].SetID)
	require.Equal(t, 0.0, records[0].PreviousPR)
	require.InDelta(t, 116.67, records[0].NewPR, 0.01)
	require.True(t, store.sets["s-1"].IsPR)
}

func TestDetectPRsRequiresStrictImprovement(t *testing.T) {
	store := newFakeStore()
	earlier := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-old", earlier, "UTC"))
	store.putSet(benchSet("w-old", "s-old", 100, 5, earlier))
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-1", 100, 5, started))
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	// Matching the historical best exactly is not a record.
	records, err := svc.DetectPRs(context.Background(), "w-1")
	require.NoError(t, err)
	require.Empty(t, records)
	require.False(t, store.sets["s-1"].IsPR)
}

func TestDetectPRsBeatsHistory(t *testing.T) {
	store := newFakeStore()
	earlier := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-old", earlier, "UTC"))
	store.putSet(benchSet("w-old", "s-old", 100, 5, earlier))
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-1", 105, 5, started))
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	records, err := svc.DetectPRs(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.InDelta(t, 116.67, records[0].PreviousPR, 0.01)
	require.InDelta(t, 122.5, records[0].NewPR, 0.01)
	require.InDelta(t, records[0].NewPR-records[0].PreviousPR, records[0].Improvement, 0.001)
}

func TestDetectPRsPicksBestSetPerExercise(t *testing.T) {
	store := newFakeStore()
	started := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	store.putWorkout(finishedWorkout("user-1", "w-1", started, "UTC"))
	store.putSet(benchSet("w-1", "s-light", 80, 5, started))
	store.putSet(benchSet("w-1", "s-heavy", 110, 5, started.Add(time.Minute)))
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	records, err := svc.DetectPRs(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "s-heavy", records[0].SetID)
	require.False(t, store.sets["s-light"].IsPR)
	require.True(t, store.sets["s-heavy"].IsPR)
}

func TestDetectPRsUnfinishedWorkout(t *testing.T) {
	store := newFakeStore()
	store.putWorkout(Workout{
		ID:        "w-1",
		UserID:    "user-1",
		StartedAt: time.Now().UTC(),
		Timezone:  "UTC",
	})
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	_, err := svc.DetectPRs(context.Background(), "w-1")
	require.ErrorIs(t, err, ErrWorkoutNotFinished)
}

func TestDetectPRsUnknownWorkout(t *testing.T) {
	store := newFakeStore()
	svc := NewPRService(store, DefaultPolicy(), quietLogger())

	_, err := svc.DetectPRs(context.Background(), "missing")
	require.ErrorIs(t, err, ErrWorkoutNotFound)
}
