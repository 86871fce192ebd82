package domain

import "errors"

var (
	// ErrInvalidInput flags missing or malformed request identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWorkoutNotFound is returned when a referenced workout is absent.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrSetNotFound is returned when a referenced set is absent.
	ErrSetNotFound = errors.New("workout set not found")
	// ErrWorkoutNotFinished rejects operations that only apply to
	// finished workouts.
	ErrWorkoutNotFinished = errors.New("workout is not finished")
	// ErrBadgeNotFound is returned when polishing a badge the user has
	// not earned.
	ErrBadgeNotFound = errors.New("badge not found")
)
