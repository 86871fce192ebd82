// Package events defines shared cross-service event payloads.
package events

import "time"

// WorkoutFinished is consumed from the workout-capture service when a
// session gains its end timestamp. It triggers the gamification pipeline.
type WorkoutFinished struct {
	WorkoutID string    `json:"workout_id"`
	UserID    string    `json:"user_id"`
	Timezone  string    `json:"timezone,omitempty"`
	EndedAt   time.Time `json:"ended_at"`
}

// BadgeEarned is emitted when the unlock evaluator grants a badge.
type BadgeEarned struct {
	UserID   string    `json:"user_id"`
	Code     string    `json:"code"`
	Title    string    `json:"title"`
	EarnedAt time.Time `json:"earned_at"`
}

// NotificationCreated hands a user-visible alert to the external
// notification dispatcher.
type NotificationCreated struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
