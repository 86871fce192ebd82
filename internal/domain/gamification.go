package domain

import "time"

// XpSource identifies what earned an XP grant.
type XpSource string

const (
	XpSourceSet     XpSource = "SET"
	XpSourceWorkout XpSource = "WORKOUT"
)

// XpLogEntry is an append-only XP grant. At most one entry may exist per
// (user, source, source id); that tuple is the idempotency key.
type XpLogEntry struct {
	ID        string
	UserID    string
	Source    XpSource
	SourceID  string
	Amount    int
	CreatedAt time.Time
}

// UserLevelCache is the denormalized level row derived from the XP ledger.
// It is never the source of truth; RecalculateLevel rebuilds it from the
// ledger sum.
type UserLevelCache struct {
	UserID        string
	TotalXP       int
	Level         int
	XPToNextLevel int
	UpdatedAt     time.Time
}

// Achievement is a global badge definition seeded out-of-band. Threshold
// and MuscleGroup are optional depending on the badge shape.
type Achievement struct {
	Code        string
	Title       string
	Description string
	Threshold   int
	MuscleGroup string
}

// UserBadge is an earned achievement. Created once per (user, code);
// re-earning is a no-op. Rust state decays the badge after inactivity.
type UserBadge struct {
	ID               string
	UserID           string
	AchievementCode  string
	EarnedAt         time.Time
	IsRusty          bool
	LastMaintainedAt time.Time
	Deleted          bool
}

// UserActivityWeek aggregates a user's training inside one ISO week.
// WeekStart is the Monday of the week as a local YYYY-MM-DD date in the
// workout's own timezone.
type UserActivityWeek struct {
	ID                string
	UserID            string
	WeekStart         string
	ActiveDays        int
	WorkoutsCompleted int
	TotalSets         int
	TotalVolume       float64
	UpdatedAt         time.Time
}

// UserStreakLog tracks consecutive qualifying weeks for one streak
// category. A broken streak is deactivated and superseded by a fresh row.
type UserStreakLog struct {
	ID         string
	UserID     string
	StreakType string
	Length     int
	WeekEnded  string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NotificationType classifies engine-created notifications.
type NotificationType string

const (
	NotificationAchievement   NotificationType = "ACHIEVEMENT"
	NotificationBadgeRusty    NotificationType = "BADGE_RUSTY"
	NotificationBadgePolished NotificationType = "BADGE_POLISHED"
)

// Notification is a row handed off to the external dispatch collaborator.
// The engine only creates these; delivery happens elsewhere.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Body      string
	Metadata  map[string]string
	CreatedAt time.Time
}
