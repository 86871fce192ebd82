// Package memory provides an in-memory domain.Store used by unit tests
// and local experiments. It mirrors the Postgres repository's semantics,
// including per-user serialization.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rafizuaf/spotter-sub000/internal/domain"
)

// Store keeps all engine state in maps guarded by one mutex, with a
// dedicated lock per user for WithUserLock.
type Store struct {
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	workouts      map[string]domain.Workout
	sets          map[string]domain.WorkoutSet
	xpEntries     []domain.XpLogEntry
	levelCaches   map[string]domain.UserLevelCache
	achievements  []domain.Achievement
	badges        []domain.UserBadge
	activityWeeks map[string]domain.UserActivityWeek
	streaks       []domain.UserStreakLog
	notifications []domain.Notification
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		userLocks:     make(map[string]*sync.Mutex),
		workouts:      make(map[string]domain.Workout),
		sets:          make(map[string]domain.WorkoutSet),
		levelCaches:   make(map[string]domain.UserLevelCache),
		activityWeeks: make(map[string]domain.UserActivityWeek),
	}
}

// WithUserLock serializes fn against other callers for the same user.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store domain.Store) error) error {
	s.mu.Lock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, s)
}

// Seeding helpers used by tests.

// PutWorkout stores or replaces a workout row.
func (s *Store) PutWorkout(w domain.Workout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts[w.ID] = w
}

// PutSet stores or replaces a set row.
func (s *Store) PutSet(set domain.WorkoutSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = set
}

// SeedAchievements replaces the achievement catalog.
func (s *Store) SeedAchievements(achievements []domain.Achievement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.achievements = append([]domain.Achievement(nil), achievements...)
}

// PutBadge stores a badge row directly, bypassing evaluation.
func (s *Store) PutBadge(badge domain.UserBadge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges = append(s.badges, badge)
}

// Notifications returns a copy of all recorded notifications.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// Badges returns a copy of all badge rows.
func (s *Store) Badges() []domain.UserBadge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserBadge(nil), s.badges...)
}

// XPEntries returns a copy of the ledger.
func (s *Store) XPEntries() []domain.XpLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.XpLogEntry(nil), s.xpEntries...)
}

// WorkoutRepository

func (s *Store) Workout(_ context.Context, workoutID string) (*domain.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workouts[workoutID]; ok {
		copied := w
		return &copied, nil
	}
	return nil, nil
}

func (s *Store) SetsByIDs(_ context.Context, setIDs []string) ([]domain.WorkoutSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkoutSet, 0, len(setIDs))
	for _, id := range setIDs {
		if set, ok := s.sets[id]; ok && !set.Deleted {
			out = append(out, set)
		}
	}
	return out, nil
}

func (s *Store) SetsByWorkout(_ context.Context, workoutID string) ([]domain.WorkoutSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkoutSet, 0)
	for _, set := range s.sets {
		if set.WorkoutID == workoutID && !set.Deleted {
			out = append(out, set)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) HistoricalSets(_ context.Context, userID, exerciseID, excludeWorkoutID string, limit int) ([]domain.WorkoutSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkoutSet, 0)
	for _, set := range s.sets {
		if set.Deleted || set.ExerciseID != exerciseID || set.WorkoutID == excludeWorkoutID {
			continue
		}
		workout, ok := s.workouts[set.WorkoutID]
		if !ok || workout.Deleted || workout.UserID != userID {
			continue
		}
		out = append(out, set)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeightKg > out[j].WeightKg })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSetPR(_ context.Context, setID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[setID]
	if !ok {
		return domain.ErrSetNotFound
	}
	set.IsPR = true
	s.sets[setID] = set
	return nil
}

func (s *Store) WorkoutsInRange(_ context.Context, userID string, from, to time.Time) ([]domain.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Workout, 0)
	for _, w := range s.workouts {
		if w.Deleted || w.UserID != userID {
			continue
		}
		if !w.StartedAt.Before(from) && w.StartedAt.Before(to) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) FinishedWorkoutCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, w := range s.workouts {
		if !w.Deleted && w.UserID == userID && w.Finished() {
			count++
		}
	}
	return count, nil
}

func (s *Store) LastFinishedWorkoutEnd(_ context.Context, userID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, w := range s.workouts {
		if w.Deleted || w.UserID != userID || !w.Finished() {
			continue
		}
		if last == nil || w.EndedAt.After(*last) {
			ended := *w.EndedAt
			last = &ended
		}
	}
	return last, nil
}

func (s *Store) PRSetCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, set := range s.sets {
		if set.Deleted || !set.IsPR {
			continue
		}
		if w, ok := s.workouts[set.WorkoutID]; ok && w.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *Store) MuscleGroupSetCount(_ context.Context, userID, muscleGroup string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, set := range s.sets {
		if set.Deleted || set.MuscleGroup != muscleGroup {
			continue
		}
		if w, ok := s.workouts[set.WorkoutID]; ok && w.UserID == userID {
			count++
		}
	}
	return count, nil
}

// LedgerRepository

func (s *Store) AppendXP(_ context.Context, entry domain.XpLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.xpEntries {
		if existing.UserID == entry.UserID && existing.Source == entry.Source && existing.SourceID == entry.SourceID {
			return nil
		}
	}
	s.xpEntries = append(s.xpEntries, entry)
	return nil
}

func (s *Store) XPEntriesForSources(_ context.Context, userID string, source domain.XpSource, sourceIDs []string) (map[string]domain.XpLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]domain.XpLogEntry)
	for _, entry := range s.xpEntries {
		if entry.UserID != userID || entry.Source != source {
			continue
		}
		if _, ok := wanted[entry.SourceID]; ok {
			out[entry.SourceID] = entry
		}
	}
	return out, nil
}

func (s *Store) XPTotalSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, entry := range s.xpEntries {
		if entry.UserID == userID && !entry.CreatedAt.Before(since) {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *Store) XPTotal(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, entry := range s.xpEntries {
		if entry.UserID == userID {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *Store) LevelCache(_ context.Context, userID string) (*domain.UserLevelCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cache, ok := s.levelCaches[userID]; ok {
		copied := cache
		return &copied, nil
	}
	return nil, nil
}

func (s *Store) UpsertLevelCache(_ context.Context, cache domain.UserLevelCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levelCaches[cache.UserID] = cache
	return nil
}

// ActivityWeekRepository

func weekKey(userID, weekStart string) string {
	return userID + "|" + weekStart
}

func (s *Store) ActivityWeek(_ context.Context, userID, weekStart string) (*domain.UserActivityWeek, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if week, ok := s.activityWeeks[weekKey(userID, weekStart)]; ok {
		copied := week
		return &copied, nil
	}
	return nil, nil
}

func (s *Store) UpsertActivityWeek(_ context.Context, week domain.UserActivityWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityWeeks[weekKey(week.UserID, week.WeekStart)] = week
	return nil
}

func (s *Store) MaxWeeklyWorkouts(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := 0
	for _, week := range s.activityWeeks {
		if week.UserID == userID && week.WorkoutsCompleted > best {
			best = week.WorkoutsCompleted
		}
	}
	return best, nil
}

func (s *Store) TotalVolume(_ context.Context, userID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, week := range s.activityWeeks {
		if week.UserID == userID {
			total += week.TotalVolume
		}
	}
	return total, nil
}

func (s *Store) ActiveStreak(_ context.Context, userID, streakType string) (*domain.UserStreakLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.streaks {
		streak := s.streaks[i]
		if streak.UserID == userID && streak.StreakType == streakType && streak.Active {
			copied := streak
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertStreak(_ context.Context, streak domain.UserStreakLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks = append(s.streaks, streak)
	return nil
}

func (s *Store) UpdateStreak(_ context.Context, streak domain.UserStreakLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.streaks {
		if s.streaks[i].ID == streak.ID {
			s.streaks[i] = streak
			return nil
		}
	}
	return nil
}

func (s *Store) DeactivateStreak(_ context.Context, streakID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.streaks {
		if s.streaks[i].ID == streakID {
			s.streaks[i].Active = false
			return nil
		}
	}
	return nil
}

// BadgeRepository

func (s *Store) Achievements(_ context.Context) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Achievement(nil), s.achievements...), nil
}

func (s *Store) BadgesByUser(_ context.Context, userID string) ([]domain.UserBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserBadge, 0)
	for _, badge := range s.badges {
		if badge.UserID == userID {
			out = append(out, badge)
		}
	}
	return out, nil
}

func (s *Store) InsertBadge(_ context.Context, badge domain.UserBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.badges {
		if existing.UserID == badge.UserID && existing.AchievementCode == badge.AchievementCode && !existing.Deleted {
			return nil
		}
	}
	s.badges = append(s.badges, badge)
	return nil
}

func (s *Store) SetBadgeRust(_ context.Context, userID, achievementCode string, rusty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.badges {
		if s.badges[i].UserID == userID && s.badges[i].AchievementCode == achievementCode && !s.badges[i].Deleted {
			s.badges[i].IsRusty = rusty
			return nil
		}
	}
	return domain.ErrBadgeNotFound
}

func (s *Store) PolishBadge(_ context.Context, userID, achievementCode string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.badges {
		if s.badges[i].UserID == userID && s.badges[i].AchievementCode == achievementCode && !s.badges[i].Deleted {
			s.badges[i].IsRusty = false
			s.badges[i].LastMaintainedAt = at
			return true, nil
		}
	}
	return false, nil
}

// NotificationRepository

func (s *Store) InsertNotification(_ context.Context, notification domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Notification, *domain.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if cursor != nil {
			if n.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if n.CreatedAt.Equal(cursor.CreatedAt) && n.ID >= cursor.ID {
				continue
			}
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	var next *domain.Cursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return out, next, nil
}

var _ domain.Store = (*Store)(nil)
