package domain

import (
	"context"
	"sort"
	"time"
)

// fakeStore is a minimal in-process Store for exercising the services.
type fakeStore struct {
	workouts      map[string]Workout
	sets          map[string]WorkoutSet
	xp            []XpLogEntry
	levels        map[string]UserLevelCache
	weeks         map[string]UserActivityWeek
	streaks       []*UserStreakLog
	achievements  []Achievement
	badges        []*UserBadge
	notifications []Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workouts: make(map[string]Workout),
		sets:     make(map[string]WorkoutSet),
		levels:   make(map[string]UserLevelCache),
		weeks:    make(map[string]UserActivityWeek),
	}
}

func (s *fakeStore) WithUserLock(ctx context.Context, _ string, fn func(ctx context.Context, store Store) error) error {
	return fn(ctx, s)
}

func (s *fakeStore) putWorkout(w Workout)   { s.workouts[w.ID] = w }
func (s *fakeStore) putSet(set WorkoutSet)  { s.sets[set.ID] = set }
func (s *fakeStore) seed(a ...Achievement)  { s.achievements = append(s.achievements, a...) }
func (s *fakeStore) putBadge(b UserBadge)   { s.badges = append(s.badges, &b) }
func (s *fakeStore) notificationCount() int { return len(s.notifications) }

func (s *fakeStore) notificationsOfType(t NotificationType) []Notification {
	out := make([]Notification, 0)
	for _, n := range s.notifications {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func (s *fakeStore) Workout(_ context.Context, workoutID string) (*Workout, error) {
	w, ok := s.workouts[workoutID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *fakeStore) SetsByIDs(_ context.Context, setIDs []string) ([]WorkoutSet, error) {
	out := make([]WorkoutSet, 0, len(setIDs))
	for _, id := range setIDs {
		if set, ok := s.sets[id]; ok && !set.Deleted {
			out = append(out, set)
		}
	}
	return out, nil
}

func (s *fakeStore) SetsByWorkout(_ context.Context, workoutID string) ([]WorkoutSet, error) {
	out := make([]WorkoutSet, 0)
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

func (s *fakeStore) HistoricalSets(_ context.Context, userID, exerciseID, excludeWorkoutID string, limit int) ([]WorkoutSet, error) {
	out := make([]WorkoutSet, 0)
	for _, set := range s.sets {
		if set.Deleted || set.ExerciseID != exerciseID || set.WorkoutID == excludeWorkoutID {
			continue
		}
		w, ok := s.workouts[set.WorkoutID]
		if !ok || w.Deleted || w.UserID != userID {
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

func (s *fakeStore) MarkSetPR(_ context.Context, setID string) error {
	set, ok := s.sets[setID]
	if !ok {
		return ErrSetNotFound
	}
	set.IsPR = true
	s.sets[setID] = set
	return nil
}

func (s *fakeStore) WorkoutsInRange(_ context.Context, userID string, from, to time.Time) ([]Workout, error) {
	out := make([]Workout, 0)
	for _, w := range s.workouts {
		if w.UserID != userID || w.Deleted {
			continue
		}
		if w.StartedAt.Before(from) || !w.StartedAt.Before(to) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *fakeStore) FinishedWorkoutCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, w := range s.workouts {
		if w.UserID == userID && !w.Deleted && w.Finished() {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) LastFinishedWorkoutEnd(_ context.Context, userID string) (*time.Time, error) {
	var last *time.Time
	for _, w := range s.workouts {
		if w.UserID != userID || w.Deleted || !w.Finished() {
			continue
		}
		if last == nil || w.EndedAt.After(*last) {
			ended := *w.EndedAt
			last = &ended
		}
	}
	return last, nil
}

func (s *fakeStore) PRSetCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, set := range s.sets {
		if set.Deleted || !set.IsPR {
			continue
		}
		w, ok := s.workouts[set.WorkoutID]
		if ok && !w.Deleted && w.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) MuscleGroupSetCount(_ context.Context, userID, muscleGroup string) (int, error) {
	count := 0
	for _, set := range s.sets {
		if set.Deleted || set.MuscleGroup != muscleGroup {
			continue
		}
		w, ok := s.workouts[set.WorkoutID]
		if ok && !w.Deleted && w.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) AppendXP(_ context.Context, entry XpLogEntry) error {
	for _, existing := range s.xp {
		if existing.UserID == entry.UserID && existing.Source == entry.Source && existing.SourceID == entry.SourceID {
			return nil
		}
	}
	s.xp = append(s.xp, entry)
	return nil
}

func (s *fakeStore) XPEntriesForSources(_ context.Context, userID string, source XpSource, sourceIDs []string) (map[string]XpLogEntry, error) {
	wanted := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]XpLogEntry)
	for _, entry := range s.xp {
		if entry.UserID != userID || entry.Source != source {
			continue
		}
		if _, ok := wanted[entry.SourceID]; ok {
			out[entry.SourceID] = entry
		}
	}
	return out, nil
}

func (s *fakeStore) XPTotalSince(_ context.Context, userID string, since time.Time) (int, error) {
	total := 0
	for _, entry := range s.xp {
		if entry.UserID == userID && !entry.CreatedAt.Before(since) {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *fakeStore) XPTotal(_ context.Context, userID string) (int, error) {
	total := 0
	for _, entry := range s.xp {
		if entry.UserID == userID {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *fakeStore) LevelCache(_ context.Context, userID string) (*UserLevelCache, error) {
	cache, ok := s.levels[userID]
	if !ok {
		return nil, nil
	}
	return &cache, nil
}

func (s *fakeStore) UpsertLevelCache(_ context.Context, cache UserLevelCache) error {
	s.levels[cache.UserID] = cache
	return nil
}

func (s *fakeStore) ActivityWeek(_ context.Context, userID, weekStart string) (*UserActivityWeek, error) {
	week, ok := s.weeks[userID+"|"+weekStart]
	if !ok {
		return nil, nil
	}
	return &week, nil
}

func (s *fakeStore) UpsertActivityWeek(_ context.Context, week UserActivityWeek) error {
	s.weeks[week.UserID+"|"+week.WeekStart] = week
	return nil
}

func (s *fakeStore) MaxWeeklyWorkouts(_ context.Context, userID string) (int, error) {
	best := 0
	for _, week := range s.weeks {
		if week.UserID == userID && week.WorkoutsCompleted > best {
			best = week.WorkoutsCompleted
		}
	}
	return best, nil
}

func (s *fakeStore) TotalVolume(_ context.Context, userID string) (float64, error) {
	total := 0.0
	for _, week := range s.weeks {
		if week.UserID == userID {
			total += week.TotalVolume
		}
	}
	return total, nil
}

func (s *fakeStore) ActiveStreak(_ context.Context, userID, streakType string) (*UserStreakLog, error) {
	for _, streak := range s.streaks {
		if streak.UserID == userID && streak.StreakType == streakType && streak.Active {
			copied := *streak
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertStreak(_ context.Context, streak UserStreakLog) error {
	s.streaks = append(s.streaks, &streak)
	return nil
}

func (s *fakeStore) UpdateStreak(_ context.Context, streak UserStreakLog) error {
	for _, existing := range s.streaks {
		if existing.ID == streak.ID {
			*existing = streak
			return nil
		}
	}
	return nil
}

func (s *fakeStore) DeactivateStreak(_ context.Context, streakID string) error {
	for _, existing := range s.streaks {
		if existing.ID == streakID {
			existing.Active = false
			return nil
		}
	}
	return nil
}

func (s *fakeStore) Achievements(_ context.Context) ([]Achievement, error) {
	return append([]Achievement(nil), s.achievements...), nil
}

func (s *fakeStore) BadgesByUser(_ context.Context, userID string) ([]UserBadge, error) {
	out := make([]UserBadge, 0)
	for _, badge := range s.badges {
		if badge.UserID == userID {
			out = append(out, *badge)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertBadge(_ context.Context, badge UserBadge) error {
	for _, existing := range s.badges {
		if existing.UserID == badge.UserID && existing.AchievementCode == badge.AchievementCode {
			return nil
		}
	}
	s.badges = append(s.badges, &badge)
	return nil
}

func (s *fakeStore) SetBadgeRust(_ context.Context, userID, achievementCode string, rusty bool) error {
	for _, badge := range s.badges {
		if badge.UserID == userID && badge.AchievementCode == achievementCode && !badge.Deleted {
			badge.IsRusty = rusty
			return nil
		}
	}
	return ErrBadgeNotFound
}

func (s *fakeStore) PolishBadge(_ context.Context, userID, achievementCode string, at time.Time) (bool, error) {
	for _, badge := range s.badges {
		if badge.UserID == userID && badge.AchievementCode == achievementCode && !badge.Deleted {
			badge.IsRusty = false
			badge.LastMaintainedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) InsertNotification(_ context.Context, notification Notification) error {
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *fakeStore) ListNotifications(_ context.Context, userID string, cursor *Cursor, limit int) ([]Notification, *Cursor, error) {
	out := make([]Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if cursor != nil {
		filtered := out[:0]
		for _, n := range out {
			if n.CreatedAt.Before(cursor.CreatedAt) {
				filtered = append(filtered, n)
			}
		}
		out = filtered
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	var next *Cursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return out, next, nil
}

var _ Store = (*fakeStore)(nil)

func finishedWorkout(userID, workoutID string, started time.Time, timezone string) Workout {
	ended := started.Add(time.Hour)
	return Workout{
		ID:        workoutID,
		UserID:    userID,
		StartedAt: started,
		EndedAt:   &ended,
		Timezone:  timezone,
		CreatedAt: started,
		UpdatedAt: ended,
	}
}

func benchSet(workoutID, setID string, weightKg float64, reps int, at time.Time) WorkoutSet {
	return WorkoutSet{
		ID:          setID,
		WorkoutID:   workoutID,
		ExerciseID:  "bench-press",
		MuscleGroup: "chest",
		WeightKg:    weightKg,
		Reps:        reps,
		CreatedAt:   at,
	}
}
