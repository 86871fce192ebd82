// Package postgres implements domain.Store against PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafizuaf/spotter-sub000/internal/domain"
	platformevents "github.com/rafizuaf/spotter-sub000/internal/platform/events"
)

// dbtx is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, letting
// the same repository code run inside or outside a user-lock transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides Postgres-backed persistence for the gamification
// engine, staging outbox events alongside badge and notification writes.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository over the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithUserLock runs fn inside one transaction holding the user's
// advisory lock. Concurrent engine calls for the same user serialize
// here, which keeps the ledger idempotency check, streak continuation,
// and badge inserts race-free.
func (r *Repository) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store domain.Store) error) error {
	if r.pool == nil {
		// Already inside a locked transaction.
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return err
	}

	if err := fn(ctx, &Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Workout(ctx context.Context, workoutID string) (*domain.Workout, error) {
	const query = `SELECT workout_id, user_id, started_at, ended_at, timezone, deleted, created_at, updated_at
        FROM workouts WHERE workout_id = $1`

	var w domain.Workout
	err := r.db.QueryRow(ctx, query, workoutID).
		Scan(&w.ID, &w.UserID, &w.StartedAt, &w.EndedAt, &w.Timezone, &w.Deleted, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

const setColumns = `set_id, workout_id, exercise_id, muscle_group, weight_kg, reps, is_pr, deleted, created_at`

func scanSets(rows pgx.Rows) ([]domain.WorkoutSet, error) {
	defer rows.Close()
	sets := make([]domain.WorkoutSet, 0)
	for rows.Next() {
		var s domain.WorkoutSet
		if err := rows.Scan(&s.ID, &s.WorkoutID, &s.ExerciseID, &s.MuscleGroup, &s.WeightKg, &s.Reps, &s.IsPR, &s.Deleted, &s.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}

func (r *Repository) SetsByIDs(ctx context.Context, setIDs []string) ([]domain.WorkoutSet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+setColumns+` FROM workout_sets WHERE set_id = ANY($1) AND NOT deleted ORDER BY created_at, set_id`,
		setIDs,
	)
	if err != nil {
		return nil, err
	}
	return scanSets(rows)
}

func (r *Repository) SetsByWorkout(ctx context.Context, workoutID string) ([]domain.WorkoutSet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+setColumns+` FROM workout_sets WHERE workout_id = $1 AND NOT deleted ORDER BY created_at, set_id`,
		workoutID,
	)
	if err != nil {
		return nil, err
	}
	return scanSets(rows)
}

func (r *Repository) HistoricalSets(ctx context.Context, userID, exerciseID, excludeWorkoutID string, limit int) ([]domain.WorkoutSet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.set_id, s.workout_id, s.exercise_id, s.muscle_group, s.weight_kg, s.reps, s.is_pr, s.deleted, s.created_at
           FROM workout_sets s
           JOIN workouts w ON w.workout_id = s.workout_id
          WHERE w.user_id = $1 AND s.exercise_id = $2 AND s.workout_id <> $3
            AND NOT s.deleted AND NOT w.deleted
          ORDER BY s.weight_kg DESC
          LIMIT $4`,
		userID, exerciseID, excludeWorkoutID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSets(rows)
}

func (r *Repository) MarkSetPR(ctx context.Context, setID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE workout_sets SET is_pr = TRUE WHERE set_id = $1`, setID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSetNotFound
	}
	return nil
}

func (r *Repository) WorkoutsInRange(ctx context.Context, userID string, from, to time.Time) ([]domain.Workout, error) {
	rows, err := r.db.Query(ctx,
		`SELECT workout_id, user_id, started_at, ended_at, timezone, deleted, created_at, updated_at
           FROM workouts
          WHERE user_id = $1 AND started_at >= $2 AND started_at < $3 AND NOT deleted
          ORDER BY started_at`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := make([]domain.Workout, 0)
	for rows.Next() {
		var w domain.Workout
		if err := rows.Scan(&w.ID, &w.UserID, &w.StartedAt, &w.EndedAt, &w.Timezone, &w.Deleted, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

func (r *Repository) FinishedWorkoutCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM workouts WHERE user_id = $1 AND ended_at IS NOT NULL AND NOT deleted`,
		userID,
	).Scan(&count)
	return count, err
}

func (r *Repository) LastFinishedWorkoutEnd(ctx context.Context, userID string) (*time.Time, error) {
	var ended *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(ended_at) FROM workouts WHERE user_id = $1 AND ended_at IS NOT NULL AND NOT deleted`,
		userID,
	).Scan(&ended)
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func (r *Repository) PRSetCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
           FROM workout_sets s
           JOIN workouts w ON w.workout_id = s.workout_id
          WHERE w.user_id = $1 AND s.is_pr AND NOT s.deleted AND NOT w.deleted`,
		userID,
	).Scan(&count)
	return count, err
}

func (r *Repository) MuscleGroupSetCount(ctx context.Context, userID, muscleGroup string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
           FROM workout_sets s
           JOIN workouts w ON w.workout_id = s.workout_id
          WHERE w.user_id = $1 AND s.muscle_group = $2 AND NOT s.deleted AND NOT w.deleted`,
		userID, muscleGroup,
	).Scan(&count)
	return count, err
}

// AppendXP inserts a ledger entry. ON CONFLICT keeps the
// (user, source, source_id) idempotency key a hard guarantee even if a
// caller races past the service-level check.
func (r *Repository) AppendXP(ctx context.Context, entry domain.XpLogEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO xp_log (entry_id, user_id, source_type, source_id, amount, created_at)
         VALUES ($1,$2,$3,$4,$5,$6)
         ON CONFLICT (user_id, source_type, source_id) DO NOTHING`,
		entry.ID, entry.UserID, string(entry.Source), entry.SourceID, entry.Amount, entry.CreatedAt,
	)
	return err
}

func (r *Repository) XPEntriesForSources(ctx context.Context, userID string, source domain.XpSource, sourceIDs []string) (map[string]domain.XpLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT entry_id, user_id, source_type, source_id, amount, created_at
           FROM xp_log
          WHERE user_id = $1 AND source_type = $2 AND source_id = ANY($3)`,
		userID, string(source), sourceIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.XpLogEntry)
	for rows.Next() {
		var entry domain.XpLogEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Source, &entry.SourceID, &entry.Amount, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out[entry.SourceID] = entry
	}
	return out, rows.Err()
}

func (r *Repository) XPTotalSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_log WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&total)
	return total, err
}

func (r *Repository) XPTotal(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_log WHERE user_id = $1`,
		userID,
	).Scan(&total)
	return total, err
}

func (r *Repository) LevelCache(ctx context.Context, userID string) (*domain.UserLevelCache, error) {
	var cache domain.UserLevelCache
	err := r.db.QueryRow(ctx,
		`SELECT user_id, total_xp, level, xp_to_next_level, updated_at FROM user_level_cache WHERE user_id = $1`,
		userID,
	).Scan(&cache.UserID, &cache.TotalXP, &cache.Level, &cache.XPToNextLevel, &cache.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cache, nil
}

func (r *Repository) UpsertLevelCache(ctx context.Context, cache domain.UserLevelCache) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_level_cache (user_id, total_xp, level, xp_to_next_level, updated_at)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (user_id) DO UPDATE
            SET total_xp = EXCLUDED.total_xp,
                level = EXCLUDED.level,
                xp_to_next_level = EXCLUDED.xp_to_next_level,
                updated_at = EXCLUDED.updated_at`,
		cache.UserID, cache.TotalXP, cache.Level, cache.XPToNextLevel, cache.UpdatedAt,
	)
	return err
}

func (r *Repository) ActivityWeek(ctx context.Context, userID, weekStart string) (*domain.UserActivityWeek, error) {
	var week domain.UserActivityWeek
	err := r.db.QueryRow(ctx,
		`SELECT week_id, user_id, week_start, active_days, workouts_completed, total_sets, total_volume, updated_at
           FROM user_activity_weeks WHERE user_id = $1 AND week_start = $2`,
		userID, weekStart,
	).Scan(&week.ID, &week.UserID, &week.WeekStart, &week.ActiveDays, &week.WorkoutsCompleted, &week.TotalSets, &week.TotalVolume, &week.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &week, nil
}

func (r *Repository) UpsertActivityWeek(ctx context.Context, week domain.UserActivityWeek) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_activity_weeks (week_id, user_id, week_start, active_days, workouts_completed, total_sets, total_volume, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (user_id, week_start) DO UPDATE
            SET active_days = EXCLUDED.active_days,
                workouts_completed = EXCLUDED.workouts_completed,
                total_sets = EXCLUDED.total_sets,
                total_volume = EXCLUDED.total_volume,
                updated_at = EXCLUDED.updated_at`,
		week.ID, week.UserID, week.WeekStart, week.ActiveDays, week.WorkoutsCompleted, week.TotalSets, week.TotalVolume, week.UpdatedAt,
	)
	return err
}

func (r *Repository) MaxWeeklyWorkouts(ctx context.Context, userID string) (int, error) {
	var best int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(workouts_completed), 0) FROM user_activity_weeks WHERE user_id = $1`,
		userID,
	).Scan(&best)
	return best, err
}

func (r *Repository) TotalVolume(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_volume), 0) FROM user_activity_weeks WHERE user_id = $1`,
		userID,
	).Scan(&total)
	return total, err
}

func (r *Repository) ActiveStreak(ctx context.Context, userID, streakType string) (*domain.UserStreakLog, error) {
	var streak domain.UserStreakLog
	err := r.db.QueryRow(ctx,
		`SELECT streak_id, user_id, streak_type, length, week_ended, is_active, created_at, updated_at
           FROM user_streak_log
          WHERE user_id = $1 AND streak_type = $2 AND is_active
          ORDER BY created_at DESC
          LIMIT 1`,
		userID, streakType,
	).Scan(&streak.ID, &streak.UserID, &streak.StreakType, &streak.Length, &streak.WeekEnded, &streak.Active, &streak.CreatedAt, &streak.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &streak, nil
}

func (r *Repository) InsertStreak(ctx context.Context, streak domain.UserStreakLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_streak_log (streak_id, user_id, streak_type, length, week_ended, is_active, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		streak.ID, streak.UserID, streak.StreakType, streak.Length, streak.WeekEnded, streak.Active, streak.CreatedAt, streak.UpdatedAt,
	)
	return err
}

func (r *Repository) UpdateStreak(ctx context.Context, streak domain.UserStreakLog) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_streak_log SET length = $1, week_ended = $2, is_active = $3, updated_at = $4 WHERE streak_id = $5`,
		streak.Length, streak.WeekEnded, streak.Active, streak.UpdatedAt, streak.ID,
	)
	return err
}

func (r *Repository) DeactivateStreak(ctx context.Context, streakID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_streak_log SET is_active = FALSE, updated_at = NOW() WHERE streak_id = $1`,
		streakID,
	)
	return err
}

func (r *Repository) Achievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.db.Query(ctx, `SELECT code, title, description, threshold, muscle_group FROM achievements ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	achievements := make([]domain.Achievement, 0)
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.Code, &a.Title, &a.Description, &a.Threshold, &a.MuscleGroup); err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

func (r *Repository) BadgesByUser(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := r.db.Query(ctx,
		`SELECT badge_id, user_id, achievement_code, earned_at, is_rusty, last_maintained_at, deleted
           FROM user_badges WHERE user_id = $1 ORDER BY earned_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	badges := make([]domain.UserBadge, 0)
	for rows.Next() {
		var b domain.UserBadge
		var maintained *time.Time
		if err := rows.Scan(&b.ID, &b.UserID, &b.AchievementCode, &b.EarnedAt, &b.IsRusty, &maintained, &b.Deleted); err != nil {
			return nil, err
		}
		if maintained != nil {
			b.LastMaintainedAt = *maintained
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// InsertBadge grants a badge and stages a badge.earned outbox event in
// the same transaction. Re-earning is a no-op and stages nothing.
func (r *Repository) InsertBadge(ctx context.Context, badge domain.UserBadge) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO user_badges (badge_id, user_id, achievement_code, earned_at, is_rusty, last_maintained_at, deleted)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (user_id, achievement_code) DO NOTHING`,
		badge.ID, badge.UserID, badge.AchievementCode, badge.EarnedAt, badge.IsRusty, nullIfZeroTime(badge.LastMaintainedAt), badge.Deleted,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	return r.insertOutbox(ctx, "badge", badge.ID, "badge.earned", badge.UserID, platformevents.BadgeEarned{
		UserID:   badge.UserID,
		Code:     badge.AchievementCode,
		EarnedAt: badge.EarnedAt,
	})
}

func (r *Repository) SetBadgeRust(ctx context.Context, userID, achievementCode string, rusty bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_badges SET is_rusty = $1 WHERE user_id = $2 AND achievement_code = $3 AND NOT deleted`,
		rusty, userID, achievementCode,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBadgeNotFound
	}
	return nil
}

func (r *Repository) PolishBadge(ctx context.Context, userID, achievementCode string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_badges SET is_rusty = FALSE, last_maintained_at = $1 WHERE user_id = $2 AND achievement_code = $3 AND NOT deleted`,
		at, userID, achievementCode,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertNotification persists a notification and stages a
// notification.created outbox event in the same transaction.
func (r *Repository) InsertNotification(ctx context.Context, notification domain.Notification) error {
	metadata, err := json.Marshal(notification.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO notifications (notification_id, user_id, notification_type, title, body, metadata, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		notification.ID, notification.UserID, string(notification.Type), notification.Title, notification.Body, metadata, notification.CreatedAt,
	); err != nil {
		return err
	}

	return r.insertOutbox(ctx, "notification", notification.ID, "notification.created", notification.UserID, platformevents.NotificationCreated{
		NotificationID: notification.ID,
		UserID:         notification.UserID,
		Type:           string(notification.Type),
		Title:          notification.Title,
		Body:           notification.Body,
		Metadata:       notification.Metadata,
		CreatedAt:      notification.CreatedAt,
	})
}

func (r *Repository) ListNotifications(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Notification, *domain.Cursor, error) {
	args := []any{userID, limit}
	query := `SELECT notification_id, user_id, notification_type, title, body, metadata, created_at
        FROM notifications WHERE user_id = $1`
	if cursor != nil {
		query += ` AND (created_at, notification_id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, notification_id DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &metadata, &n.CreatedAt); err != nil {
			return nil, nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, nil, err
			}
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(notifications) == limit {
		last := notifications[len(notifications)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return notifications, next, nil
}

// EventMetadata describes how an outbox event is routed.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"badge.earned": {
		Topic:         "gamification_events",
		SchemaSubject: "gamification_events-value",
	},
	"notification.created": {
		Topic:         "notification_events",
		SchemaSubject: "notification_events-value",
	},
}

func (r *Repository) insertOutbox(ctx context.Context, aggregateType, aggregateID, eventType, partitionKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	_, err = r.db.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		aggregateType, aggregateID, eventType, meta.Topic, meta.SchemaSubject, partitionKey, body, dedupeKey,
	)
	return err
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ domain.Store = (*Repository)(nil)
