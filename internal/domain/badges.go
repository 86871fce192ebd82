package domain

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// BadgeEvaluator decides whether a user currently qualifies for an
// achievement. Evaluators must be re-entrant and independent of each
// other so evaluation order never changes the granted set.
type BadgeEvaluator func(ctx context.Context, store Store, userID string, achievement Achievement) (bool, error)

// EvaluatorRegistry resolves achievements to evaluators by exact code
// first, then longest matching code prefix, then a fallback for shaped
// achievements (e.g. muscle-group filters). New badge types are added by
// registering an evaluator, not by growing a conditional.
type EvaluatorRegistry struct {
	exact    map[string]BadgeEvaluator
	prefixes []prefixEvaluator
	fallback BadgeEvaluator
}

type prefixEvaluator struct {
	prefix string
	eval   BadgeEvaluator
}

// NewEvaluatorRegistry returns an empty registry.
func NewEvaluatorRegistry() *EvaluatorRegistry {
	return &EvaluatorRegistry{exact: make(map[string]BadgeEvaluator)}
}

// RegisterCode binds an evaluator to one exact achievement code.
func (r *EvaluatorRegistry) RegisterCode(code string, eval BadgeEvaluator) {
	r.exact[code] = eval
}

// RegisterPrefix binds an evaluator to every code sharing a prefix.
func (r *EvaluatorRegistry) RegisterPrefix(prefix string, eval BadgeEvaluator) {
	r.prefixes = append(r.prefixes, prefixEvaluator{prefix: prefix, eval: eval})
}

// RegisterFallback handles achievements no code pattern claimed.
func (r *EvaluatorRegistry) RegisterFallback(eval BadgeEvaluator) {
	r.fallback = eval
}

// Resolve returns the evaluator for an achievement, or nil when the
// achievement cannot be evaluated.
func (r *EvaluatorRegistry) Resolve(achievement Achievement) BadgeEvaluator {
	if eval, ok := r.exact[achievement.Code]; ok {
		return eval
	}
	var best BadgeEvaluator
	bestLen := -1
	for _, entry := range r.prefixes {
		if strings.HasPrefix(achievement.Code, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.eval
			bestLen = len(entry.prefix)
		}
	}
	if best != nil {
		return best
	}
	return r.fallback
}

// DefaultEvaluatorRegistry wires the production badge predicates.
func DefaultEvaluatorRegistry(policy Policy) *EvaluatorRegistry {
	registry := NewEvaluatorRegistry()

	workoutCount := func(minimum func(Achievement) int) BadgeEvaluator {
		return func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
			count, err := store.FinishedWorkoutCount(ctx, userID)
			if err != nil {
				return false, err
			}
			return count >= minimum(a), nil
		}
	}
	prCount := func(minimum func(Achievement) int) BadgeEvaluator {
		return func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
			count, err := store.PRSetCount(ctx, userID)
			if err != nil {
				return false, err
			}
			return count >= minimum(a), nil
		}
	}
	one := func(Achievement) int { return 1 }
	threshold := func(a Achievement) int { return a.Threshold }

	registry.RegisterCode("FIRST_WORKOUT", workoutCount(one))
	registry.RegisterPrefix("WORKOUT_", workoutCount(threshold))
	registry.RegisterCode("FIRST_PR", prCount(one))
	registry.RegisterPrefix("PR_COUNT_", prCount(threshold))

	registry.RegisterPrefix("LEVEL_", func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
		cache, err := store.LevelCache(ctx, userID)
		if err != nil {
			return false, err
		}
		if cache == nil {
			return false, nil
		}
		return cache.Level >= a.Threshold, nil
	})

	registry.RegisterPrefix("PERFECT_WEEK_", func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
		best, err := store.MaxWeeklyWorkouts(ctx, userID)
		if err != nil {
			return false, err
		}
		minimum := a.Threshold
		if minimum == 0 {
			// Fall back to the numeric code suffix (PERFECT_WEEK_5).
			if parsed, err := strconv.Atoi(strings.TrimPrefix(a.Code, "PERFECT_WEEK_")); err == nil {
				minimum = parsed
			}
		}
		return minimum > 0 && best >= minimum, nil
	})

	registry.RegisterPrefix("VOLUME_", func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
		total, err := store.TotalVolume(ctx, userID)
		if err != nil {
			return false, err
		}
		return a.Threshold > 0 && total >= float64(a.Threshold), nil
	})

	registry.RegisterFallback(func(ctx context.Context, store Store, userID string, a Achievement) (bool, error) {
		if a.MuscleGroup == "" {
			return false, nil
		}
		count, err := store.MuscleGroupSetCount(ctx, userID, a.MuscleGroup)
		if err != nil {
			return false, err
		}
		minimum := a.Threshold
		if minimum == 0 {
			minimum = policy.MuscleGroupDefaultThreshold
		}
		return count >= minimum, nil
	})

	return registry
}

// EarnedBadge is the grant view returned to callers.
type EarnedBadge struct {
	Code        string
	Title       string
	Description string
	EarnedAt    time.Time
}

// BadgeService grants achievements whose predicate newly holds.
type BadgeService struct {
	store    Store
	registry *EvaluatorRegistry
	logger   *log.Logger
	now      func() time.Time
}

// NewBadgeService constructs a BadgeService.
func NewBadgeService(store Store, registry *EvaluatorRegistry, logger *log.Logger) *BadgeService {
	if logger == nil {
		logger = log.Default()
	}
	return &BadgeService{store: store, registry: registry, logger: logger, now: time.Now}
}

// UnlockBadges evaluates every achievement the user has not yet earned
// and grants the qualifying ones. Repeat calls with no new activity
// return an empty list. One evaluator failing is logged and skipped; the
// rest still run.
func (s *BadgeService) UnlockBadges(ctx context.Context, userID string) (newBadges []EarnedBadge, badgeCount int, err error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		earned, count, err := s.unlock(ctx, store, userID)
		if err != nil {
			return err
		}
		newBadges, badgeCount = earned, count
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return newBadges, badgeCount, nil
}

func (s *BadgeService) unlock(ctx context.Context, store Store, userID string) ([]EarnedBadge, int, error) {
	achievements, err := store.Achievements(ctx)
	if err != nil {
		return nil, 0, err
	}
	existing, err := store.BadgesByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	owned := make(map[string]struct{}, len(existing))
	ownedCount := 0
	for _, badge := range existing {
		if badge.Deleted {
			continue
		}
		owned[badge.AchievementCode] = struct{}{}
		ownedCount++
	}

	now := s.now().UTC()
	earned := make([]EarnedBadge, 0)
	for _, achievement := range achievements {
		if _, has := owned[achievement.Code]; has {
			continue
		}
		eval := s.registry.Resolve(achievement)
		if eval == nil {
			continue
		}
		qualifies, err := eval(ctx, store, userID, achievement)
		if err != nil {
			s.logger.Printf("badge unlock: evaluator failed (code=%s, user=%s): %v", achievement.Code, userID, err)
			continue
		}
		if !qualifies {
			continue
		}

		if err := store.InsertBadge(ctx, UserBadge{
			ID:               newID(),
			UserID:           userID,
			AchievementCode:  achievement.Code,
			EarnedAt:         now,
			IsRusty:          false,
			LastMaintainedAt: now,
		}); err != nil {
			return nil, 0, err
		}
		if err := store.InsertNotification(ctx, Notification{
			ID:     newID(),
			UserID: userID,
			Type:   NotificationAchievement,
			Title:  achievement.Title,
			Body:   achievement.Description,
			Metadata: map[string]string{
				"code":      achievement.Code,
				"earned_at": now.Format(time.RFC3339),
			},
			CreatedAt: now,
		}); err != nil {
			return nil, 0, err
		}

		earned = append(earned, EarnedBadge{
			Code:        achievement.Code,
			Title:       achievement.Title,
			Description: achievement.Description,
			EarnedAt:    now,
		})
		ownedCount++
	}

	return earned, ownedCount, nil
}
