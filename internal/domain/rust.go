package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RustUpdate records one badge's rust transition.
type RustUpdate struct {
	BadgeCode         string
	WasRusty          bool
	IsNowRusty        bool
	DaysSinceActivity int
}

// RustResult reports the outcome of one rust check.
type RustResult struct {
	Updates     []RustUpdate
	NewlyRusted []string
	Polished    []string
}

// RustService decays badges after prolonged inactivity and restores them
// when activity resumes. Thresholds come from the injected policy.
type RustService struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewRustService constructs a RustService.
func NewRustService(store Store, policy Policy) *RustService {
	return &RustService{store: store, policy: policy, now: time.Now}
}

// CheckRust reconciles every badge's rusty flag against days since the
// badge's last maintaining activity. At most one aggregate notification
// is created per direction regardless of how many badges flipped.
func (s *RustService) CheckRust(ctx context.Context, userID string) (*RustResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var result *RustResult
	err := s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		checked, err := s.check(ctx, store, userID)
		if err != nil {
			return err
		}
		result = checked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RustService) check(ctx context.Context, store Store, userID string) (*RustResult, error) {
	badges, err := store.BadgesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var lastWorkoutEnd *time.Time
	lastWorkoutFetched := false

	result := &RustResult{
		Updates:     make([]RustUpdate, 0),
		NewlyRusted: make([]string, 0),
		Polished:    make([]string, 0),
	}

	for _, badge := range badges {
		if badge.Deleted {
			continue
		}
		threshold, rustable := s.policy.RustThresholdDays(badge.AchievementCode)
		if !rustable {
			continue
		}

		lastActivity := badge.LastMaintainedAt
		if lastActivity.IsZero() {
			if !lastWorkoutFetched {
				lastWorkoutEnd, err = store.LastFinishedWorkoutEnd(ctx, userID)
				if err != nil {
					return nil, err
				}
				lastWorkoutFetched = true
			}
			if lastWorkoutEnd == nil {
				// No activity reference at all; cannot evaluate.
				continue
			}
			lastActivity = *lastWorkoutEnd
		}

		days := int(now.Sub(lastActivity).Hours() / 24)
		shouldRust := days > threshold
		if shouldRust == badge.IsRusty {
			continue
		}

		if err := store.SetBadgeRust(ctx, userID, badge.AchievementCode, shouldRust); err != nil {
			return nil, err
		}
		result.Updates = append(result.Updates, RustUpdate{
			BadgeCode:         badge.AchievementCode,
			WasRusty:          badge.IsRusty,
			IsNowRusty:        shouldRust,
			DaysSinceActivity: days,
		})
		if shouldRust {
			result.NewlyRusted = append(result.NewlyRusted, badge.AchievementCode)
		} else {
			result.Polished = append(result.Polished, badge.AchievementCode)
		}
	}

	if len(result.NewlyRusted) > 0 {
		if err := store.InsertNotification(ctx, Notification{
			ID:     newID(),
			UserID: userID,
			Type:   NotificationBadgeRusty,
			Title:  "Some badges are getting rusty",
			Body:   fmt.Sprintf("%d badge(s) rusted from inactivity: %s", len(result.NewlyRusted), strings.Join(result.NewlyRusted, ", ")),
			Metadata: map[string]string{
				"codes": strings.Join(result.NewlyRusted, ","),
			},
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	if len(result.Polished) > 0 {
		if err := store.InsertNotification(ctx, Notification{
			ID:     newID(),
			UserID: userID,
			Type:   NotificationBadgePolished,
			Title:  "Badges polished",
			Body:   fmt.Sprintf("%d badge(s) shined up again: %s", len(result.Polished), strings.Join(result.Polished, ", ")),
			Metadata: map[string]string{
				"codes": strings.Join(result.Polished, ","),
			},
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Polish unconditionally clears rust and refreshes the maintenance
// timestamp for one badge. Invoked by whatever activity maintains the
// badge; it is the only proactive rust reset outside CheckRust itself.
func (s *RustService) Polish(ctx context.Context, userID, achievementCode string) error {
	if userID == "" || achievementCode == "" {
		return fmt.Errorf("%w: user id and achievement code are required", ErrInvalidInput)
	}
	return s.store.WithUserLock(ctx, userID, func(ctx context.Context, store Store) error {
		found, err := store.PolishBadge(ctx, userID, achievementCode, s.now().UTC())
		if err != nil {
			return err
		}
		if !found {
			return ErrBadgeNotFound
		}
		return nil
	})
}
