package domain

import "strings"

// StreakCategory is one weekly-workout streak bucket.
type StreakCategory struct {
	Type        string
	MinWorkouts int
}

// Policy carries every tunable the engine consults: XP amounts and caps,
// streak categories, perfect-week thresholds, and the rust table. It is
// an immutable value injected into each service so tests can substitute
// alternate policies.
type Policy struct {
	XPPerSet       int
	XPWorkoutBonus int
	DailyXPCap     int
	WorkoutXPCap   int

	StreakCategories      []StreakCategory
	PerfectWeekThresholds map[string]int

	// PRHistoryLimit bounds the historical lookup to the N heaviest
	// recent sets per exercise.
	PRHistoryLimit int

	// MuscleGroupDefaultThreshold applies to muscle-group achievements
	// whose definition omits a threshold.
	MuscleGroupDefaultThreshold int

	// RustDaysByCode maps an exact achievement code or a code prefix to
	// a rust threshold in days. RustExemptPrefixes never rust at all.
	RustDaysByCode     map[string]int
	RustExemptPrefixes []string
	DefaultRustDays    int
}

// DefaultPolicy returns the production policy values.
func DefaultPolicy() Policy {
	return Policy{
		XPPerSet:       10,
		XPWorkoutBonus: 50,
		DailyXPCap:     500,
		WorkoutXPCap:   200,
		StreakCategories: []StreakCategory{
			{Type: "WEEKLY_1", MinWorkouts: 1},
			{Type: "WEEKLY_3", MinWorkouts: 3},
			{Type: "WEEKLY_4", MinWorkouts: 4},
			{Type: "WEEKLY_5", MinWorkouts: 5},
		},
		PerfectWeekThresholds: map[string]int{
			"PERFECT_WEEK_5": 5,
			"PERFECT_WEEK_6": 6,
		},
		PRHistoryLimit:              100,
		MuscleGroupDefaultThreshold: 10,
		RustDaysByCode: map[string]int{
			"FIRST_WORKOUT": 14,
			"WORKOUT_":      14,
			"FIRST_PR":      21,
			"PR_COUNT_":     21,
			"LEVEL_":        30,
		},
		RustExemptPrefixes: []string{"PERFECT_WEEK_", "VOLUME_"},
		DefaultRustDays:    30,
	}
}

// RustThresholdDays resolves the rust threshold for an achievement code.
// Exempt codes return ok=false and never rust. Exact matches win over
// prefix matches; unmapped codes fall back to DefaultRustDays.
func (p Policy) RustThresholdDays(code string) (days int, ok bool) {
	for _, prefix := range p.RustExemptPrefixes {
		if strings.HasPrefix(code, prefix) {
			return 0, false
		}
	}
	if days, found := p.RustDaysByCode[code]; found {
		return days, true
	}
	for key, days := range p.RustDaysByCode {
		if strings.HasSuffix(key, "_") && strings.HasPrefix(code, key) {
			return days, true
		}
	}
	return p.DefaultRustDays, true
}
