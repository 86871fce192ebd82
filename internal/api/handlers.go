// Package api exposes HTTP handlers for the gamification service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rafizuaf/spotter-sub000/internal/auth"
	"github.com/rafizuaf/spotter-sub000/internal/domain"
	"github.com/rafizuaf/spotter-sub000/internal/observability"
	"github.com/rafizuaf/spotter-sub000/internal/persistence"
)

// Handler coordinates HTTP requests with the gamification services.
type Handler struct {
	store    domain.Store
	xp       *domain.XPService
	prs      *domain.PRService
	weekly   *domain.WeeklyService
	badges   *domain.BadgeService
	rust     *domain.RustService
	pipeline *domain.Pipeline
}

// NewHandler builds a Handler.
func NewHandler(store domain.Store, xp *domain.XPService, prs *domain.PRService, weekly *domain.WeeklyService, badges *domain.BadgeService, rust *domain.RustService, pipeline *domain.Pipeline) *Handler {
	return &Handler{store: store, xp: xp, prs: prs, weekly: weekly, badges: badges, rust: rust, pipeline: pipeline}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/gamification/xp", h.awardXP)
	mux.HandleFunc("/v1/gamification/level", h.getLevel)
	mux.HandleFunc("/v1/gamification/prs", h.detectPRs)
	mux.HandleFunc("/v1/gamification/weekly", h.trackWeekly)
	mux.HandleFunc("/v1/gamification/badges", h.unlockBadges)
	mux.HandleFunc("/v1/gamification/rust", h.checkRust)
	mux.HandleFunc("/v1/gamification/polish", h.polishBadge)
	mux.HandleFunc("/v1/gamification/notifications", h.listNotifications)
	mux.HandleFunc("/v1/gamification/workouts/", h.workoutByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize checks the bearer claims against the target user. A caller
// may always act on itself; acting on another user requires the admin
// scope.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, userID, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) && !claims.HasScope(auth.ScopeGamificationAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	if userID != "" && claims.Subject != userID && !claims.HasScope(auth.ScopeGamificationAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "cannot act on another user")
		return nil, false
	}
	return claims, true
}

func (h *Handler) awardXP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req AwardXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if _, ok := h.authorize(w, r, req.UserID, auth.ScopeGamificationWrite); !ok {
		return
	}

	result, err := h.xp.AwardXP(r.Context(), req.UserID, req.SetIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AwardXPResponse{
		UserID:     req.UserID,
		XPAwarded:  result.XPAwarded,
		TodayTotal: result.TodayTotal,
	})
}

func (h *Handler) getLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}
	if _, ok := h.authorize(w, r, userID, auth.ScopeGamificationRead); !ok {
		return
	}

	cache, err := h.store.LevelCache(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if cache == nil {
		// No grants yet; derive from the (empty) ledger.
		total, err := h.store.XPTotal(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		level, toNext := domain.LevelFromTotalXP(total)
		cache = &domain.UserLevelCache{UserID: userID, TotalXP: total, Level: level, XPToNextLevel: toNext}
	}

	writeJSON(w, http.StatusOK, LevelResponse{
		UserID:        cache.UserID,
		TotalXP:       cache.TotalXP,
		Level:         cache.Level,
		XPToNextLevel: cache.XPToNextLevel,
	})
}

func (h *Handler) detectPRs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req WorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.WorkoutID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "workout_id is required")
		return
	}

	owner, ok := h.workoutOwner(w, r, req.WorkoutID)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, owner, auth.ScopeGamificationWrite); !ok {
		return
	}

	records, err := h.prs.DetectPRs(r.Context(), req.WorkoutID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]PersonalRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, toPersonalRecordView(rec))
	}
	writeJSON(w, http.StatusOK, DetectPRsResponse{WorkoutID: req.WorkoutID, Records: views, PRCount: len(views)})
}

func (h *Handler) trackWeekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req TrackWeeklyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if _, ok := h.authorize(w, r, req.UserID, auth.ScopeGamificationWrite); !ok {
		return
	}

	result, err := h.weekly.TrackWeeklyActivity(r.Context(), req.UserID, req.WorkoutID, req.Timezone)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeeklyView(result))
}

func (h *Handler) unlockBadges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	if _, ok := h.authorize(w, r, req.UserID, auth.ScopeGamificationWrite); !ok {
		return
	}

	earned, total, err := h.badges.UnlockBadges(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]EarnedBadgeView, 0, len(earned))
	for _, badge := range earned {
		views = append(views, EarnedBadgeView{
			Code:        badge.Code,
			Title:       badge.Title,
			Description: badge.Description,
			EarnedAt:    badge.EarnedAt,
		})
	}
	writeJSON(w, http.StatusOK, UnlockBadgesResponse{NewBadges: views, BadgeCount: total})
}

func (h *Handler) checkRust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	if _, ok := h.authorize(w, r, req.UserID, auth.ScopeGamificationWrite); !ok {
		return
	}

	result, err := h.rust.CheckRust(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for range result.NewlyRusted {
		observability.RecordRustTransition(true)
	}
	for range result.Polished {
		observability.RecordRustTransition(false)
	}

	updates := make([]RustUpdateView, 0, len(result.Updates))
	for _, u := range result.Updates {
		updates = append(updates, RustUpdateView{
			BadgeCode:         u.BadgeCode,
			WasRusty:          u.WasRusty,
			IsNowRusty:        u.IsNowRusty,
			DaysSinceActivity: u.DaysSinceActivity,
		})
	}
	writeJSON(w, http.StatusOK, CheckRustResponse{
		Updates:     updates,
		NewlyRusted: result.NewlyRusted,
		Polished:    result.Polished,
	})
}

func (h *Handler) polishBadge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req PolishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if _, ok := h.authorize(w, r, req.UserID, auth.ScopeGamificationWrite); !ok {
		return
	}

	if err := h.rust.Polish(r.Context(), req.UserID, req.AchievementCode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "polished"})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}
	if _, ok := h.authorize(w, r, userID, auth.ScopeGamificationRead); !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	notifications, next, err := h.store.ListNotifications(r.Context(), userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]NotificationView, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, NotificationView{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Type:           string(n.Type),
			Title:          n.Title,
			Body:           n.Body,
			Metadata:       n.Metadata,
			CreatedAt:      n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListNotificationsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) workoutByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/gamification/workouts/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" || action != "finish" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req FinishWorkoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	owner, ok := h.workoutOwner(w, r, id)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, owner, auth.ScopeGamificationWrite); !ok {
		return
	}

	result, err := h.pipeline.WorkoutFinished(r.Context(), id, req.Timezone)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPipelineView(id, result))
}

// workoutOwner resolves the workout's owning user for the authorization
// check. Writes the error response itself on failure.
func (h *Handler) workoutOwner(w http.ResponseWriter, r *http.Request, workoutID string) (string, bool) {
	workout, err := h.store.Workout(r.Context(), workoutID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return "", false
	}
	if workout == nil || workout.Deleted {
		writeError(w, http.StatusNotFound, "not_found", "workout not found")
		return "", false
	}
	return workout.UserID, true
}

// AwardXPRequest is the payload for POST /v1/gamification/xp.
type AwardXPRequest struct {
	UserID string   `json:"user_id"`
	SetIDs []string `json:"set_ids"`
}

// Validate ensures request correctness.
func (r AwardXPRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if len(r.SetIDs) == 0 {
		return errors.New("set_ids must not be empty")
	}
	for _, id := range r.SetIDs {
		if strings.TrimSpace(id) == "" {
			return errors.New("set_ids must not contain empty ids")
		}
	}
	return nil
}

// AwardXPResponse describes the response body for an XP grant.
type AwardXPResponse struct {
	UserID     string `json:"user_id"`
	XPAwarded  int    `json:"xp_awarded"`
	TodayTotal int    `json:"today_total"`
}

// LevelResponse exposes the level cache for a user.
type LevelResponse struct {
	UserID        string `json:"user_id"`
	TotalXP       int    `json:"total_xp"`
	Level         int    `json:"level"`
	XPToNextLevel int    `json:"xp_to_next_level"`
}

// WorkoutRequest targets an operation at one workout.
type WorkoutRequest struct {
	WorkoutID string `json:"workout_id"`
}

// PersonalRecordView exposes one detected record.
type PersonalRecordView struct {
	ExerciseID  string  `json:"exercise_id"`
	SetID       string  `json:"set_id"`
	NewPR       float64 `json:"new_pr"`
	PreviousPR  float64 `json:"previous_pr"`
	Improvement float64 `json:"improvement"`
}

// DetectPRsResponse packages PR detection results.
type DetectPRsResponse struct {
	WorkoutID string               `json:"workout_id"`
	Records   []PersonalRecordView `json:"records"`
	PRCount   int                  `json:"pr_count"`
}

// TrackWeeklyRequest is the payload for POST /v1/gamification/weekly.
type TrackWeeklyRequest struct {
	UserID    string `json:"user_id"`
	WorkoutID string `json:"workout_id"`
	Timezone  string `json:"timezone,omitempty"`
}

// Validate ensures request correctness.
func (r TrackWeeklyRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.WorkoutID) == "" {
		return errors.New("workout_id is required")
	}
	return nil
}

// WeeklyView reports weekly aggregates and streak state.
type WeeklyView struct {
	WeekStart         string         `json:"week_start"`
	ActiveDays        int            `json:"active_days"`
	WorkoutsCompleted int            `json:"workouts_completed"`
	TotalSets         int            `json:"total_sets"`
	TotalVolume       float64        `json:"total_volume"`
	Streaks           map[string]int `json:"streaks"`
	PerfectWeekCodes  []string       `json:"perfect_week_codes"`
}

// UserRequest targets an operation at one user.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// EarnedBadgeView exposes one newly granted badge.
type EarnedBadgeView struct {
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

// UnlockBadgesResponse packages unlock results.
type UnlockBadgesResponse struct {
	NewBadges  []EarnedBadgeView `json:"new_badges"`
	BadgeCount int               `json:"badge_count"`
}

// RustUpdateView exposes one badge's rust transition.
type RustUpdateView struct {
	BadgeCode         string `json:"badge_code"`
	WasRusty          bool   `json:"was_rusty"`
	IsNowRusty        bool   `json:"is_now_rusty"`
	DaysSinceActivity int    `json:"days_since_activity"`
}

// CheckRustResponse packages rust check results.
type CheckRustResponse struct {
	Updates     []RustUpdateView `json:"updates"`
	NewlyRusted []string         `json:"newly_rusted"`
	Polished    []string         `json:"polished"`
}

// PolishRequest is the payload for POST /v1/gamification/polish.
type PolishRequest struct {
	UserID          string `json:"user_id"`
	AchievementCode string `json:"achievement_code"`
}

// Validate ensures request correctness.
func (r PolishRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.AchievementCode) == "" {
		return errors.New("achievement_code is required")
	}
	return nil
}

// FinishWorkoutRequest optionally carries a timezone hint for workouts
// stored without one.
type FinishWorkoutRequest struct {
	Timezone string `json:"timezone,omitempty"`
}

// StageFailureView reports a pipeline stage that failed.
type StageFailureView struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// PipelineResponse aggregates the outcome of the finish pipeline.
type PipelineResponse struct {
	WorkoutID string               `json:"workout_id"`
	XP        *AwardXPResponse     `json:"xp,omitempty"`
	Level     *LevelResponse       `json:"level,omitempty"`
	Records   []PersonalRecordView `json:"records"`
	Weekly    *WeeklyView          `json:"weekly,omitempty"`
	NewBadges []EarnedBadgeView    `json:"new_badges"`
	Failures  []StageFailureView   `json:"failures"`
}

// NotificationView exposes one stored notification.
type NotificationView struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ListNotificationsResponse packages list results.
type ListNotificationsResponse struct {
	Items      []NotificationView `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func toPersonalRecordView(rec domain.PersonalRecord) PersonalRecordView {
	return PersonalRecordView{
		ExerciseID:  rec.ExerciseID,
		SetID:       rec.SetID,
		NewPR:       rec.NewPR,
		PreviousPR:  rec.PreviousPR,
		Improvement: rec.Improvement,
	}
}

func toWeeklyView(result *domain.WeeklyResult) WeeklyView {
	return WeeklyView{
		WeekStart:         result.Week.WeekStart,
		ActiveDays:        result.Week.ActiveDays,
		WorkoutsCompleted: result.Week.WorkoutsCompleted,
		TotalSets:         result.Week.TotalSets,
		TotalVolume:       result.Week.TotalVolume,
		Streaks:           result.Streaks,
		PerfectWeekCodes:  result.PerfectWeekCodes,
	}
}

func toPipelineView(workoutID string, result *domain.PipelineResult) PipelineResponse {
	resp := PipelineResponse{
		WorkoutID: workoutID,
		Records:   make([]PersonalRecordView, 0, len(result.PRs)),
		NewBadges: make([]EarnedBadgeView, 0, len(result.NewBadges)),
		Failures:  make([]StageFailureView, 0, len(result.Failures)),
	}
	if result.XP != nil {
		resp.XP = &AwardXPResponse{XPAwarded: result.XP.XPAwarded, TodayTotal: result.XP.TodayTotal}
	}
	if result.Level != nil {
		resp.Level = &LevelResponse{
			UserID:        result.Level.UserID,
			TotalXP:       result.Level.TotalXP,
			Level:         result.Level.Level,
			XPToNextLevel: result.Level.XPToNextLevel,
		}
	}
	for _, rec := range result.PRs {
		resp.Records = append(resp.Records, toPersonalRecordView(rec))
	}
	for _, badge := range result.NewBadges {
		resp.NewBadges = append(resp.NewBadges, EarnedBadgeView{
			Code:        badge.Code,
			Title:       badge.Title,
			Description: badge.Description,
			EarnedAt:    badge.EarnedAt,
		})
	}
	if result.Weekly != nil {
		weekly := toWeeklyView(result.Weekly)
		resp.Weekly = &weekly
	}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, StageFailureView{Stage: failure.Stage, Reason: failure.Reason})
	}
	return resp
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrWorkoutNotFound), errors.Is(err, domain.ErrSetNotFound), errors.Is(err, domain.ErrBadgeNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrWorkoutNotFinished):
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
