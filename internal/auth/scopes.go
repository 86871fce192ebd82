package auth

// Known OAuth scopes used by the backend services.
const (
	ScopeGamificationWrite = "gamification:write"
	ScopeGamificationRead  = "gamification:read"
	ScopeGamificationAdmin = "gamification:admin"
)
