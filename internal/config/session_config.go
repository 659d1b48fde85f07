package config

const (
	dedupeRefreshVar = "TURF_DEDUPE_REFRESH"
	serverLogoutVar  = "TURF_SERVER_LOGOUT"
)

type SessionConfig interface {
	GetDedupeRefresh() bool
	GetServerLogout() bool
}

type Session struct {
	v values
}

var _ SessionConfig = Session{}

// GetDedupeRefresh reports whether concurrent 401s share one refresh call
func (s Session) GetDedupeRefresh() bool {
	return s.v.flag(dedupeRefreshVar, true)
}

// GetServerLogout reports whether logout also notifies the backend
func (s Session) GetServerLogout() bool {
	return s.v.flag(serverLogoutVar, false)
}
