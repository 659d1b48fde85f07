// Package guard decides, per navigation attempt, whether a protected view is
// rendered or the user is redirected elsewhere.
package guard

import (
	"net/url"
	"strings"

	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/users"
)

const (
	DefaultFallback     = "/"
	DefaultUnauthorized = "/unauthorized"

	// FromParam carries the attempted location on a fallback redirect
	FromParam = "from"
)

// Requirement is what a route asks of the session. A Role implies RequireSession.
type Requirement struct {
	RequireSession bool
	Role           users.RoleType
}

// Public routes render for everyone
var Public = Requirement{}

// Authenticated routes render for any logged in user
var Authenticated = Requirement{RequireSession: true}

// RequireRole returns a Requirement for routes restricted to role
func RequireRole(role users.RoleType) Requirement {
	return Requirement{RequireSession: true, Role: role}
}

type Outcome int

const (
	Render Outcome = iota
	Redirect
)

func (o Outcome) String() string {
	if o == Redirect {
		return "redirect"
	}
	return "render"
}

// Decision is the terminal state of a navigation attempt. From is set only
// when an unauthenticated user was sent to the fallback.
type Decision struct {
	Outcome  Outcome
	Location string
	From     string
}

// RedirectURL is Location with From appended as a query parameter
func (d Decision) RedirectURL() string {
	if d.Outcome != Redirect {
		return ""
	}
	if d.From == "" {
		return d.Location
	}

	separator := "?"
	if strings.Contains(d.Location, "?") {
		separator = "&"
	}
	return d.Location + separator + url.Values{FromParam: []string{d.From}}.Encode()
}

// Guard holds the redirect targets. The zero value uses the defaults.
type Guard struct {
	Fallback     string
	Unauthorized string
}

// New returns a Guard with the default redirect targets
func New() *Guard {
	return &Guard{Fallback: DefaultFallback, Unauthorized: DefaultUnauthorized}
}

// Evaluate decides what happens when a user with session navigates to attempted
func (g *Guard) Evaluate(session sessions.Session, requirement Requirement, attempted string) Decision {
	needsSession := requirement.RequireSession || requirement.Role != ""

	if needsSession && !session.IsAuthenticated {
		return Decision{Outcome: Redirect, Location: g.fallback(), From: attempted}
	}
	if requirement.Role != "" && !session.User.HasRole(requirement.Role) {
		return Decision{Outcome: Redirect, Location: g.unauthorized()}
	}
	return Decision{Outcome: Render}
}

func (g *Guard) fallback() string {
	if g == nil || g.Fallback == "" {
		return DefaultFallback
	}
	return g.Fallback
}

func (g *Guard) unauthorized() string {
	if g == nil || g.Unauthorized == "" {
		return DefaultUnauthorized
	}
	return g.Unauthorized
}

// ReturnTo validates a "from" value for post-login return. Only local paths
// are accepted; anything else yields fallback.
func ReturnTo(from, fallback string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.Contains(from, `\`) {
		return fallback
	}
	parsed, err := url.Parse(from)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return fallback
	}
	return from
}
