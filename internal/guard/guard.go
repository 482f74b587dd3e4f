package guard

import "net/url"

// Session is the slice of the session manager a guard consumes.
type Session interface {
	IsLoading() bool
	IsAuthenticated() bool
	HasRole(code string) bool
	HasPermission(permission string) bool
}

// Requirement optionally narrows a protected destination to a role or a
// permission. The zero value requires authentication only.
type Requirement struct {
	Role       string
	Permission string
}

type Verdict int

const (
	// VerdictLoading: hydration has not settled, show a neutral waiting
	// state and do not redirect yet.
	VerdictLoading Verdict = iota
	// VerdictAllow: render the destination.
	VerdictAllow
	// VerdictRedirect: not authenticated, go to the login destination with
	// the originally requested path preserved.
	VerdictRedirect
	// VerdictForbid: authenticated but insufficiently privileged. Distinct
	// from redirect on purpose.
	VerdictForbid
)

type Decision struct {
	Verdict  Verdict
	Location string // set for VerdictRedirect
}

// Guard decides whether a navigation to a protected destination proceeds.
type Guard struct {
	// LoginPath is where unauthenticated navigations are sent.
	LoginPath string
	// ReturnParam carries the originally requested path, so the login flow
	// can come back. Defaults to "redirect".
	ReturnParam string
}

func New(loginPath string) Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	return Guard{LoginPath: loginPath, ReturnParam: "redirect"}
}

// Decide evaluates one navigation. Order matters: loading wins over
// everything, then authentication, then the privilege requirement.
func (g Guard) Decide(sess Session, requestedPath string, req Requirement) Decision {
	if sess.IsLoading() {
		return Decision{Verdict: VerdictLoading}
	}

	if !sess.IsAuthenticated() {
		return Decision{
			Verdict:  VerdictRedirect,
			Location: g.loginLocation(requestedPath),
		}
	}

	if req.Role != "" && !sess.HasRole(req.Role) {
		return Decision{Verdict: VerdictForbid}
	}
	if req.Permission != "" && !sess.HasPermission(req.Permission) {
		return Decision{Verdict: VerdictForbid}
	}

	return Decision{Verdict: VerdictAllow}
}

func (g Guard) loginLocation(requestedPath string) string {
	if requestedPath == "" || requestedPath == g.LoginPath {
		return g.LoginPath
	}
	param := g.ReturnParam
	if param == "" {
		param = "redirect"
	}
	return g.LoginPath + "?" + param + "=" + url.QueryEscape(requestedPath)
}
