package guard

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HydratingSession adds the ability to wait out hydration. The HTTP
// middleware blocks instead of answering "loading": by the time a request
// is decided, the session state is settled.
type HydratingSession interface {
	Session
	WaitReady(ctx context.Context) error
}

// Middleware guards a route group. Unauthenticated requests are redirected
// to the login destination with the requested path preserved; authenticated
// but under-privileged requests get a 403 body rather than a redirect.
func Middleware(sess HydratingSession, g Guard, req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sess.WaitReady(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_not_ready"})
			return
		}

		decision := g.Decide(sess, c.Request.URL.Path, req)
		switch decision.Verdict {
		case VerdictAllow:
			c.Next()
		case VerdictRedirect:
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
		case VerdictForbid:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_not_ready"})
		}
	}
}
