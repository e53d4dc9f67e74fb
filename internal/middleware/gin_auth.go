package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"testapi/internal/auth"
)

// GinRequireAuth adapts RequireAuth to Gin.
func GinRequireAuth(a *AuthMiddleware) gin.HandlerFunc {
	return bridge(a.RequireAuth)
}

// GinIdentify adapts Identify to Gin.
func GinIdentify(a *AuthMiddleware) gin.HandlerFunc {
	return bridge(a.Identify)
}

// bridge runs a net/http middleware inside the Gin chain. The request the
// middleware hands on (with its enriched context) becomes c.Request.
func bridge(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// If the middleware already answered, stop the Gin chain
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// CurrentPrincipal is the Gin-side accessor for the caller.
func CurrentPrincipal(c *gin.Context) *auth.Principal {
	return PrincipalFromContext(c.Request.Context())
}
