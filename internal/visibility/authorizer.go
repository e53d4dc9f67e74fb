package visibility

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"testapi/internal/auth"
	"testapi/internal/logger"
)

// Authorizer is what read handlers call to scope a query to the caller.
type Authorizer struct {
	builder *Builder
	current func(*gin.Context) *auth.Principal
}

// NewAuthorizer wires a builder to a function that reports the caller
// of a request, nil when anonymous.
func NewAuthorizer(b *Builder, current func(*gin.Context) *auth.Principal) *Authorizer {
	return &Authorizer{builder: b, current: current}
}

// Authorize builds the filter for the request in c. On a malformed
// numeric parameter it writes a 400 response, aborts c and returns
// false.
func (a *Authorizer) Authorize(c *gin.Context) (Filter, bool) {
	caller := a.current(c)
	filter, err := a.builder.Build(caller, ParseQuery(c.Request.URL.RawQuery))
	if err != nil {
		var bad *BadRequest
		if errors.As(err, &bad) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bad.Error()})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}

	if from, to, ok := Window(filter); ok {
		logger.Debug("visibility window", map[string]any{
			"path": c.FullPath(),
			"from": from,
			"to":   to,
		})
	}
	return filter, true
}
