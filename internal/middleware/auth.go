package middleware

import (
	"context"
	"net/http"

	"testapi/internal/auth"
	"testapi/internal/session"
)

// unexported, collision-proof context key
type principalContextKeyType struct{}

var principalKey = principalContextKeyType{}

// PrincipalFromContext returns the caller attached by Identify or
// RequireAuth, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// AuthMiddleware resolves callers from their signed credential cookies.
// There is no server-side session table: a valid signature and an
// unexpired cookie are the whole check.
type AuthMiddleware struct {
	Signer  *session.Signer
	Cookies session.CookieOptions
}

func NewAuthMiddleware(signer *session.Signer, cookies session.CookieOptions) *AuthMiddleware {
	return &AuthMiddleware{Signer: signer, Cookies: cookies}
}

func (a *AuthMiddleware) principal(r *http.Request) *auth.Principal {
	return session.ReadCredential(session.NewJar(r, a.Signer, a.Cookies))
}

// Identify attaches the caller when there is one and always continues.
func (a *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := a.principal(r); p != nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects anonymous callers with 401.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := a.principal(r)
		if p == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
