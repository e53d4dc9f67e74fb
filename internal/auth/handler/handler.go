package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"testapi/internal/auth"
	"testapi/internal/auth/directory"
	"testapi/internal/auth/provider"
	"testapi/internal/logger"
	"testapi/internal/metrics"
	"testapi/internal/middleware"
	"testapi/internal/session"
)

// Options are the orchestrator's fixed settings.
type Options struct {
	// UIURL is the landing page after sign-in; failure and logout pages
	// hang off its root.
	UIURL string
	// LogoutEndpoint is passed to the UI so it can end the provider
	// session as well.
	LogoutEndpoint string
	CredentialTTL  time.Duration
	Cookies        session.CookieOptions
}

// callbacks maps each provider to its return path. The openstack path
// predates the others and has no suffix.
var callbacks = map[string]string{
	"openstack": "/auth/signin_return",
	"jira":      "/auth/signin_return_jira",
	"oidc":      "/auth/signin_return_oidc",
}

// Handler is the sign-in orchestrator: one begin entry point shared by
// all providers and one complete entry point per provider.
type Handler struct {
	providers *provider.Registry
	directory directory.Directory
	signer    *session.Signer
	auth      *middleware.AuthMiddleware
	metrics   *metrics.Metrics
	opts      Options

	uiRoot *url.URL
}

func NewHandler(
	registry *provider.Registry,
	dir directory.Directory,
	signer *session.Signer,
	m *metrics.Metrics,
	opts Options,
) (*Handler, error) {
	ui, err := url.Parse(opts.UIURL)
	if err != nil || ui.Scheme == "" || ui.Host == "" {
		return nil, fmt.Errorf("handler: invalid ui url %q", opts.UIURL)
	}
	if opts.CredentialTTL <= 0 {
		return nil, fmt.Errorf("handler: credential ttl must be positive")
	}

	root := &url.URL{Scheme: ui.Scheme, Host: ui.Host, Path: "/"}
	return &Handler{
		providers: registry,
		directory: dir,
		signer:    signer,
		auth:      middleware.NewAuthMiddleware(signer, opts.Cookies),
		metrics:   m,
		opts:      opts,
		uiRoot:    root,
	}, nil
}

// RegisterRoutes mounts the auth and profile routes on r, which is
// usually a group carrying the API prefix.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/auth/signin", h.begin)
	for name, path := range callbacks {
		r.GET(path, h.complete(name))
	}
	r.GET("/auth/signout", h.signout)
	r.GET("/profile", middleware.GinRequireAuth(h.auth), h.profile)

	logger.Info("sign-in routes registered", map[string]any{
		"providers": h.providers.Names(),
	})
}

func (h *Handler) jar(c *gin.Context) *session.Jar {
	return session.NewJar(c.Request, h.signer, h.opts.Cookies)
}

func (h *Handler) begin(c *gin.Context) {
	name := c.Query("type")
	p, err := h.providers.Get(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown sign-in type",
		})
		return
	}

	jar := h.jar(c)
	redirect, err := p.Begin(c.Request.Context(), jar)
	if err != nil {
		h.fail(c, jar, name, "begin", err)
		return
	}

	h.metrics.RecordSignIn(name, "begin", "ok")
	jar.Flush(c.Writer)
	c.Redirect(http.StatusFound, redirect)
}

// complete handles the callback of one provider. The credential is
// written only after both the provider and the directory succeed.
func (h *Handler) complete(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() { h.metrics.ObserveComplete(name, time.Since(start)) }()

		jar := h.jar(c)
		p, err := h.providers.Get(name)
		if err != nil {
			h.fail(c, jar, name, "complete", err)
			return
		}

		ctx := c.Request.Context()
		identity, err := p.Complete(ctx, c.Request.URL.Query(), jar)
		if err != nil {
			h.fail(c, jar, name, "complete", err)
			return
		}

		user, created, err := h.directory.FindOrProvision(ctx, identity)
		if err != nil {
			h.fail(c, jar, name, "complete", err)
			return
		}
		h.metrics.RecordProvision(name, created)

		if err := session.WriteCredential(jar, user.Principal(), h.opts.CredentialTTL); err != nil {
			h.fail(c, jar, name, "complete", err)
			return
		}

		logger.Info("sign-in complete", map[string]any{
			"provider": name,
			"subject":  user.Subject,
			"role":     string(user.Role),
			"new_user": created,
			"ip":       c.ClientIP(),
		})
		h.metrics.RecordSignIn(name, "complete", "ok")
		jar.Flush(c.Writer)
		c.Redirect(http.StatusFound, h.opts.UIURL)
	}
}

// fail sends the browser to the UI failure page. Pending cookie writes
// are flushed so handshake state is cleared; no credential is ever
// pending at this point.
func (h *Handler) fail(c *gin.Context, jar *session.Jar, name, step string, err error) {
	kind := auth.KindOf(err)
	result := string(kind)
	if result == "" {
		result = "error"
	}

	logger.Warn("sign-in failed", map[string]any{
		"provider": name,
		"step":     step,
		"kind":     result,
		"error":    err,
	})
	h.metrics.RecordSignIn(name, step, result)

	jar.Flush(c.Writer)
	c.Redirect(http.StatusFound, h.uiPage("/auth_failure", url.Values{
		"message": {auth.UserMessage(err)},
	}))
}

func (h *Handler) signout(c *gin.Context) {
	jar := h.jar(c)
	if p := session.ReadCredential(jar); p != nil {
		logger.Info("sign-out", map[string]any{
			"subject": p.Subject,
			"ip":      c.ClientIP(),
		})
	}
	session.ClearCredential(jar)
	jar.Flush(c.Writer)
	h.metrics.RecordSignOut()

	c.Redirect(http.StatusFound, h.uiPage("/logout", url.Values{
		"openid_logout": {h.opts.LogoutEndpoint},
	}))
}

func (h *Handler) profile(c *gin.Context) {
	p := middleware.CurrentPrincipal(c)

	user, err := h.directory.Find(c.Request.Context(), p.Subject)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logger.Error("profile lookup failed", map[string]any{
			"subject": p.Subject,
			"error":   err,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"openid":   user.Subject,
		"email":    user.Email,
		"fullname": user.DisplayName,
		"role":     string(user.Role),
	})
}

// uiPage builds a link into the UI's hash router, e.g.
// https://ui/#/auth_failure?message=...
func (h *Handler) uiPage(route string, params url.Values) string {
	return h.uiRoot.String() + "#" + route + "?" + params.Encode()
}
