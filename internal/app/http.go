package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"testapi/internal/auth"
	"testapi/internal/auth/directory"
	"testapi/internal/auth/handler"
	"testapi/internal/auth/provider"
	"testapi/internal/auth/provider/jira"
	"testapi/internal/auth/provider/oidc"
	"testapi/internal/auth/provider/openid"
	"testapi/internal/config"
	"testapi/internal/logger"
	"testapi/internal/metrics"
	"testapi/internal/middleware"
	"testapi/internal/session"
	"testapi/internal/visibility"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, *visibility.Authorizer, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	fail := func(err error) (*gin.Engine, *visibility.Authorizer, func() error, error) {
		_ = infra.Close()
		return nil, nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	defaultRole := auth.Role(cfg.DefaultRole)

	var dir directory.Directory = directory.NewMemoryDirectory(defaultRole)
	if infra.DB != nil {
		dir = directory.NewPostgresDirectory(infra.DB, defaultRole)
	}

	var ledger session.Ledger = session.NewMemoryLedger()
	if infra.Redis != nil {
		ledger = session.NewRedisLedger(infra.Redis.Client)
	}

	signer, err := session.NewSigner([]byte(cfg.Cookie.Secret))
	if err != nil {
		return fail(err)
	}
	cookies := session.CookieOptions{
		Secure: cfg.Cookie.Secure,
		Domain: cfg.Cookie.Domain,
	}

	providers, err := buildProviders(ctx, cfg, ledger)
	if err != nil {
		return fail(err)
	}
	registry := provider.NewRegistry(providers...)

	m := metrics.NewMetrics()

	authHandler, err := handler.NewHandler(registry, dir, signer, m, handler.Options{
		UIURL:          cfg.UIURL,
		LogoutEndpoint: cfg.OpenID.LogoutEndpoint,
		CredentialTTL:  cfg.Cookie.CredentialTTL,
		Cookies:        cookies,
	})
	if err != nil {
		return fail(err)
	}

	authMiddleware := middleware.NewAuthMiddleware(signer, cookies)
	authorizer := visibility.NewAuthorizer(visibility.NewBuilder(nil), middleware.CurrentPrincipal)

	// ----------------------------
	// Router
	// ----------------------------

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), m.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group(cfg.RoutePrefix)
	authHandler.RegisterRoutes(api)

	// Shows the visibility filter a read would get; meant for UI work.
	if cfg.Debug {
		api.GET("/auth/filter", middleware.GinIdentify(authMiddleware), func(c *gin.Context) {
			filter, ok := authorizer.Authorize(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, filter)
		})
	}

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, authorizer, infra.Close, nil
}

// buildProviders returns the enabled sign-in types. Disabled types are
// left out entirely so the registry never holds a nil provider.
func buildProviders(ctx context.Context, cfg config.Config, ledger session.Ledger) ([]provider.Provider, error) {
	var list []provider.Provider

	osid, err := openid.New(openid.Config{
		Endpoint:        cfg.OpenID.Endpoint,
		ReturnURL:       cfg.OpenID.ReturnURL,
		Realm:           cfg.APIURL,
		Mode:            cfg.OpenID.Mode,
		NS:              cfg.OpenID.NS,
		ClaimedID:       cfg.OpenID.ClaimedID,
		Identity:        cfg.OpenID.Identity,
		NSSreg:          cfg.OpenID.NSSreg,
		SregRequired:    cfg.OpenID.SregRequired,
		VerifyAssertion: cfg.OpenID.VerifyAssertion,
		Timeout:         cfg.ProviderTimeout,
		StateTTL:        cfg.Cookie.HandshakeTTL,
	})
	if err != nil {
		return nil, err
	}
	list = append(list, osid)

	if cfg.Jira.Enabled() {
		key, err := jira.LoadPrivateKey(cfg.Jira.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("jira private key: %w", err)
		}
		jp, err := jira.New(jira.Config{
			ServerURL:       cfg.Jira.ServerURL,
			ConsumerKey:     cfg.Jira.ConsumerKey,
			PrivateKey:      key,
			RequestTokenURL: cfg.Jira.RequestTokenURL,
			AuthorizeURL:    cfg.Jira.AuthorizeURL,
			AccessTokenURL:  cfg.Jira.AccessTokenURL,
			CallbackURL:     cfg.Jira.CallbackURL,
			Timeout:         cfg.ProviderTimeout,
			StateTTL:        cfg.Cookie.HandshakeTTL,
			RequestsPerSec:  cfg.Jira.RequestsPerSec,
			Burst:           cfg.Jira.Burst,
		}, ledger)
		if err != nil {
			return nil, err
		}
		list = append(list, jp)
	}

	if cfg.OIDC.Enabled() {
		op, err := oidc.New(ctx, oidc.Config{
			Issuer:        cfg.OIDC.Issuer,
			ClientID:      cfg.OIDC.ClientID,
			ClientSecret:  cfg.OIDC.ClientSecret,
			RedirectURL:   cfg.OIDC.RedirectURL,
			PublicAuthURL: cfg.OIDC.PublicAuthURL,
			Timeout:       cfg.ProviderTimeout,
			StateTTL:      cfg.Cookie.HandshakeTTL,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, op)
	}

	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Name())
	}
	logger.Info("sign-in types enabled", map[string]any{"types": names})

	return list, nil
}
