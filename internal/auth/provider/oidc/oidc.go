package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"testapi/internal/auth"
	"testapi/internal/auth/provider"
	"testapi/internal/logger"
	"testapi/internal/session"
)

const providerName = "oidc"

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// PublicAuthURL overrides the discovered authorization endpoint when
	// the issuer is reached through an internal address, as with a
	// Keycloak container behind a proxy.
	PublicAuthURL string

	Timeout  time.Duration
	StateTTL time.Duration
}

// Provider implements OAuth + OIDC authentication against any
// discovery-capable issuer. It returns identity facts only.
type Provider struct {
	cfg         Config
	client      *http.Client
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New initializes the provider using discovery.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	// The client bounds discovery and every later JWKS refresh.
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: cfg.Timeout})

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	ep := oidcProvider.Endpoint()
	if cfg.PublicAuthURL != "" {
		ep.AuthURL = cfg.PublicAuthURL
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes: []string{
				oidc.ScopeOpenID,
				"email",
				"profile",
			},
		},
		verifier: verifier,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// Begin builds the authorization URL with state and PKCE parameters.
func (p *Provider) Begin(_ context.Context, state provider.StateStore) (string, error) {
	st, err := generateState(state, p.cfg.StateTTL)
	if err != nil {
		return "", err
	}
	challenge, err := generatePKCE(state, p.cfg.StateTTL)
	if err != nil {
		state.Clear(session.CookieOIDCState)
		return "", err
	}

	return p.oauthConfig.AuthCodeURL(
		st,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// Complete exchanges the authorization code and returns a normalized identity.
func (p *Provider) Complete(
	ctx context.Context,
	params url.Values,
	state provider.StateStore,
) (*auth.Identity, error) {

	stateOK := validateState(state, params.Get("state"))
	codeVerifier, _ := state.Get(session.CookieOIDCVerifier)
	state.Clear(session.CookieOIDCState)
	state.Clear(session.CookieOIDCVerifier)

	if errParam := params.Get("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"error": errParam,
			"desc":  params.Get("error_description"),
		})
		if errParam == "access_denied" {
			return nil, auth.Cancelled(providerName)
		}
		return nil, auth.Rejected(providerName, 0, errors.New(errParam))
	}

	if !stateOK || codeVerifier == "" {
		return nil, auth.StateMismatch(providerName)
	}

	code := params.Get("code")
	if code == "" {
		return nil, auth.MissingAttribute(providerName, "code")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	ctx = oidc.ClientContext(ctx, p.client)

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, classifyExchange(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, auth.MissingAttribute(providerName, "id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, auth.Rejected(providerName, 0, fmt.Errorf("id_token verification failed: %w", err))
	}

	var claims struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, auth.Rejected(providerName, 0, fmt.Errorf("id_token claims parse failed: %w", err))
	}

	if claims.Subject == "" {
		return nil, auth.MissingAttribute(providerName, "sub")
	}
	if claims.Email == "" {
		return nil, auth.MissingAttribute(providerName, "email")
	}

	logger.Info("oidc verified", map[string]any{
		"issuer":      idToken.Issuer,
		"subject":     claims.Subject,
		"audience":    idToken.Audience,
		"expiry_unix": idToken.Expiry.Unix(),
	})

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	return &auth.Identity{
		Provider:    providerName,
		Subject:     p.cfg.Issuer + "#" + claims.Subject,
		Email:       claims.Email,
		DisplayName: name,
	}, nil
}

// classifyExchange maps token endpoint failures onto the error taxonomy.
func classifyExchange(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return auth.Rejected(providerName, re.Response.StatusCode, err)
	}
	return auth.Unreachable(providerName, err)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
