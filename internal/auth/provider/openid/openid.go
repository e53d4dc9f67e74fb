// Package openid implements the OpenID 2.0 relying party used for the
// "openstack" sign-in type.
//
// The provider's positive assertion is trusted as delivered by the
// browser unless Config.VerifyAssertion is set. Without it a caller who
// can craft the callback query can claim any identity. Verification uses
// the stateless check_authentication exchange; associations are not
// supported.
package openid

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"testapi/internal/auth"
	"testapi/internal/auth/provider"
	"testapi/internal/logger"
	"testapi/internal/session"
)

const providerName = "openstack"

const (
	paramMode         = "openid.mode"
	paramNS           = "openid.ns"
	paramReturnTo     = "openid.return_to"
	paramClaimedID    = "openid.claimed_id"
	paramIdentity     = "openid.identity"
	paramRealm        = "openid.realm"
	paramNSSreg       = "openid.ns.sreg"
	paramSregRequired = "openid.sreg.required"
	paramSregEmail    = "openid.sreg.email"
	paramSregFullname = "openid.sreg.fullname"

	paramCSRF = "csrf_token"

	modeCancel              = "cancel"
	modeCheckAuthentication = "check_authentication"
)

// Config holds the fixed provider constants. None of it comes from the
// request.
type Config struct {
	Endpoint     string
	ReturnURL    string
	Realm        string
	Mode         string
	NS           string
	ClaimedID    string
	Identity     string
	NSSreg       string
	SregRequired string

	VerifyAssertion bool
	Timeout         time.Duration
	StateTTL        time.Duration
}

// Assertion is what a positive provider response tells us.
type Assertion struct {
	ClaimedID string
	Email     string
	FullName  string
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" || cfg.ReturnURL == "" || cfg.Realm == "" {
		return nil, errors.New("openid config missing required fields")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("openid endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// BuildAuthRedirect assembles the checkid_setup request. The CSRF token
// rides in the return-to URL so it comes back with the assertion.
func (p *Provider) BuildAuthRedirect(returnBaseURL, realm, csrfToken string) (string, error) {
	returnTo, err := withQuery(returnBaseURL, url.Values{paramCSRF: {csrfToken}})
	if err != nil {
		return "", fmt.Errorf("openid return url: %w", err)
	}

	return withQuery(p.cfg.Endpoint, url.Values{
		paramMode:         {p.cfg.Mode},
		paramNS:           {p.cfg.NS},
		paramReturnTo:     {returnTo},
		paramClaimedID:    {p.cfg.ClaimedID},
		paramIdentity:     {p.cfg.Identity},
		paramRealm:        {realm},
		paramNSSreg:       {p.cfg.NSSreg},
		paramSregRequired: {p.cfg.SregRequired},
	})
}

// ParseReturn reads the provider's callback parameters.
func ParseReturn(params url.Values) (*Assertion, error) {
	if params.Get(paramMode) == modeCancel {
		return nil, auth.Cancelled(providerName)
	}

	a := &Assertion{
		ClaimedID: params.Get(paramClaimedID),
		Email:     params.Get(paramSregEmail),
		FullName:  params.Get(paramSregFullname),
	}
	switch {
	case a.ClaimedID == "":
		return nil, auth.MissingAttribute(providerName, paramClaimedID)
	case a.Email == "":
		return nil, auth.MissingAttribute(providerName, paramSregEmail)
	case a.FullName == "":
		return nil, auth.MissingAttribute(providerName, paramSregFullname)
	}
	return a, nil
}

func (p *Provider) Begin(_ context.Context, state provider.StateStore) (string, error) {
	token, err := session.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := state.Set(session.CookieCSRF, token, p.cfg.StateTTL); err != nil {
		return "", err
	}
	return p.BuildAuthRedirect(p.cfg.ReturnURL, p.cfg.Realm, token)
}

func (p *Provider) Complete(
	ctx context.Context,
	params url.Values,
	state provider.StateStore,
) (*auth.Identity, error) {

	expected, ok := state.Get(session.CookieCSRF)
	state.Clear(session.CookieCSRF)

	a, err := ParseReturn(params)
	if err != nil {
		return nil, err
	}

	got := params.Get(paramCSRF)
	if !ok || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return nil, auth.StateMismatch(providerName)
	}

	if p.cfg.VerifyAssertion {
		if err := p.verify(ctx, params); err != nil {
			return nil, err
		}
	}

	logger.Info("openid assertion accepted", map[string]any{
		"claimed_id": a.ClaimedID,
		"verified":   p.cfg.VerifyAssertion,
	})

	return &auth.Identity{
		Provider:    providerName,
		Subject:     a.ClaimedID,
		Email:       a.Email,
		DisplayName: a.FullName,
	}, nil
}

// verify asks the provider to confirm its own signature
// (OpenID 2.0 section 11.4.2).
func (p *Provider) verify(ctx context.Context, params url.Values) error {
	form := url.Values{}
	for k, v := range params {
		if strings.HasPrefix(k, "openid.") {
			form[k] = v
		}
	}
	form.Set(paramMode, modeCheckAuthentication)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return auth.Unreachable(providerName, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return auth.Unreachable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return auth.Rejected(providerName, resp.StatusCode, nil)
	}

	fields := map[string]string{}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if k, v, ok := strings.Cut(sc.Text(), ":"); ok {
			fields[k] = v
		}
	}
	if err := sc.Err(); err != nil {
		return auth.Unreachable(providerName, err)
	}

	if fields["is_valid"] != "true" {
		return auth.Rejected(providerName, 0, errors.New("assertion signature not confirmed"))
	}
	return nil
}

// withQuery merges params into raw's existing query string.
func withQuery(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
