package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testapi/internal/auth"
	"testapi/internal/auth/directory"
	"testapi/internal/auth/provider"
	"testapi/internal/auth/provider/openid"
	"testapi/internal/metrics"
	"testapi/internal/session"
)

const uiURL = "http://ui.example.org/testapi"

// browser keeps cookies between requests the way a user agent would.
type browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]string
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rec
}

func (b *browser) has(name string) bool {
	_, ok := b.cookies[name]
	return ok
}

// stubProvider completes with a fixed identity or error.
type stubProvider struct {
	name     string
	identity *auth.Identity
	err      error
	ledger   session.Ledger
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Begin(ctx context.Context, state provider.StateStore) (string, error) {
	if s.ledger != nil {
		if err := s.ledger.Register(ctx, "rt-1", time.Minute); err != nil {
			return "", err
		}
		if err := state.Set(session.CookieRequestToken, "rt-1", time.Minute); err != nil {
			return "", err
		}
	}
	return "https://idp.example.org/authorize", nil
}

func (s *stubProvider) Complete(ctx context.Context, _ url.Values, state provider.StateStore) (*auth.Identity, error) {
	if s.ledger != nil {
		token, ok := state.Get(session.CookieRequestToken)
		state.Clear(session.CookieRequestToken)
		if !ok {
			return nil, auth.MissingAttribute(s.name, "oauth_token")
		}
		fresh, err := s.ledger.Consume(ctx, token)
		if err != nil {
			return nil, auth.Unreachable(s.name, err)
		}
		if !fresh {
			return nil, auth.Rejected(s.name, 0, errors.New("request token already used"))
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

type fixture struct {
	dir     *directory.MemoryDirectory
	metrics *metrics.Metrics
	browser *browser
}

func newFixture(t *testing.T, providers ...provider.Provider) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := session.NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	dir := directory.NewMemoryDirectory(auth.RoleDefault)
	m := metrics.NewMetrics()
	h, err := NewHandler(provider.NewRegistry(providers...), dir, signer, m, Options{
		UIURL:          uiURL,
		LogoutEndpoint: "https://openstackid.org/accounts/user/logout",
		CredentialTTL:  time.Hour,
	})
	require.NoError(t, err)

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))

	return &fixture{
		dir:     dir,
		metrics: m,
		browser: &browser{t: t, router: r, cookies: map[string]string{}},
	}
}

func newOpenID(t *testing.T) *openid.Provider {
	t.Helper()
	p, err := openid.New(openid.Config{
		Endpoint:     "https://openstackid.org/accounts/openid2",
		ReturnURL:    "http://localhost:8000/api/v1/auth/signin_return",
		Realm:        "http://localhost:8000/api/v1",
		Mode:         "checkid_setup",
		NS:           "http://specs.openid.net/auth/2.0",
		ClaimedID:    "http://specs.openid.net/auth/2.0/identifier_select",
		Identity:     "http://specs.openid.net/auth/2.0/identifier_select",
		NSSreg:       "http://openid.net/extensions/sreg/1.1",
		SregRequired: "email,fullname",
	})
	require.NoError(t, err)
	return p
}

func failureMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	prefix := "http://ui.example.org/#/auth_failure?"
	require.True(t, strings.HasPrefix(loc, prefix), loc)
	q, err := url.ParseQuery(strings.TrimPrefix(loc, prefix))
	require.NoError(t, err)
	return q.Get("message")
}

func TestOpenStackSignInFlow(t *testing.T) {
	f := newFixture(t, newOpenID(t))
	b := f.browser

	rec := b.get("/api/v1/auth/signin?type=openstack")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "openstackid.org", loc.Host)
	assert.Zero(t, f.dir.Len(), "begin must not touch the directory")

	returnTo, err := url.Parse(loc.Query().Get("openid.return_to"))
	require.NoError(t, err)
	csrf := returnTo.Query().Get("csrf_token")
	require.NotEmpty(t, csrf)

	callback := url.Values{
		"csrf_token":           {csrf},
		"openid.mode":          {"id_res"},
		"openid.claimed_id":    {"https://openstackid.org/jane.doe"},
		"openid.sreg.email":    {"jane@example.org"},
		"openid.sreg.fullname": {"Jane Doe"},
	}
	rec = b.get("/api/v1/auth/signin_return?" + callback.Encode())
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, uiURL, rec.Header().Get("Location"))
	assert.True(t, b.has(session.CookieSubject))
	assert.True(t, b.has(session.CookieRole))
	assert.False(t, b.has(session.CookieCSRF))
	assert.Equal(t, 1, f.dir.Len())

	rec = b.get("/api/v1/profile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"openid": "https://openstackid.org/jane.doe",
		"email": "jane@example.org",
		"fullname": "Jane Doe",
		"role": "default"
	}`, rec.Body.String())
}

func TestReturningUserKeepsStoredRole(t *testing.T) {
	identity := &auth.Identity{Provider: "stub", Subject: "U", Email: "u@example.org", DisplayName: "U"}
	f := newFixture(t, &stubProvider{name: "openstack", identity: identity})

	_, _, err := f.dir.FindOrProvision(context.Background(), identity)
	require.NoError(t, err)
	require.NoError(t, f.dir.SetRole("U", auth.RoleReviewer))

	rec := f.browser.get("/api/v1/auth/signin_return")
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.browser.get("/api/v1/profile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"reviewer"`)
}

func TestCancelledSignInWritesNoCredential(t *testing.T) {
	f := newFixture(t, newOpenID(t))
	b := f.browser

	b.get("/api/v1/auth/signin?type=openstack")
	rec := b.get("/api/v1/auth/signin_return?openid.mode=cancel")

	assert.Equal(t, "Authentication canceled.", failureMessage(t, rec))
	assert.False(t, b.has(session.CookieSubject))
	assert.False(t, b.has(session.CookieRole))
	assert.Zero(t, f.dir.Len())
}

func TestFailureKeepsExistingCredentialUntouched(t *testing.T) {
	identity := &auth.Identity{Provider: "stub", Subject: "U", Email: "u@example.org", DisplayName: "U"}
	good := &stubProvider{name: "openstack", identity: identity}
	bad := &stubProvider{name: "jira", err: auth.Rejected("jira", http.StatusInternalServerError, errors.New("boom"))}
	f := newFixture(t, good, bad)
	b := f.browser

	b.get("/api/v1/auth/signin_return")
	before := b.cookies[session.CookieSubject]
	require.NotEmpty(t, before)

	rec := b.get("/api/v1/auth/signin_return_jira")
	assert.Equal(t,
		"Error: Connection to Jira failed. Error code(500). Please contact an Administrator",
		failureMessage(t, rec))
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, session.CookieSubject, c.Name)
		assert.NotEqual(t, session.CookieRole, c.Name)
	}
	assert.Equal(t, before, b.cookies[session.CookieSubject])
}

func TestReplayedCallbackFails(t *testing.T) {
	identity := &auth.Identity{Provider: "jira", Subject: "jdoe", Email: "j@example.org", DisplayName: "J"}
	f := newFixture(t, &stubProvider{name: "jira", identity: identity, ledger: session.NewMemoryLedger()})
	b := f.browser

	b.get("/api/v1/auth/signin?type=jira")
	stale := b.cookies[session.CookieRequestToken]
	require.NotEmpty(t, stale)

	rec := b.get("/api/v1/auth/signin_return_jira")
	require.Equal(t, uiURL, rec.Header().Get("Location"))

	// Replay with the handshake cookie the first callback consumed.
	attacker := &browser{t: t, router: b.router, cookies: map[string]string{session.CookieRequestToken: stale}}
	rec = attacker.get("/api/v1/auth/signin_return_jira")
	failureMessage(t, rec)
	assert.False(t, attacker.has(session.CookieSubject))
}

func TestDirectoryFailureRedirects(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "openstack", identity: &auth.Identity{Provider: "stub"}})

	rec := f.browser.get("/api/v1/auth/signin_return")
	failureMessage(t, rec)
	assert.False(t, f.browser.has(session.CookieSubject))
}

func TestBeginFailureRedirects(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "jira", ledger: failingLedger{}})

	rec := f.browser.get("/api/v1/auth/signin?type=jira")
	failureMessage(t, rec)
}

type failingLedger struct{}

func (failingLedger) Register(context.Context, string, time.Duration) error {
	return errors.New("ledger down")
}

func (failingLedger) Consume(context.Context, string) (bool, error) {
	return false, errors.New("ledger down")
}

func TestUnknownSignInType(t *testing.T) {
	f := newFixture(t, newOpenID(t))

	for _, target := range []string{"/api/v1/auth/signin?type=cas", "/api/v1/auth/signin"} {
		rec := f.browser.get(target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCallbackForDisabledProvider(t *testing.T) {
	f := newFixture(t, newOpenID(t))

	rec := f.browser.get("/api/v1/auth/signin_return_jira?oauth_token=x")
	assert.Equal(t, "Error: sign-in failed. Please contact an Administrator", failureMessage(t, rec))
}

func TestSignout(t *testing.T) {
	identity := &auth.Identity{Provider: "stub", Subject: "U", Email: "u@example.org", DisplayName: "U"}
	f := newFixture(t, &stubProvider{name: "openstack", identity: identity})
	b := f.browser

	b.get("/api/v1/auth/signin_return")
	require.True(t, b.has(session.CookieSubject))

	rec := b.get("/api/v1/auth/signout")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t,
		"http://ui.example.org/#/logout?openid_logout=https%3A%2F%2Fopenstackid.org%2Faccounts%2Fuser%2Flogout",
		rec.Header().Get("Location"))
	assert.False(t, b.has(session.CookieSubject))
	assert.False(t, b.has(session.CookieRole))

	rec = b.get("/api/v1/profile")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileRequiresCredential(t *testing.T) {
	f := newFixture(t, newOpenID(t))

	rec := f.browser.get("/api/v1/profile")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewHandlerValidatesOptions(t *testing.T) {
	signer, err := session.NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	dir := directory.NewMemoryDirectory(auth.RoleDefault)

	_, err = NewHandler(provider.NewRegistry(), dir, signer, metrics.NewMetrics(), Options{UIURL: "not a url", CredentialTTL: time.Hour})
	assert.Error(t, err)
	_, err = NewHandler(provider.NewRegistry(), dir, signer, metrics.NewMetrics(), Options{UIURL: uiURL})
	assert.Error(t, err)
}
