package jira

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/time/rate"

	"testapi/internal/auth"
	"testapi/internal/auth/provider"
	"testapi/internal/logger"
	"testapi/internal/session"
)

const providerName = "jira"

// Handshake stages, used in logs and error causes.
const (
	stageRequestToken = "request_token"
	stageAccessToken  = "access_token"
	stageMyself       = "myself"
)

const (
	paramToken    = "oauth_token"
	paramCallback = "oauth_callback"
	paramVerifier = "oauth_verifier"

	// JIRA sends this verifier when the user clicks "Deny".
	verifierDenied = "denied"
)

type Config struct {
	ServerURL       string
	ConsumerKey     string
	PrivateKey      *rsa.PrivateKey
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	CallbackURL     string

	// Timeout bounds every call to JIRA; a timed out call is reported
	// as unreachable.
	Timeout  time.Duration
	StateTTL time.Duration

	RequestsPerSec float64
	Burst          int
}

// Provider runs the three-legged OAuth1 handshake against JIRA and
// resolves the signed-in user through the REST API.
type Provider struct {
	cfg       Config
	oauth     *oauth1.Config
	ledger    session.Ledger
	limiter   *rate.Limiter
	transport http.RoundTripper
}

func New(cfg Config, ledger session.Ledger) (*Provider, error) {
	if cfg.ServerURL == "" || cfg.ConsumerKey == "" || cfg.PrivateKey == nil ||
		cfg.RequestTokenURL == "" || cfg.AuthorizeURL == "" || cfg.AccessTokenURL == "" ||
		cfg.CallbackURL == "" {
		return nil, errors.New("jira oauth config missing required fields")
	}
	if ledger == nil {
		return nil, errors.New("jira oauth requires a request token ledger")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Provider{
		cfg: cfg,
		oauth: &oauth1.Config{
			ConsumerKey: cfg.ConsumerKey,
			CallbackURL: cfg.CallbackURL,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: cfg.RequestTokenURL,
				AuthorizeURL:    cfg.AuthorizeURL,
				AccessTokenURL:  cfg.AccessTokenURL,
			},
			Signer: &oauth1.RSASigner{PrivateKey: cfg.PrivateKey},
		},
		ledger:    ledger,
		limiter:   rate.NewLimiter(limit, burst),
		transport: http.DefaultTransport,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// Begin obtains a request token and sends the browser to JIRA's
// authorization page. Nothing is stored unless the token was issued.
func (p *Provider) Begin(ctx context.Context, state provider.StateStore) (string, error) {
	token, secret, err := p.requestToken(ctx)
	if err != nil {
		logger.Error("jira request token failed", map[string]any{
			"error": err,
		})
		return "", err
	}

	if err := p.ledger.Register(ctx, token, p.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("jira: register request token: %w", err)
	}

	if err := state.Set(session.CookieRequestToken, token, p.cfg.StateTTL); err != nil {
		return "", err
	}
	if err := state.Set(session.CookieRequestSecret, secret, p.cfg.StateTTL); err != nil {
		state.Clear(session.CookieRequestToken)
		return "", err
	}

	return p.authorizeURL(token)
}

// Complete exchanges the authorized request token for an access token
// and asks JIRA who the user is. The request token is retired before
// the exchange, so a failed or replayed callback cannot try again.
func (p *Provider) Complete(
	ctx context.Context,
	params url.Values,
	state provider.StateStore,
) (*auth.Identity, error) {

	token, okToken := state.Get(session.CookieRequestToken)
	secret, okSecret := state.Get(session.CookieRequestSecret)
	state.Clear(session.CookieRequestToken)
	state.Clear(session.CookieRequestSecret)

	if !okToken || !okSecret {
		return nil, auth.MissingAttribute(providerName, paramToken)
	}
	if echoed := params.Get(paramToken); echoed != "" && echoed != token {
		return nil, auth.StateMismatch(providerName)
	}

	fresh, err := p.ledger.Consume(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("jira: consume request token: %w", err)
	}
	if !fresh {
		return nil, auth.Rejected(providerName, 0, errors.New("request token already used or expired"))
	}

	verifier := params.Get(paramVerifier)
	if verifier == verifierDenied {
		return nil, auth.Cancelled(providerName)
	}

	accessToken, accessSecret, err := p.accessToken(ctx, token, secret, verifier)
	if err != nil {
		logger.Error("jira access token failed", map[string]any{
			"error": err,
		})
		return nil, err
	}

	me, err := p.myself(ctx, accessToken, accessSecret)
	if err != nil {
		logger.Error("jira myself failed", map[string]any{
			"error": err,
		})
		return nil, err
	}

	logger.Info("jira user resolved", map[string]any{
		"subject":       me.subject(),
		"email_present": me.EmailAddress != "",
	})

	return &auth.Identity{
		Provider:    providerName,
		Subject:     me.subject(),
		Email:       me.EmailAddress,
		DisplayName: me.DisplayName,
	}, nil
}

func (p *Provider) requestToken(ctx context.Context) (string, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", "", auth.Unreachable(providerName, err)
	}

	cfg, rec, cancel := p.recordingConfig(ctx)
	defer cancel()

	token, secret, err := cfg.RequestToken()
	if err != nil {
		return "", "", classify(stageRequestToken, rec, err)
	}
	return token, secret, nil
}

func (p *Provider) accessToken(ctx context.Context, token, secret, verifier string) (string, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", "", auth.Unreachable(providerName, err)
	}

	cfg, rec, cancel := p.recordingConfig(ctx)
	defer cancel()

	accessToken, accessSecret, err := cfg.AccessToken(token, secret, verifier)
	if err != nil {
		return "", "", classify(stageAccessToken, rec, err)
	}
	return accessToken, accessSecret, nil
}

// recordingConfig returns a per-call copy of the OAuth1 config whose
// client records the provider's status code. The token endpoints take
// no context, so the recorder attaches one carrying the call deadline.
func (p *Provider) recordingConfig(ctx context.Context) (*oauth1.Config, *statusRecorder, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	rec := &statusRecorder{ctx: ctx, base: p.transport}
	cfg := *p.oauth
	cfg.HTTPClient = &http.Client{Transport: rec}
	return &cfg, rec, cancel
}

func (p *Provider) authorizeURL(token string) (string, error) {
	u, err := url.Parse(p.cfg.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("jira authorize url: %w", err)
	}
	q := u.Query()
	q.Set(paramToken, token)
	q.Set(paramCallback, p.cfg.CallbackURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
