package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TESTAPI"

// Config is built once at startup and handed by value to every component.
// Nothing reads configuration from globals after Load returns.
type Config struct {
	AppPort     string
	Debug       bool
	RoutePrefix string

	// APIURL is the public base URL of this API; it doubles as the OpenID realm.
	APIURL string
	// UIURL is where browsers land after sign-in, sign-out and failures.
	UIURL string

	DefaultRole     string
	ProviderTimeout time.Duration

	Cookie CookieConfig
	OpenID OpenIDConfig
	Jira   JiraConfig
	OIDC   OIDCConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDSN string
}

type CookieConfig struct {
	Secret        string
	Secure        bool
	Domain        string
	CredentialTTL time.Duration
	HandshakeTTL  time.Duration
}

type OpenIDConfig struct {
	Endpoint        string
	ReturnURL       string
	Mode            string
	NS              string
	ClaimedID       string
	Identity        string
	NSSreg          string
	SregRequired    string
	LogoutEndpoint  string
	VerifyAssertion bool
}

type JiraConfig struct {
	ServerURL       string
	ConsumerKey     string
	PrivateKeyPath  string
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	CallbackURL     string
	RequestsPerSec  float64
	Burst           int
}

// Enabled reports whether the JIRA sign-in type is configured.
func (j JiraConfig) Enabled() bool {
	return j.ConsumerKey != "" && j.PrivateKeyPath != ""
}

type OIDCConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	PublicAuthURL string
}

func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

// SetDefaults registers every key so that AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "8000")
	v.SetDefault("debug", false)
	v.SetDefault("route_prefix", "/api/v1")
	v.SetDefault("api_url", "http://localhost:8000/api/v1")
	v.SetDefault("ui_url", "http://localhost:8000")
	v.SetDefault("default_role", "default")
	v.SetDefault("provider_timeout", 10*time.Second)

	v.SetDefault("cookie.secret", "")
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.credential_ttl", 30*24*time.Hour)
	v.SetDefault("cookie.handshake_ttl", 10*time.Minute)

	v.SetDefault("openid.endpoint", "https://openstackid.org/accounts/openid2")
	v.SetDefault("openid.return_url", "")
	v.SetDefault("openid.mode", "checkid_setup")
	v.SetDefault("openid.ns", "http://specs.openid.net/auth/2.0")
	v.SetDefault("openid.claimed_id", "http://specs.openid.net/auth/2.0/identifier_select")
	v.SetDefault("openid.identity", "http://specs.openid.net/auth/2.0/identifier_select")
	v.SetDefault("openid.ns_sreg", "http://openid.net/extensions/sreg/1.1")
	v.SetDefault("openid.sreg_required", "email,fullname")
	v.SetDefault("openid.logout_endpoint", "https://openstackid.org/accounts/user/logout")
	v.SetDefault("openid.verify_assertion", false)

	v.SetDefault("jira.server_url", "")
	v.SetDefault("jira.consumer_key", "")
	v.SetDefault("jira.private_key_path", "")
	v.SetDefault("jira.request_token_url", "")
	v.SetDefault("jira.authorize_url", "")
	v.SetDefault("jira.access_token_url", "")
	v.SetDefault("jira.callback_url", "")
	v.SetDefault("jira.requests_per_sec", 5.0)
	v.SetDefault("jira.burst", 10)

	v.SetDefault("oidc.issuer", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.redirect_url", "")
	v.SetDefault("oidc.public_auth_url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.dsn", "")
}

// New returns a viper instance wired for TESTAPI_* environment variables,
// e.g. TESTAPI_JIRA_CONSUMER_KEY for jira.consumer_key.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func Load(v *viper.Viper) (Config, error) {
	apiURL := strings.TrimRight(v.GetString("api_url"), "/")

	cfg := Config{
		AppPort:     v.GetString("app_port"),
		Debug:       v.GetBool("debug"),
		RoutePrefix: strings.TrimRight(v.GetString("route_prefix"), "/"),

		APIURL: apiURL,
		UIURL:  strings.TrimRight(v.GetString("ui_url"), "/"),

		DefaultRole:     v.GetString("default_role"),
		ProviderTimeout: v.GetDuration("provider_timeout"),

		Cookie: CookieConfig{
			Secret:        v.GetString("cookie.secret"),
			Secure:        v.GetBool("cookie.secure"),
			Domain:        v.GetString("cookie.domain"),
			CredentialTTL: v.GetDuration("cookie.credential_ttl"),
			HandshakeTTL:  v.GetDuration("cookie.handshake_ttl"),
		},

		OpenID: OpenIDConfig{
			Endpoint:        v.GetString("openid.endpoint"),
			ReturnURL:       orDefault(v.GetString("openid.return_url"), apiURL+"/auth/signin_return"),
			Mode:            v.GetString("openid.mode"),
			NS:              v.GetString("openid.ns"),
			ClaimedID:       v.GetString("openid.claimed_id"),
			Identity:        v.GetString("openid.identity"),
			NSSreg:          v.GetString("openid.ns_sreg"),
			SregRequired:    v.GetString("openid.sreg_required"),
			LogoutEndpoint:  v.GetString("openid.logout_endpoint"),
			VerifyAssertion: v.GetBool("openid.verify_assertion"),
		},

		Jira: JiraConfig{
			ServerURL:       strings.TrimRight(v.GetString("jira.server_url"), "/"),
			ConsumerKey:     v.GetString("jira.consumer_key"),
			PrivateKeyPath:  v.GetString("jira.private_key_path"),
			RequestTokenURL: v.GetString("jira.request_token_url"),
			AuthorizeURL:    v.GetString("jira.authorize_url"),
			AccessTokenURL:  v.GetString("jira.access_token_url"),
			CallbackURL:     orDefault(v.GetString("jira.callback_url"), apiURL+"/auth/signin_return_jira"),
			RequestsPerSec:  v.GetFloat64("jira.requests_per_sec"),
			Burst:           v.GetInt("jira.burst"),
		},

		OIDC: OIDCConfig{
			Issuer:        v.GetString("oidc.issuer"),
			ClientID:      v.GetString("oidc.client_id"),
			ClientSecret:  v.GetString("oidc.client_secret"),
			RedirectURL:   orDefault(v.GetString("oidc.redirect_url"), apiURL+"/auth/signin_return_oidc"),
			PublicAuthURL: v.GetString("oidc.public_auth_url"),
		},

		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),

		DatabaseDSN: v.GetString("database.dsn"),
	}

	// JIRA's OAuth endpoints hang off the server URL unless overridden.
	if cfg.Jira.ServerURL != "" {
		base := cfg.Jira.ServerURL + "/plugins/servlet/oauth"
		cfg.Jira.RequestTokenURL = orDefault(cfg.Jira.RequestTokenURL, base+"/request-token")
		cfg.Jira.AuthorizeURL = orDefault(cfg.Jira.AuthorizeURL, base+"/authorize")
		cfg.Jira.AccessTokenURL = orDefault(cfg.Jira.AccessTokenURL, base+"/access-token")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if len(c.Cookie.Secret) < 32 {
		errs = append(errs, errors.New("cookie.secret must be at least 32 bytes"))
	}
	for name, raw := range map[string]string{
		"api_url":         c.APIURL,
		"ui_url":          c.UIURL,
		"openid.endpoint": c.OpenID.Endpoint,
	} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.DefaultRole == "" {
		errs = append(errs, errors.New("default_role must not be empty"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("provider_timeout must be positive"))
	}
	if c.Jira.Enabled() && (c.Jira.RequestTokenURL == "" || c.Jira.AuthorizeURL == "" ||
		c.Jira.AccessTokenURL == "" || c.Jira.ServerURL == "") {
		errs = append(errs, errors.New("jira: server_url or explicit oauth endpoints are required"))
	}

	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
