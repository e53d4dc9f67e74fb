package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dghubble/oauth1"

	"testapi/internal/auth"
)

const myselfPath = "/rest/api/2/myself"

// user is the part of JIRA's /myself response we keep.
type user struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// subject prefers the login name, which is what the UI shows as the
// owner of uploaded results.
func (u *user) subject() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Key != "":
		return u.Key
	default:
		return u.AccountID
	}
}

func (p *Provider) myself(ctx context.Context, token, secret string) (*user, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, auth.Unreachable(providerName, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Transport: p.transport})
	client := p.oauth.Client(ctx, oauth1.NewToken(token, secret))
	client.Timeout = p.cfg.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ServerURL+myselfPath, nil)
	if err != nil {
		return nil, fmt.Errorf("jira: build myself request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, auth.Unreachable(providerName, fmt.Errorf("%s: %w", stageMyself, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, auth.Rejected(providerName, resp.StatusCode, errors.New(stageMyself))
	}

	var u user
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		if isTimeout(err) {
			return nil, auth.Unreachable(providerName, fmt.Errorf("%s: %w", stageMyself, err))
		}
		return nil, auth.Rejected(providerName, resp.StatusCode, fmt.Errorf("%s: decode: %w", stageMyself, err))
	}
	if u.subject() == "" {
		return nil, auth.MissingAttribute(providerName, "name")
	}
	return &u, nil
}
