package jira

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"testapi/internal/auth"
)

// statusRecorder lets us tell "JIRA said no" apart from "JIRA never
// answered", which the OAuth1 library folds into one error string.
type statusRecorder struct {
	ctx  context.Context
	base http.RoundTripper

	mu     sync.Mutex
	status int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	if s.ctx != nil {
		req = req.WithContext(s.ctx)
	}
	resp, err := s.base.RoundTrip(req)
	if err == nil {
		s.mu.Lock()
		s.status = resp.StatusCode
		s.mu.Unlock()
	}
	return resp, err
}

func (s *statusRecorder) lastStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func classify(stage string, rec *statusRecorder, err error) error {
	cause := fmt.Errorf("%s: %w", stage, err)

	status := rec.lastStatus()
	if status == 0 || isTimeout(err) {
		return auth.Unreachable(providerName, cause)
	}
	return auth.Rejected(providerName, status, cause)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
