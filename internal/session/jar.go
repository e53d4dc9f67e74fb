package session

import (
	"net/http"
	"time"
)

// Jar is the per-request view of the signed cookies. Writes are buffered
// and emitted once by Flush, so clearing and re-setting a cookie within
// one request produces a single Set-Cookie header for it.
type Jar struct {
	r      *http.Request
	signer *Signer
	opts   CookieOptions

	pending map[string]pendingCookie
	order   []string
}

type pendingCookie struct {
	value   string
	signed  string
	expires time.Time
	cleared bool
}

func NewJar(r *http.Request, signer *Signer, opts CookieOptions) *Jar {
	return &Jar{
		r:       r,
		signer:  signer,
		opts:    opts,
		pending: make(map[string]pendingCookie),
	}
}

// Get returns the verified value of a cookie. Pending writes in this
// request take precedence over what the client sent.
func (j *Jar) Get(name string) (string, bool) {
	if p, ok := j.pending[name]; ok {
		if p.cleared {
			return "", false
		}
		return p.value, true
	}

	c, err := j.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	v, err := j.signer.Verify(name, c.Value)
	if err != nil {
		return "", false
	}
	return v, true
}

func (j *Jar) Set(name, value string, ttl time.Duration) error {
	signed, err := j.signer.Sign(name, value, ttl)
	if err != nil {
		return err
	}
	j.put(name, pendingCookie{
		value:   value,
		signed:  signed,
		expires: j.signer.now().Add(ttl),
	})
	return nil
}

func (j *Jar) Clear(name string) {
	j.put(name, pendingCookie{cleared: true})
}

func (j *Jar) put(name string, p pendingCookie) {
	if _, ok := j.pending[name]; !ok {
		j.order = append(j.order, name)
	}
	j.pending[name] = p
}

// Flush writes buffered cookies in first-touched order. It must run
// before the response status is written.
func (j *Jar) Flush(w http.ResponseWriter) {
	for _, name := range j.order {
		p := j.pending[name]
		if p.cleared {
			ClearCookie(w, name, j.opts)
			continue
		}
		SetCookie(w, name, p.signed, p.expires, j.opts)
	}
	j.pending = make(map[string]pendingCookie)
	j.order = nil
}
