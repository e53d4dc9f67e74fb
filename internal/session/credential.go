package session

import (
	"errors"
	"time"

	"testapi/internal/auth"
)

// WriteCredential replaces whatever credential the client holds with p.
// Both cookies are cleared first so a failed second write cannot leave
// a new subject paired with an old role.
func WriteCredential(j *Jar, p auth.Principal, ttl time.Duration) error {
	if p.Subject == "" || p.Role == "" {
		return errors.New("session: credential requires subject and role")
	}

	ClearCredential(j)
	if err := j.Set(CookieSubject, p.Subject, ttl); err != nil {
		ClearCredential(j)
		return err
	}
	if err := j.Set(CookieRole, string(p.Role), ttl); err != nil {
		ClearCredential(j)
		return err
	}
	return nil
}

// ReadCredential returns the caller, or nil for anonymous callers. A
// credential with only one of its two cookies is treated as absent.
func ReadCredential(j *Jar) *auth.Principal {
	subject, ok := j.Get(CookieSubject)
	if !ok || subject == "" {
		return nil
	}
	role, ok := j.Get(CookieRole)
	if !ok || role == "" {
		return nil
	}
	return &auth.Principal{Subject: subject, Role: auth.Role(role)}
}

func ClearCredential(j *Jar) {
	j.Clear(CookieSubject)
	j.Clear(CookieRole)
}
