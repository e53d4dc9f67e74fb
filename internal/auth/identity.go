package auth

// Identity represents a normalized external authentication identity
// returned by a sign-in provider. It contains facts only, no decisions.
type Identity struct {
	Provider    string // e.g. "openstack", "jira"
	Subject     string // provider-issued stable identifier (claimed id, JIRA user name, sub)
	Email       string
	DisplayName string
}

// Role decides which records a caller may read.
type Role string

const (
	RoleDefault  Role = "default"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// Principal is the caller as recovered from the session credential.
type Principal struct {
	Subject string
	Role    Role
}

// CanReview reports whether the principal may see every non-private record.
func (p *Principal) CanReview() bool {
	return p != nil && p.Role == RoleReviewer
}
