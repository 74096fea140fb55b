package httpapi

import "net/http"

// Role distinguishes which side of the platform a caller is acting as.
// The original's API Gateway + Cognito layer encoded this in a JWT
// claim; this module never parses a token itself (auth is explicitly
// out of scope), so Role is whatever the IdentityExtractor decides.
type Role string

const (
	RoleRequester Role = "requester"
	RoleWorker Role = "worker"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller of one request, the shape every
// handler below reads its subject id and role from.
type Principal struct {
	Subject string
	Role Role
}

// IdentityExtractor resolves the Principal for an inbound request. The
// default HeaderIdentityExtractor reads two plain headers, a stand-in
// for whatever upstream auth (API Gateway authorizer, a session
// middleware, a service mesh sidecar) actually populates; production
// deployments are expected to supply their own.
type IdentityExtractor func(r *http.Request) (*Principal, error)

// HeaderIdentityExtractor trusts X-Subject-Id and X-Role verbatim. It
// exists so the server is runnable standalone (behind a trusted
// reverse proxy that sets these headers) without pulling in a specific
// identity provider's SDK.
func HeaderIdentityExtractor(r *http.Request) (*Principal, error) {
	subject := r.Header.Get("X-Subject-Id")
	role := r.Header.Get("X-Role")
	if subject == "" || role == "" {
		return nil, errMissingIdentity
	}
	return &Principal{Subject: subject, Role: Role(role)}, nil
}
