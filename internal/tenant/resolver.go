package tenant

import (
	"context"
	"strings"
)

// SubdomainFromHost extracts the candidate subdomain key from a request
// host. The port is stripped first; the leftmost label is a candidate only
// when the host has at least three dot-separated labels (two dots), e.g.
// "acme.vyhan.org" yields "acme" while "vyhan.org" and "localhost" do not.
func SubdomainFromHost(host string) (string, bool) {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if strings.Count(host, ".") < 2 {
		return "", false
	}
	label := host[:strings.IndexByte(host, '.')]
	if label == "" {
		return "", false
	}
	return label, true
}

// Resolver maps inbound hosts to organizations.
type Resolver struct {
	orgs OrganizationStore
}

// NewResolver constructs a Resolver over the organization store.
func NewResolver(orgs OrganizationStore) *Resolver {
	return &Resolver{orgs: orgs}
}

// Resolve returns the organization for the host's subdomain, with owner and
// branches preloaded. ErrNotFound covers both a missing candidate label and
// an unknown subdomain; callers decide whether the path may proceed without
// a tenant.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Organization, error) {
	subdomain, ok := SubdomainFromHost(host)
	if !ok {
		return nil, ErrNotFound
	}
	return r.orgs.FindBySubdomain(ctx, subdomain)
}

type organizationContextKey struct{}

// ContextWithOrganization binds the resolved tenant into the request context.
func ContextWithOrganization(ctx context.Context, org *Organization) context.Context {
	if org == nil {
		return ctx
	}
	return context.WithValue(ctx, organizationContextKey{}, org)
}

// OrganizationFromContext returns the tenant bound by the resolver, if any.
func OrganizationFromContext(ctx context.Context) (*Organization, bool) {
	if ctx == nil {
		return nil, false
	}
	org, ok := ctx.Value(organizationContextKey{}).(*Organization)
	if !ok || org == nil {
		return nil, false
	}
	return org, true
}
