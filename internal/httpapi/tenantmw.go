package httpapi

import (
	"net/http"
	"strings"

	"vyhan.org/internal/tenant"
)

const organizationCookie = "organization_slug"

// Paths served without a resolved tenant: the administrative surface, the
// unauthenticated organization bootstrap, and the operational endpoints.
var tenantExemptPaths = []string{
	"/api/organization/create",
	"/healthz",
	"/readyz",
	"/metrics",
}
var tenantExemptPrefixes = []string{
	"/admin",
}

// Paths that use the tenant when the host resolves but still work without
// one: the public tracking lookup degrades to a global search.
var tenantOptionalPrefixes = []string{
	"/api/shipment/track/",
}

// withTenant resolves the request host to an organization and binds it into
// the context. Unresolved tenants get 404 unless the path is exempt.
func (a *API) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isTenantExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		org, err := a.resolver.Resolve(r.Context(), r.Host)
		if err != nil {
			if isTenantOptional(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusNotFound, "Organization not found")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     organizationCookie,
			Value:    org.Slug,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		ctx := tenant.ContextWithOrganization(r.Context(), org)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isTenantExempt(path string) bool {
	for _, p := range tenantExemptPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range tenantExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isTenantOptional(path string) bool {
	for _, prefix := range tenantOptionalPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
