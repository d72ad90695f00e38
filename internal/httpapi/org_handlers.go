package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"vyhan.org/internal/audit"
	"vyhan.org/internal/auth"
	"vyhan.org/internal/tenant"
)

const bootstrapKeyHeader = "X-Api-Key"

type createOrganizationRequest struct {
	Title       string         `json:"title"`
	Subdomain   string         `json:"subdomain"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Password    string         `json:"password"`
}

type addBranchRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Password    string         `json:"password"`
}

// resolvedOrg returns the tenant bound by the middleware.
func (a *API) resolvedOrg(w http.ResponseWriter, r *http.Request) (*tenant.Organization, bool) {
	org, ok := tenant.OrganizationFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "Organization not found")
		return nil, false
	}
	return org, true
}

// requireOrgAdmin layers the ownership check on top of the permission: the
// caller must hold the organization-admin permission and own the resolved
// tenant.
func (a *API) requireOrgAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, *tenant.Organization, bool) {
	org, ok := a.resolvedOrg(w, r)
	if !ok {
		return auth.Identity{}, nil, false
	}
	identity, ok := a.requireIdentity(w, r, auth.PermOrganizationAdmin)
	if !ok {
		return auth.Identity{}, nil, false
	}
	if org.OwnerID != identity.UserID {
		writeError(w, http.StatusForbidden, "permission denied")
		return auth.Identity{}, nil, false
	}
	return identity, org, true
}

// callerBranch resolves the authenticated branch admin's own branch within
// the current tenant.
func (a *API) callerBranch(w http.ResponseWriter, r *http.Request) (auth.Identity, *tenant.Organization, *tenant.Branch, bool) {
	org, ok := a.resolvedOrg(w, r)
	if !ok {
		return auth.Identity{}, nil, nil, false
	}
	identity, ok := a.requireIdentity(w, r, auth.PermBranchAdmin)
	if !ok {
		return auth.Identity{}, nil, nil, false
	}
	branch, err := a.tenants.BranchByOwner(r.Context(), identity.UserID)
	if err != nil || branch.OrganizationID != org.ID {
		writeError(w, http.StatusForbidden, "permission denied")
		return auth.Identity{}, nil, nil, false
	}
	return identity, org, branch, true
}

func handleTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, tenant.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleOrganizationCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	key := r.Header.Get(bootstrapKeyHeader)
	if a.bootstrapKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.bootstrapKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.tenants.CreateOrganization(r.Context(), tenant.CreateOrganizationInput{
		Title:       req.Title,
		Subdomain:   req.Subdomain,
		Description: req.Description,
		Metadata:    req.Metadata,
		Password:    req.Password,
	})
	if err != nil {
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.create", map[string]any{
		"organization_id": org.ID,
		"subdomain":       org.Subdomain,
	})
	writeJSON(w, http.StatusCreated, "Organization created", org)
}

func (a *API) handleOrganizationInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	org, ok := a.resolvedOrg(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, "Organization", map[string]any{
		"slug":        org.Slug,
		"subdomain":   org.Subdomain,
		"title":       org.Title,
		"description": org.Description,
	})
}
