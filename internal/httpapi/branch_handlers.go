package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vyhan.org/internal/audit"
	"vyhan.org/internal/tenant"
)

func (a *API) handleBranchAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	var req addBranchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	branch, err := a.tenants.AddBranch(r.Context(), org, tenant.AddBranchInput{
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
		Password:    req.Password,
	})
	if err != nil {
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.create", map[string]any{
		"branch_slug": branch.Slug,
	})
	writeJSON(w, http.StatusCreated, "Branch created", branch)
}

func (a *API) handleBranchList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	branches, err := a.tenants.ListBranches(r.Context(), org)
	if err != nil {
		handleTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Branches", branches)
}

func (a *API) handleBranchMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, _, branch, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, "Branch", branch)
}

func (a *API) handleBranchOthers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, org, _, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	others, err := a.tenants.OtherBranches(r.Context(), org, identity.UserID)
	if err != nil {
		handleTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Branches", others)
}

func (a *API) handleDayEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, _, branch, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	advanced, err := a.tenants.DayEnd(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, tenant.ErrConflict) {
			writeError(w, http.StatusConflict, "Day end already processed today")
			return
		}
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.day_end", map[string]any{
		"branch_slug":      branch.Slug,
		"operational_date": advanced.CurrentOperationalDate,
	})
	writeJSON(w, http.StatusOK, "Day end processed", advanced)
}

// handleBranchScoped dispatches /api/branch/:slug/delete.
func (a *API) handleBranchScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/branch/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "delete" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodPost, http.MethodDelete)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	slug := parts[0]
	if err := a.tenants.DeleteBranch(r.Context(), org, slug); err != nil {
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "branch.delete", map[string]any{
		"branch_slug": slug,
	})
	writeJSON(w, http.StatusOK, "Branch deleted", nil)
}
