package httpapi

import (
	"net/http"
	"strings"

	"vyhan.org/internal/audit"
	"vyhan.org/internal/tenant"
)

type addBusRequest struct {
	BusNumber     string         `json:"bus_number"`
	PreferredDays []int          `json:"preferred_days"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *API) handleBusAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	var req addBusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bus, err := a.tenants.AddBus(r.Context(), org, tenant.AddBusInput{
		BusNumber:     req.BusNumber,
		PreferredDays: req.PreferredDays,
		Description:   req.Description,
		Metadata:      req.Metadata,
	})
	if err != nil {
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "bus.create", map[string]any{
		"bus_number": bus.BusNumber,
	})
	writeJSON(w, http.StatusCreated, "Bus created", bus)
}

func (a *API) handleBusList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	buses, err := a.tenants.ListBuses(r.Context(), org)
	if err != nil {
		handleTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Buses", buses)
}

// handleBusAvailable lists buses running today; branch admins use it when
// booking.
func (a *API) handleBusAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, org, _, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	buses, err := a.tenants.AvailableBuses(r.Context(), org)
	if err != nil {
		handleTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Available buses", buses)
}

// handleBusScoped dispatches /api/bus/:slug/delete.
func (a *API) handleBusScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/bus/"), "/")
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
	if err := a.tenants.DeleteBus(r.Context(), org, slug); err != nil {
		handleTenantError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "bus.delete", map[string]any{
		"bus_slug": slug,
	})
	writeJSON(w, http.StatusOK, "Bus deleted", nil)
}
