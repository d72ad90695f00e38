package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"vyhan.org/internal/audit"
	"vyhan.org/internal/auth"
	"vyhan.org/internal/shipment"
	"vyhan.org/internal/tenant"
)

type createShipmentRequest struct {
	DestinationSlug  string  `json:"destination_slug"`
	BusSlug          string  `json:"bus_slug"`
	SenderName       string  `json:"sender_name"`
	SenderPhone      string  `json:"sender_phone"`
	ReceiverName     string  `json:"receiver_name"`
	ReceiverPhone    string  `json:"receiver_phone"`
	GoodsDescription string  `json:"goods_description"`
	Quantity         int     `json:"quantity"`
	WeightKG         float64 `json:"weight_kg"`
	Charge           int64   `json:"charge"`
	PaymentMode      string  `json:"payment_mode"`
	Day              string  `json:"day"`
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

func handleShipmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shipment.ErrNotFound):
		writeError(w, http.StatusNotFound, "Shipment not found")
	case errors.Is(err, shipment.ErrForbidden):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, shipment.ErrInvalidStatus), errors.Is(err, shipment.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shipment.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// businessDay parses the optional booking day. Absent or unparsable values
// default to today.
func businessDay(raw string) time.Time {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return day
}

func (a *API) handleShipmentCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	_, org, branch, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	var req createShipmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh, err := a.shipments.Create(r.Context(), org, branch, shipment.CreateInput{
		DestinationSlug:  req.DestinationSlug,
		BusSlug:          req.BusSlug,
		SenderName:       req.SenderName,
		SenderPhone:      req.SenderPhone,
		ReceiverName:     req.ReceiverName,
		ReceiverPhone:    req.ReceiverPhone,
		GoodsDescription: req.GoodsDescription,
		Quantity:         req.Quantity,
		WeightKG:         req.WeightKG,
		Charge:           req.Charge,
		PaymentMode:      shipment.PaymentMode(req.PaymentMode),
		Day:              businessDay(req.Day),
	})
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "shipment.create", map[string]any{
		"tracking_id": sh.TrackingID,
		"source":      sh.SourceBranchTitle,
		"destination": sh.DestinationTitle,
	})
	writeJSON(w, http.StatusCreated, "Shipment booked", sh)
}

func (a *API) handleShipmentList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}
	list, err := a.shipments.ListForOrganization(r.Context(), org)
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Shipments", list)
}

func (a *API) handleShipmentBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	_, _, branch, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	list, err := a.shipments.ListForBranch(r.Context(), branch)
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Shipments", list)
}

// handleShipmentScoped dispatches /api/shipment/:tracking_id and
// /api/shipment/:tracking_id/update-status.
func (a *API) handleShipmentScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/shipment/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleShipmentGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "update-status":
		a.handleShipmentUpdateStatus(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleShipmentGet(w http.ResponseWriter, r *http.Request, trackingID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	org, ok := a.resolvedOrg(w, r)
	if !ok {
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	view, ok := a.visibilityFor(r.Context(), org, identity)
	if !ok {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}
	sh, err := a.shipments.Get(r.Context(), org, view, trackingID)
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Shipment", sh)
}

// visibilityFor derives what the caller may see: the whole tenant for its
// owning admin, or the caller's own branch.
func (a *API) visibilityFor(ctx context.Context, org *tenant.Organization, identity auth.Identity) (shipment.Visibility, bool) {
	if identity.Permissions.Has(auth.PermOrganizationAdmin) && org.OwnerID == identity.UserID {
		return shipment.Visibility{Organization: true}, true
	}
	if identity.Permissions.Has(auth.PermBranchAdmin) {
		branch, err := a.tenants.BranchByOwner(ctx, identity.UserID)
		if err == nil && branch.OrganizationID == org.ID {
			return shipment.Visibility{BranchID: branch.ID}, true
		}
	}
	return shipment.Visibility{}, false
}

func (a *API) handleShipmentUpdateStatus(w http.ResponseWriter, r *http.Request, trackingID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	_, org, branch, ok := a.callerBranch(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh, err := a.shipments.UpdateStatus(r.Context(), org, branch, trackingID, req.Status, req.Remarks)
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "shipment.status", map[string]any{
		"tracking_id": sh.TrackingID,
		"status":      sh.Status,
		"location":    branch.Title,
	})
	writeJSON(w, http.StatusOK, "Status updated", sh)
}

// handleShipmentTrack is the public lookup; no authentication, tenant
// scoping only when the host resolved to one.
func (a *API) handleShipmentTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	trackingID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/shipment/track/"), "/")
	if trackingID == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	org, _ := tenant.OrganizationFromContext(r.Context())
	sh, err := a.shipments.Track(r.Context(), org, trackingID)
	if err != nil {
		handleShipmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Shipment", map[string]any{
		"tracking_id": sh.TrackingID,
		"status":      sh.Status,
		"source":      sh.SourceBranchTitle,
		"destination": sh.DestinationTitle,
		"history":     sh.History,
	})
}

// handleShipmentStream serves the SSE feed of status events for the
// tenant's admin.
func (a *API) handleShipmentStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	_, org, ok := a.requireOrgAdmin(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.hub.Subscribe(ctx, org.ID)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
