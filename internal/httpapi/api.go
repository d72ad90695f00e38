package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"vyhan.org/internal/auth"
	"vyhan.org/internal/notify"
	"vyhan.org/internal/obs"
	"vyhan.org/internal/shipment"
	"vyhan.org/internal/stream"
	"vyhan.org/internal/tenant"
)

// ReadyProbe checks downstream readiness (database ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	resolver   *tenant.Resolver
	tenants    *tenant.Service
	shipments  *shipment.Service
	inbox      *notify.Inbox
	hub        *stream.Hub
	readyProbe ReadyProbe
	// bootstrapKey authenticates the organization bootstrap endpoint; it
	// is the deployment secret, not a user credential.
	bootstrapKey string
	version      string
}

// Config wires the API's collaborators.
type Config struct {
	Auth         *auth.Service
	Resolver     *tenant.Resolver
	Tenants      *tenant.Service
	Shipments    *shipment.Service
	Inbox        *notify.Inbox
	Hub          *stream.Hub
	ReadyProbe   ReadyProbe
	BootstrapKey string
	Version      string
}

// New builds the router.
func New(cfg Config) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         cfg.Auth,
		resolver:     cfg.Resolver,
		tenants:      cfg.Tenants,
		shipments:    cfg.Shipments,
		inbox:        cfg.Inbox,
		hub:          cfg.Hub,
		readyProbe:   cfg.ReadyProbe,
		bootstrapKey: cfg.BootstrapKey,
		version:      cfg.Version,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/profile", a.handleProfile)

	a.mux.HandleFunc("/api/organization/create", a.handleOrganizationCreate)
	a.mux.HandleFunc("/api/organization/info", a.handleOrganizationInfo)

	a.mux.HandleFunc("/api/branch/add", a.handleBranchAdd)
	a.mux.HandleFunc("/api/branch/list", a.handleBranchList)
	a.mux.HandleFunc("/api/branch/me", a.handleBranchMe)
	a.mux.HandleFunc("/api/branch/get_other_braches", a.handleBranchOthers)
	a.mux.HandleFunc("/api/branch/day_end", a.handleDayEnd)
	a.mux.HandleFunc("/api/branch/", a.handleBranchScoped)

	a.mux.HandleFunc("/api/bus/add", a.handleBusAdd)
	a.mux.HandleFunc("/api/bus/list", a.handleBusList)
	a.mux.HandleFunc("/api/bus/available", a.handleBusAvailable)
	a.mux.HandleFunc("/api/bus/", a.handleBusScoped)

	a.mux.HandleFunc("/api/shipment/create", a.handleShipmentCreate)
	a.mux.HandleFunc("/api/shipment/list", a.handleShipmentList)
	a.mux.HandleFunc("/api/shipment/branch", a.handleShipmentBranch)
	a.mux.HandleFunc("/api/shipment/stream", a.handleShipmentStream)
	a.mux.HandleFunc("/api/shipment/track/", a.handleShipmentTrack)
	a.mux.HandleFunc("/api/shipment/", a.handleShipmentScoped)

	a.mux.HandleFunc("/api/messages", a.handleMessages)
	a.mux.HandleFunc("/api/messages/", a.handleMessageScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain: tenant resolution, then
// authentication, wrapped in metrics, body limits, logging, request ids.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = a.withTenant(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "ok", map[string]any{
		"service": "vyhan-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, "ready", nil)
}
