package shipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vyhan.org/internal/ids"
	"vyhan.org/internal/obs"
	"vyhan.org/internal/tenant"
)

const bookedRemarks = "Shipment booked successfully."

// Notifier delivers out-of-band booking notifications. Implementations must
// not block the booking path; failures are theirs to log.
type Notifier interface {
	ShipmentBooked(ctx context.Context, sh *Shipment)
}

// Service is the shipment lifecycle engine.
type Service struct {
	store    Store
	tenants  tenant.Store
	notifier Notifier
	events   func(StatusEvent)
	now      func() time.Time
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithNotifier attaches the booking notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithEvents attaches a sink receiving every status event.
func WithEvents(fn func(StatusEvent)) ServiceOption {
	return func(s *Service) { s.events = fn }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the lifecycle engine over the shipment store and the
// tenant store used to resolve destinations and buses.
func NewService(store Store, tenants tenant.Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, tenants: tenants, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries booking parameters. Day is normalized by the caller;
// a zero Day defaults to today.
type CreateInput struct {
	DestinationSlug  string
	BusSlug          string
	SenderName       string
	SenderPhone      string
	ReceiverName     string
	ReceiverPhone    string
	GoodsDescription string
	Quantity         int
	WeightKG         float64
	Charge           int64
	PaymentMode      PaymentMode
	Day              time.Time
}

// Create books a shipment from the caller's branch. The destination branch
// is resolved by slug within the organization; an optional bus likewise. The
// shipment starts in BOOKED with its first history entry at the source
// branch, and sender/receiver notifications go out without blocking the
// response.
func (s *Service) Create(ctx context.Context, org *tenant.Organization, source *tenant.Branch, in CreateInput) (*Shipment, error) {
	if strings.TrimSpace(in.SenderName) == "" || strings.TrimSpace(in.ReceiverName) == "" {
		return nil, fmt.Errorf("%w: sender and receiver names are required", ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if _, err := ParsePaymentMode(string(in.PaymentMode)); err != nil {
		return nil, err
	}
	dest, err := s.tenants.Branches().FindBySlug(ctx, org.ID, in.DestinationSlug)
	if err != nil {
		return nil, fmt.Errorf("%w: destination branch %q", ErrNotFound, in.DestinationSlug)
	}
	var busID string
	if in.BusSlug != "" {
		bus, err := s.tenants.Buses().FindBySlug(ctx, org.ID, in.BusSlug)
		if err != nil {
			return nil, fmt.Errorf("%w: bus %q", ErrNotFound, in.BusSlug)
		}
		busID = bus.ID
	}

	now := s.now().UTC()
	day := in.Day
	if day.IsZero() {
		day = now
	}
	y, m, d := day.UTC().Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	sh := &Shipment{
		ID:                  ids.New(),
		OrganizationID:      org.ID,
		SourceBranchID:      source.ID,
		SourceBranchTitle:   source.Title,
		DestinationBranchID: dest.ID,
		DestinationTitle:    dest.Title,
		BusID:               busID,
		SenderName:          strings.TrimSpace(in.SenderName),
		SenderPhone:         strings.TrimSpace(in.SenderPhone),
		ReceiverName:        strings.TrimSpace(in.ReceiverName),
		ReceiverPhone:       strings.TrimSpace(in.ReceiverPhone),
		GoodsDescription:    strings.TrimSpace(in.GoodsDescription),
		Quantity:            in.Quantity,
		WeightKG:            in.WeightKG,
		Charge:              in.Charge,
		PaymentMode:         in.PaymentMode,
		Status:              StatusBooked,
		Day:                 day,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	sh.History = []*HistoryEntry{{
		ID:         ids.New(),
		ShipmentID: sh.ID,
		Status:     StatusBooked,
		Location:   source.Title,
		Remarks:    bookedRemarks,
		CreatedAt:  now,
	}}

	// Tracking ids carry six random digits; retry a few times on the rare
	// collision within the store's unique index.
	for attempt := 0; ; attempt++ {
		tid, err := NewTrackingID(dest.Title)
		if err != nil {
			return nil, err
		}
		sh.TrackingID = tid
		err = s.store.Create(ctx, sh)
		if err == nil {
			break
		}
		if errors.Is(err, ErrConflict) && attempt < 4 {
			continue
		}
		return nil, err
	}

	obs.ObserveTransition(string(StatusBooked))
	s.publish(sh, sh.History[0])
	if s.notifier != nil {
		go s.notifier.ShipmentBooked(context.WithoutCancel(ctx), sh)
	}
	return sh, nil
}

// UpdateStatus moves a shipment to any known status and records a history
// entry located at the caller's branch. Source/destination ownership is not
// checked; any branch of the organization may record movement.
func (s *Service) UpdateStatus(ctx context.Context, org *tenant.Organization, caller *tenant.Branch, trackingID, rawStatus, remarks string) (*Shipment, error) {
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	sh, err := s.store.FindInOrganization(ctx, org.ID, trackingID)
	if err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		ID:         ids.New(),
		ShipmentID: sh.ID,
		Status:     status,
		Location:   caller.Title,
		Remarks:    strings.TrimSpace(remarks),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.UpdateStatus(ctx, sh.ID, status, entry); err != nil {
		return nil, err
	}
	sh.Status = status
	sh.UpdatedAt = entry.CreatedAt
	sh.History = append([]*HistoryEntry{entry}, sh.History...)

	obs.ObserveTransition(string(status))
	s.publish(sh, entry)
	return sh, nil
}

// Visibility describes what the caller may see. Organization admins see all
// shipments of the tenant; branch admins only those touching their branch.
type Visibility struct {
	Organization bool
	BranchID     string
}

// Get retrieves a shipment within the organization subject to visibility.
func (s *Service) Get(ctx context.Context, org *tenant.Organization, view Visibility, trackingID string) (*Shipment, error) {
	sh, err := s.store.FindInOrganization(ctx, org.ID, trackingID)
	if err != nil {
		return nil, err
	}
	if view.Organization {
		return sh, nil
	}
	if view.BranchID != "" && (sh.SourceBranchID == view.BranchID || sh.DestinationBranchID == view.BranchID) {
		return sh, nil
	}
	return nil, ErrForbidden
}

// ListForOrganization returns every shipment of the tenant.
func (s *Service) ListForOrganization(ctx context.Context, org *tenant.Organization) ([]*Shipment, error) {
	return s.store.ListByOrganization(ctx, org.ID)
}

// ListForBranch returns shipments where the branch is source or destination.
func (s *Service) ListForBranch(ctx context.Context, branch *tenant.Branch) ([]*Shipment, error) {
	return s.store.ListByBranch(ctx, branch.ID)
}

// Track is the public lookup. With a tenant bound it is scoped to that
// organization; without one it degrades to a global search.
func (s *Service) Track(ctx context.Context, org *tenant.Organization, trackingID string) (*Shipment, error) {
	if org != nil {
		return s.store.FindInOrganization(ctx, org.ID, trackingID)
	}
	return s.store.FindByTrackingID(ctx, trackingID)
}

func (s *Service) publish(sh *Shipment, entry *HistoryEntry) {
	if s.events == nil {
		return
	}
	s.events(StatusEvent{
		TrackingID:     sh.TrackingID,
		OrganizationID: sh.OrganizationID,
		Status:         entry.Status,
		Location:       entry.Location,
		Remarks:        entry.Remarks,
		OccurredAt:     entry.CreatedAt,
	})
}
