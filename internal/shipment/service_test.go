package shipment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vyhan.org/internal/tenant"
)

type fixture struct {
	tenants *tenant.InMemory
	org     *tenant.Organization
	source  *tenant.Branch
	dest    *tenant.Branch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	tenants := tenant.NewInMemory()
	tsvc := tenant.NewService(tenants)
	org, err := tsvc.CreateOrganization(ctx, tenant.CreateOrganizationInput{
		Title: "Acme Logistics", Subdomain: "acme", Password: "p",
	})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	source, err := tsvc.AddBranch(ctx, org, tenant.AddBranchInput{Title: "Downtown", Password: "p"})
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	dest, err := tsvc.AddBranch(ctx, org, tenant.AddBranchInput{Title: "Airport", Password: "p"})
	if err != nil {
		t.Fatalf("add destination: %v", err)
	}
	return &fixture{tenants: tenants, org: org, source: source, dest: dest}
}

func validInput(f *fixture) CreateInput {
	return CreateInput{
		DestinationSlug:  f.dest.Slug,
		SenderName:       "Alan Sender",
		SenderPhone:      "+15550001111",
		ReceiverName:     "Rita Receiver",
		ReceiverPhone:    "+15550002222",
		GoodsDescription: "books",
		Quantity:         2,
		WeightKG:         4.5,
		Charge:           1500,
		PaymentMode:      PaySender,
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	got  []*Shipment
	done chan struct{}
}

func (r *recordingNotifier) ShipmentBooked(_ context.Context, sh *Shipment) {
	r.mu.Lock()
	r.got = append(r.got, sh)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func TestCreateBooksShipment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := &recordingNotifier{done: make(chan struct{}, 1)}
	var events []StatusEvent
	svc := NewService(NewInMemory(), f.tenants,
		WithNotifier(notifier),
		WithEvents(func(ev StatusEvent) { events = append(events, ev) }))

	sh, err := svc.Create(ctx, f.org, f.source, validInput(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sh.Status != StatusBooked {
		t.Fatalf("status %s, want BOOKED", sh.Status)
	}
	if sh.TrackingID[0] != 'A' {
		t.Fatalf("tracking id %q should start with destination initial A", sh.TrackingID)
	}
	if len(sh.History) != 1 {
		t.Fatalf("history length %d, want 1", len(sh.History))
	}
	first := sh.History[0]
	if first.Location != "Downtown" || first.Remarks != "Shipment booked successfully." {
		t.Fatalf("initial history entry = %+v", first)
	}
	if sh.Day.IsZero() || !sh.Day.Equal(sh.Day.Truncate(24*time.Hour)) {
		t.Fatalf("day %v not normalized to midnight", sh.Day)
	}
	if len(events) != 1 || events[0].Status != StatusBooked {
		t.Fatalf("events = %+v", events)
	}

	select {
	case <-notifier.done:
	case <-time.After(time.Second):
		t.Fatal("booking notification never fired")
	}
}

func TestCreateUnknownDestinationAndBus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	in := validInput(f)
	in.DestinationSlug = "ghost"
	if _, err := svc.Create(ctx, f.org, f.source, in); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown destination: got %v, want ErrNotFound", err)
	}

	in = validInput(f)
	in.BusSlug = "ghost-bus"
	if _, err := svc.Create(ctx, f.org, f.source, in); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown bus: got %v, want ErrNotFound", err)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	in := validInput(f)
	in.SenderName = "  "
	if _, err := svc.Create(ctx, f.org, f.source, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank sender: got %v, want ErrInvalidInput", err)
	}

	in = validInput(f)
	in.Quantity = 0
	if _, err := svc.Create(ctx, f.org, f.source, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero quantity: got %v, want ErrInvalidInput", err)
	}

	in = validInput(f)
	in.PaymentMode = "CASH"
	if _, err := svc.Create(ctx, f.org, f.source, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad payment mode: got %v, want ErrInvalidInput", err)
	}
}

func TestUpdateStatusRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	sh, err := svc.Create(ctx, f.org, f.source, validInput(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, f.org, f.dest, sh.TrackingID, "IN_TRANSIT", "left the depot")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != StatusInTransit {
		t.Fatalf("status %s, want IN_TRANSIT", updated.Status)
	}
	if len(updated.History) != 2 {
		t.Fatalf("history length %d, want 2", len(updated.History))
	}
	latest := updated.History[0]
	if latest.Status != StatusInTransit || latest.Location != "Airport" || latest.Remarks != "left the depot" {
		t.Fatalf("latest entry = %+v", latest)
	}
	if updated.History[1].Status != StatusBooked {
		t.Fatalf("oldest entry = %+v", updated.History[1])
	}

	// Transitions are permissive, including moving back.
	if _, err := svc.UpdateStatus(ctx, f.org, f.dest, sh.TrackingID, "BOOKED", ""); err != nil {
		t.Fatalf("backward transition: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, f.org, f.dest, sh.TrackingID, "DELIVERED", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unknown status: got %v, want ErrInvalidStatus", err)
	}
}

func TestHistoryServedNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	sh, err := svc.Create(ctx, f.org, f.source, validInput(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, f.org, f.dest, sh.TrackingID, "IN_TRANSIT", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, f.org, f.dest, sh.TrackingID, "ARRIVED", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := svc.Get(ctx, f.org, Visibility{Organization: true}, sh.TrackingID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []Status{StatusArrived, StatusInTransit, StatusBooked}
	if len(got.History) != len(want) {
		t.Fatalf("history length %d, want %d", len(got.History), len(want))
	}
	for i, st := range want {
		if got.History[i].Status != st {
			t.Fatalf("history[%d] = %s, want %s", i, got.History[i].Status, st)
		}
	}

	// The public lookup serves the same ordering.
	tracked, err := svc.Track(ctx, nil, sh.TrackingID)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tracked.History[0].Status != StatusArrived {
		t.Fatalf("tracked history[0] = %s, want ARRIVED", tracked.History[0].Status)
	}
}

func TestGetVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	sh, err := svc.Create(ctx, f.org, f.source, validInput(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, f.org, Visibility{Organization: true}, sh.TrackingID); err != nil {
		t.Fatalf("org admin view: %v", err)
	}
	if _, err := svc.Get(ctx, f.org, Visibility{BranchID: f.source.ID}, sh.TrackingID); err != nil {
		t.Fatalf("source branch view: %v", err)
	}
	if _, err := svc.Get(ctx, f.org, Visibility{BranchID: f.dest.ID}, sh.TrackingID); err != nil {
		t.Fatalf("destination branch view: %v", err)
	}
	if _, err := svc.Get(ctx, f.org, Visibility{BranchID: "unrelated"}, sh.TrackingID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unrelated branch: got %v, want ErrForbidden", err)
	}
}

func TestTrackScopesToTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := NewInMemory()
	svc := NewService(store, f.tenants)

	sh, err := svc.Create(ctx, f.org, f.source, validInput(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Track(ctx, f.org, sh.TrackingID); err != nil {
		t.Fatalf("tenant track: %v", err)
	}
	// No tenant bound: global lookup still finds it.
	if _, err := svc.Track(ctx, nil, sh.TrackingID); err != nil {
		t.Fatalf("global track: %v", err)
	}
	// Another tenant cannot see it.
	other := &tenant.Organization{ID: "other-org"}
	if _, err := svc.Track(ctx, other, sh.TrackingID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant track: got %v, want ErrNotFound", err)
	}
}

func TestListForBranch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(NewInMemory(), f.tenants)

	if _, err := svc.Create(ctx, f.org, f.source, validInput(f)); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := svc.ListForBranch(ctx, f.source)
	if err != nil || len(mine) != 1 {
		t.Fatalf("source list = %v, %v", mine, err)
	}
	theirs, err := svc.ListForBranch(ctx, f.dest)
	if err != nil || len(theirs) != 1 {
		t.Fatalf("destination list = %v, %v", theirs, err)
	}
	all, err := svc.ListForOrganization(ctx, f.org)
	if err != nil || len(all) != 1 {
		t.Fatalf("organization list = %v, %v", all, err)
	}
}
