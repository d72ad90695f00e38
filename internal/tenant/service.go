package tenant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vyhan.org/internal/auth"
	"vyhan.org/internal/ids"
)

// Service implements tenant administration: organization bootstrap, branch
// and bus management, and the branch day-end operation.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the tenant service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganizationInput carries the bootstrap parameters.
type CreateOrganizationInput struct {
	Title       string
	Subdomain   string
	Description string
	Metadata    map[string]any
	Password    string
}

// CreateOrganization provisions a tenant together with its owner user, who
// is granted the organization-admin permission. The owner's username is the
// organization slug.
func (s *Service) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*Organization, error) {
	title := strings.TrimSpace(in.Title)
	subdomain := strings.ToLower(strings.TrimSpace(in.Subdomain))
	if title == "" || subdomain == "" {
		return nil, fmt.Errorf("%w: title and subdomain are required", ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: owner password is required", ErrInvalidInput)
	}
	if _, err := s.store.Organizations().FindBySubdomain(ctx, subdomain); err == nil {
		return nil, fmt.Errorf("%w: subdomain %q is taken", ErrConflict, subdomain)
	}

	now := s.now().UTC()
	org := &Organization{
		ID:          ids.New(),
		Slug:        ids.New(),
		Subdomain:   subdomain,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}

	owner, err := s.createOwnerUser(ctx, org.Slug, in.Password, auth.PermOrganizationAdmin)
	if err != nil {
		return nil, err
	}
	org.OwnerID = owner.ID
	org.Owner = owner
	if err := s.store.Organizations().Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// AddBranchInput carries branch creation parameters.
type AddBranchInput struct {
	Title       string
	Description string
	Metadata    map[string]any
	Password    string
}

// AddBranch creates a branch and its owner user with the branch-admin
// permission. The owner's username is the branch slug.
func (s *Service) AddBranch(ctx context.Context, org *Organization, in AddBranchInput) (*Branch, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: branch title is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: owner password is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	branch := &Branch{
		ID:                     ids.New(),
		Slug:                   ids.New(),
		OrganizationID:         org.ID,
		Title:                  title,
		Description:            strings.TrimSpace(in.Description),
		Metadata:               in.Metadata,
		CurrentOperationalDate: midnightUTC(now),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.Branches().Create(ctx, branch); err != nil {
		return nil, err
	}

	owner, err := s.createOwnerUser(ctx, branch.Slug, in.Password, auth.PermBranchAdmin)
	if err != nil {
		return nil, err
	}
	branch.OwnerID = owner.ID
	branch.Owner = owner
	if err := s.store.Branches().Update(ctx, branch); err != nil {
		return nil, err
	}
	return branch, nil
}

// ListBranches returns all branches of the organization with owners.
func (s *Service) ListBranches(ctx context.Context, org *Organization) ([]*Branch, error) {
	return s.store.Branches().ListByOrganization(ctx, org.ID)
}

// OtherBranches lists the organization's branches excluding the one owned
// by the given user; branch admins use it to pick booking destinations.
func (s *Service) OtherBranches(ctx context.Context, org *Organization, ownerID string) ([]*Branch, error) {
	branches, err := s.store.Branches().ListByOrganization(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*Branch, 0, len(branches))
	for _, b := range branches {
		if b.OwnerID != ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

// BranchByOwner returns the branch owned by the user.
func (s *Service) BranchByOwner(ctx context.Context, ownerID string) (*Branch, error) {
	return s.store.Branches().FindByOwner(ctx, ownerID)
}

// DeleteBranch removes a branch by slug within the organization.
func (s *Service) DeleteBranch(ctx context.Context, org *Organization, slug string) error {
	return s.store.Branches().Delete(ctx, org.ID, slug)
}

// DayEnd advances the caller's branch operational date by one day. A second
// call within the same calendar day fails with ErrConflict and leaves the
// cursor unchanged.
func (s *Service) DayEnd(ctx context.Context, ownerID string) (*Branch, error) {
	branch, err := s.store.Branches().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if branch.LastDayEndAt != nil && sameCalendarDay(*branch.LastDayEndAt, now) {
		return nil, fmt.Errorf("%w: day end already processed today", ErrConflict)
	}
	branch.CurrentOperationalDate = branch.CurrentOperationalDate.AddDate(0, 0, 1)
	branch.LastDayEndAt = &now
	branch.UpdatedAt = now
	if err := s.store.Branches().Update(ctx, branch); err != nil {
		return nil, err
	}
	return branch, nil
}

// AddBusInput carries bus creation parameters.
type AddBusInput struct {
	BusNumber     string
	PreferredDays []int
	Description   string
	Metadata      map[string]any
}

// AddBus registers a bus. Preferred days must be within 1 (Monday) to 7
// (Sunday) and the bus number must be unique within the organization.
func (s *Service) AddBus(ctx context.Context, org *Organization, in AddBusInput) (*Bus, error) {
	busNumber := strings.TrimSpace(in.BusNumber)
	if busNumber == "" {
		return nil, fmt.Errorf("%w: bus number is required", ErrInvalidInput)
	}
	for _, day := range in.PreferredDays {
		if day < 1 || day > 7 {
			return nil, fmt.Errorf("%w: preferred days must be between 1 (Monday) and 7 (Sunday)", ErrInvalidInput)
		}
	}
	if _, err := s.store.Buses().FindByNumber(ctx, org.ID, busNumber); err == nil {
		return nil, fmt.Errorf("%w: bus %s already exists for this organization", ErrConflict, busNumber)
	}

	now := s.now().UTC()
	bus := &Bus{
		ID:             ids.New(),
		Slug:           ids.New(),
		OrganizationID: org.ID,
		BusNumber:      busNumber,
		PreferredDays:  in.PreferredDays,
		Description:    strings.TrimSpace(in.Description),
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Buses().Create(ctx, bus); err != nil {
		return nil, err
	}
	return bus, nil
}

// ListBuses returns all buses of the organization.
func (s *Service) ListBuses(ctx context.Context, org *Organization) ([]*Bus, error) {
	return s.store.Buses().ListByOrganization(ctx, org.ID)
}

// AvailableBuses returns buses whose preferred days include today.
func (s *Service) AvailableBuses(ctx context.Context, org *Organization) ([]*Bus, error) {
	buses, err := s.store.Buses().ListByOrganization(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	today := isoWeekday(s.now())
	out := make([]*Bus, 0, len(buses))
	for _, bus := range buses {
		for _, day := range bus.PreferredDays {
			if day == today {
				out = append(out, bus)
				break
			}
		}
	}
	return out, nil
}

// DeleteBus removes a bus by slug within the organization.
func (s *Service) DeleteBus(ctx context.Context, org *Organization, slug string) error {
	return s.store.Buses().Delete(ctx, org.ID, slug)
}

func (s *Service) createOwnerUser(ctx context.Context, username, password string, perm auth.Permission) (*User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		Permissions:  auth.NewPermissionSet(perm),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// isoWeekday maps time.Weekday to the 1=Monday..7=Sunday convention used by
// bus preferred days.
func isoWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
