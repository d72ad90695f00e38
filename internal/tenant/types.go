package tenant

import (
	"errors"
	"time"

	"vyhan.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("tenant: not found")
	ErrConflict     = errors.New("tenant: resource conflict")
	ErrInvalidInput = errors.New("tenant: invalid input")
)

// Organization is the tenant root. The subdomain key is globally unique and
// immutable after creation; it is what the resolver matches hosts against.
type Organization struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Subdomain   string         `json:"subdomain"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OwnerID     string         `json:"-"`
	Owner       *User          `json:"owner,omitempty"`
	Branches    []*Branch      `json:"branches,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Branch is an operational unit within an organization. Its owner user is
// the principal whose permission set carries branch-admin rights.
type Branch struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	OrganizationID string         `json:"-"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OwnerID        string         `json:"-"`
	Owner          *User          `json:"owner,omitempty"`
	// CurrentOperationalDate is the branch's business-day cursor; it
	// advances at most once per calendar day via the day-end operation.
	CurrentOperationalDate time.Time  `json:"current_operational_date"`
	LastDayEndAt           *time.Time `json:"last_day_end_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Bus is an optional carrier attached to shipments. Preferred days use
// 1=Monday through 7=Sunday.
type Bus struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	OrganizationID string         `json:"-"`
	BusNumber      string         `json:"bus_number"`
	PreferredDays  []int          `json:"preferred_days"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// User is an authentication principal. A user owns at most one organization
// and/or one branch; ownership is resolved through those entities.
type User struct {
	ID           string             `json:"id"`
	Username     string             `json:"username"`
	PasswordHash string             `json:"-"`
	Permissions  auth.PermissionSet `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
