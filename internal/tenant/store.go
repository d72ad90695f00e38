package tenant

import (
	"context"

	"vyhan.org/internal/auth"
)

// Store describes persistence required by the tenant layer.
type Store interface {
	Organizations() OrganizationStore
	Branches() BranchStore
	Buses() BusStore
	Users() UserStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	// FindBySubdomain eager-loads the owner and all branches with their
	// owners for downstream use within the same request.
	FindBySubdomain(ctx context.Context, subdomain string) (*Organization, error)
	Find(ctx context.Context, id string) (*Organization, error)
	FindByOwner(ctx context.Context, userID string) (*Organization, error)
	Update(ctx context.Context, org *Organization) error
}

// BranchStore manages branches within an organization.
type BranchStore interface {
	Create(ctx context.Context, branch *Branch) error
	Find(ctx context.Context, id string) (*Branch, error)
	FindBySlug(ctx context.Context, organizationID, slug string) (*Branch, error)
	FindByOwner(ctx context.Context, userID string) (*Branch, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*Branch, error)
	Delete(ctx context.Context, organizationID, slug string) error
	Update(ctx context.Context, branch *Branch) error
}

// BusStore manages buses within an organization.
type BusStore interface {
	Create(ctx context.Context, bus *Bus) error
	FindBySlug(ctx context.Context, organizationID, slug string) (*Bus, error)
	FindByNumber(ctx context.Context, organizationID, busNumber string) (*Bus, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*Bus, error)
	Delete(ctx context.Context, organizationID, slug string) error
}

// UserStore manages authentication principals.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// credentialStore adapts the tenant stores to the auth credential boundary.
type credentialStore struct {
	store Store
}

// NewCredentialStore exposes user records, their permission sets, and their
// ownership relations to the auth subsystem.
func NewCredentialStore(store Store) auth.CredentialStore {
	return &credentialStore{store: store}
}

func (c *credentialStore) FindByUsername(ctx context.Context, username string) (*auth.Credential, error) {
	user, err := c.store.Users().FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return c.credential(ctx, user)
}

func (c *credentialStore) Find(ctx context.Context, userID string) (*auth.Credential, error) {
	user, err := c.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.credential(ctx, user)
}

func (c *credentialStore) credential(ctx context.Context, user *User) (*auth.Credential, error) {
	cred := &auth.Credential{
		UserID:       user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Permissions:  user.Permissions,
	}
	if org, err := c.store.Organizations().FindByOwner(ctx, user.ID); err == nil {
		cred.OwnedOrganizationID = org.ID
	}
	if branch, err := c.store.Branches().FindByOwner(ctx, user.ID); err == nil {
		cred.OwnedBranchID = branch.ID
	}
	return cred, nil
}
