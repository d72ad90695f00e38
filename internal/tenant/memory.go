package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory is a process-local Store used in tests and single-node setups.
type InMemory struct {
	mu       sync.RWMutex
	orgs     map[string]*Organization // by id
	branches map[string]*Branch       // by id
	buses    map[string]*Bus          // by id
	users    map[string]*User         // by id
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:     make(map[string]*Organization),
		branches: make(map[string]*Branch),
		buses:    make(map[string]*Bus),
		users:    make(map[string]*User),
	}
}

func (m *InMemory) Organizations() OrganizationStore { return (*memOrgs)(m) }
func (m *InMemory) Branches() BranchStore            { return (*memBranches)(m) }
func (m *InMemory) Buses() BusStore                  { return (*memBuses)(m) }
func (m *InMemory) Users() UserStore                 { return (*memUsers)(m) }

type memOrgs InMemory

func (m *memOrgs) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Subdomain == org.Subdomain {
			return fmt.Errorf("%w: subdomain %q", ErrConflict, org.Subdomain)
		}
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgs) FindBySubdomain(_ context.Context, subdomain string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, org := range m.orgs {
		if org.Subdomain == subdomain {
			return m.load(org), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.load(org), nil
}

func (m *memOrgs) FindByOwner(_ context.Context, userID string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, org := range m.orgs {
		if org.OwnerID == userID && org.OwnerID != "" {
			return m.load(org), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgs) Update(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[org.ID]; !ok {
		return ErrNotFound
	}
	cp := *org
	cp.Owner = nil
	cp.Branches = nil
	m.orgs[org.ID] = &cp
	return nil
}

// load returns a copy of org with the owner and branches attached. Callers
// must hold at least the read lock.
func (m *memOrgs) load(org *Organization) *Organization {
	cp := *org
	if owner, ok := m.users[org.OwnerID]; ok {
		o := *owner
		cp.Owner = &o
	}
	cp.Branches = (*memBranches)(m).listLocked(org.ID)
	return &cp
}

type memBranches InMemory

func (m *memBranches) Create(_ context.Context, branch *Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *branch
	cp.Owner = nil
	m.branches[branch.ID] = &cp
	return nil
}

func (m *memBranches) Find(_ context.Context, id string) (*Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.loadLocked(b), nil
}

func (m *memBranches) FindBySlug(_ context.Context, organizationID, slug string) (*Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.branches {
		if b.OrganizationID == organizationID && b.Slug == slug {
			return m.loadLocked(b), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBranches) FindByOwner(_ context.Context, userID string) (*Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.branches {
		if b.OwnerID == userID && b.OwnerID != "" {
			return m.loadLocked(b), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBranches) ListByOrganization(_ context.Context, organizationID string) ([]*Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(organizationID), nil
}

func (m *memBranches) Delete(_ context.Context, organizationID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.branches {
		if b.OrganizationID == organizationID && b.Slug == slug {
			delete(m.branches, id)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memBranches) Update(_ context.Context, branch *Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[branch.ID]; !ok {
		return ErrNotFound
	}
	cp := *branch
	cp.Owner = nil
	m.branches[branch.ID] = &cp
	return nil
}

func (m *memBranches) listLocked(organizationID string) []*Branch {
	var out []*Branch
	for _, b := range m.branches {
		if b.OrganizationID == organizationID {
			out = append(out, m.loadLocked(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memBranches) loadLocked(branch *Branch) *Branch {
	cp := *branch
	if owner, ok := m.users[branch.OwnerID]; ok {
		o := *owner
		cp.Owner = &o
	}
	return &cp
}

type memBuses InMemory

func (m *memBuses) Create(_ context.Context, bus *Bus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.buses {
		if existing.OrganizationID == bus.OrganizationID && existing.BusNumber == bus.BusNumber {
			return fmt.Errorf("%w: bus number %q", ErrConflict, bus.BusNumber)
		}
	}
	cp := *bus
	m.buses[bus.ID] = &cp
	return nil
}

func (m *memBuses) FindBySlug(_ context.Context, organizationID, slug string) (*Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, bus := range m.buses {
		if bus.OrganizationID == organizationID && bus.Slug == slug {
			cp := *bus
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBuses) FindByNumber(_ context.Context, organizationID, busNumber string) (*Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, bus := range m.buses {
		if bus.OrganizationID == organizationID && bus.BusNumber == busNumber {
			cp := *bus
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBuses) ListByOrganization(_ context.Context, organizationID string) ([]*Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Bus
	for _, bus := range m.buses {
		if bus.OrganizationID == organizationID {
			cp := *bus
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memBuses) Delete(_ context.Context, organizationID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, bus := range m.buses {
		if bus.OrganizationID == organizationID && bus.Slug == slug {
			delete(m.buses, id)
			return nil
		}
	}
	return ErrNotFound
}

type memUsers InMemory

func (m *memUsers) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return fmt.Errorf("%w: username %q", ErrConflict, user.Username)
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
