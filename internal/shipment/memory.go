package shipment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory is a process-local Store used in tests and single-node setups.
type InMemory struct {
	mu        sync.RWMutex
	shipments map[string]*Shipment // by id
	tracking  map[string]string    // tracking id -> shipment id
}

var _ Store = (*InMemory)(nil)

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		shipments: make(map[string]*Shipment),
		tracking:  make(map[string]string),
	}
}

func (m *InMemory) Create(_ context.Context, sh *Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.tracking[sh.TrackingID]; taken {
		return fmt.Errorf("%w: tracking id %s", ErrConflict, sh.TrackingID)
	}
	m.shipments[sh.ID] = clone(sh)
	m.tracking[sh.TrackingID] = sh.ID
	return nil
}

func (m *InMemory) FindByTrackingID(_ context.Context, trackingID string) (*Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tracking[trackingID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.shipments[id]), nil
}

func (m *InMemory) FindInOrganization(_ context.Context, organizationID, trackingID string) (*Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tracking[trackingID]
	if !ok {
		return nil, ErrNotFound
	}
	sh := m.shipments[id]
	if sh.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	return clone(sh), nil
}

func (m *InMemory) ListByOrganization(_ context.Context, organizationID string) ([]*Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Shipment
	for _, sh := range m.shipments {
		if sh.OrganizationID == organizationID {
			out = append(out, clone(sh))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *InMemory) ListByBranch(_ context.Context, branchID string) ([]*Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Shipment
	for _, sh := range m.shipments {
		if sh.SourceBranchID == branchID || sh.DestinationBranchID == branchID {
			out = append(out, clone(sh))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *InMemory) UpdateStatus(_ context.Context, shipmentID string, status Status, entry *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shipments[shipmentID]
	if !ok {
		return ErrNotFound
	}
	sh.Status = status
	sh.UpdatedAt = entry.CreatedAt
	e := *entry
	// Trail is kept newest first.
	sh.History = append([]*HistoryEntry{&e}, sh.History...)
	return nil
}

func clone(sh *Shipment) *Shipment {
	cp := *sh
	cp.History = make([]*HistoryEntry, len(sh.History))
	for i, e := range sh.History {
		entry := *e
		cp.History[i] = &entry
	}
	return &cp
}
