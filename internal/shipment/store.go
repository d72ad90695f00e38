package shipment

import "context"

// Store is the shipment persistence boundary. Create persists the shipment
// together with its initial history entry; UpdateStatus sets the new status
// and appends the trail entry as one unit.
type Store interface {
	Create(ctx context.Context, sh *Shipment) error
	FindByTrackingID(ctx context.Context, trackingID string) (*Shipment, error)
	FindInOrganization(ctx context.Context, organizationID, trackingID string) (*Shipment, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*Shipment, error)
	// ListByBranch returns shipments where the branch is source or
	// destination.
	ListByBranch(ctx context.Context, branchID string) ([]*Shipment, error)
	UpdateStatus(ctx context.Context, shipmentID string, status Status, entry *HistoryEntry) error
}
