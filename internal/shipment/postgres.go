package shipment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PGStore is the Postgres-backed shipment store.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing database handle; cmd wiring shares one pool
// across stores.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

const shipmentColumns = `id, tracking_id, organization_id, source_branch_id, source_branch_title,
	destination_branch_id, destination_branch_title, bus_id, sender_name, sender_phone,
	receiver_name, receiver_phone, goods_description, quantity, weight_kg, charge,
	payment_mode, status, day, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, sh *Shipment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into shipments(`+shipmentColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, sh.ID, sh.TrackingID, sh.OrganizationID, sh.SourceBranchID, sh.SourceBranchTitle,
		sh.DestinationBranchID, sh.DestinationTitle, sh.BusID, sh.SenderName, sh.SenderPhone,
		sh.ReceiverName, sh.ReceiverPhone, sh.GoodsDescription, sh.Quantity, sh.WeightKG, sh.Charge,
		sh.PaymentMode, sh.Status, sh.Day, sh.CreatedAt, sh.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	for _, entry := range sh.History {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) FindByTrackingID(ctx context.Context, trackingID string) (*Shipment, error) {
	return s.scanOne(ctx, s.db.QueryRowContext(ctx,
		`select `+shipmentColumns+` from shipments where tracking_id=$1`, trackingID))
}

func (s *PGStore) FindInOrganization(ctx context.Context, organizationID, trackingID string) (*Shipment, error) {
	return s.scanOne(ctx, s.db.QueryRowContext(ctx,
		`select `+shipmentColumns+` from shipments where organization_id=$1 and tracking_id=$2`,
		organizationID, trackingID))
}

func (s *PGStore) ListByOrganization(ctx context.Context, organizationID string) ([]*Shipment, error) {
	return s.list(ctx,
		`select `+shipmentColumns+` from shipments where organization_id=$1 order by id`, organizationID)
}

func (s *PGStore) ListByBranch(ctx context.Context, branchID string) ([]*Shipment, error) {
	return s.list(ctx,
		`select `+shipmentColumns+` from shipments
		 where source_branch_id=$1 or destination_branch_id=$1 order by id`, branchID)
}

func (s *PGStore) UpdateStatus(ctx context.Context, shipmentID string, status Status, entry *HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update shipments set status=$2, updated_at=$3 where id=$1
	`, shipmentID, status, entry.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]*Shipment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Shipment
	for rows.Next() {
		sh, err := scanShipment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, sh := range out {
		if err := s.loadHistory(ctx, sh); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) scanOne(ctx context.Context, row *sql.Row) (*Shipment, error) {
	sh, err := scanShipment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// loadHistory attaches the movement trail, newest entry first.
func (s *PGStore) loadHistory(ctx context.Context, sh *Shipment) error {
	rows, err := s.db.QueryContext(ctx, `
		select id, shipment_id, status, location, remarks, created_at
		from shipment_history where shipment_id=$1 order by created_at desc, id desc
	`, sh.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ShipmentID, &e.Status, &e.Location, &e.Remarks, &e.CreatedAt); err != nil {
			return err
		}
		sh.History = append(sh.History, &e)
	}
	return rows.Err()
}

func scanShipment(scan func(...any) error) (*Shipment, error) {
	var (
		sh    Shipment
		busID sql.NullString
	)
	if err := scan(&sh.ID, &sh.TrackingID, &sh.OrganizationID, &sh.SourceBranchID, &sh.SourceBranchTitle,
		&sh.DestinationBranchID, &sh.DestinationTitle, &busID, &sh.SenderName, &sh.SenderPhone,
		&sh.ReceiverName, &sh.ReceiverPhone, &sh.GoodsDescription, &sh.Quantity, &sh.WeightKG, &sh.Charge,
		&sh.PaymentMode, &sh.Status, &sh.Day, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return nil, err
	}
	if busID.Valid {
		sh.BusID = busID.String
	}
	return &sh, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry *HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		insert into shipment_history(id, shipment_id, status, location, remarks, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ShipmentID, entry.Status, entry.Location, entry.Remarks, entry.CreatedAt)
	return err
}

// isUniqueViolation matches Postgres error 23505 without binding to a
// driver-specific error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
