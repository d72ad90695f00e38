package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"vyhan.org/internal/auth"
)

// PGStore is the Postgres-backed tenant store.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing database handle (used by tests with sqlmock
// and by cmd wiring that shares one pool across stores).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Organizations() OrganizationStore { return &pgOrgs{db: s.db} }
func (s *PGStore) Branches() BranchStore            { return &pgBranches{db: s.db} }
func (s *PGStore) Buses() BusStore                  { return &pgBuses{db: s.db} }
func (s *PGStore) Users() UserStore                 { return &pgUsers{db: s.db} }

type pgOrgs struct {
	db *sql.DB
}

const orgColumns = `id, slug, subdomain, title, description, metadata, owner_id, created_at, updated_at`

func (p *pgOrgs) Create(ctx context.Context, org *Organization) error {
	meta, err := marshalJSON(org.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into organizations(id, slug, subdomain, title, description, metadata, owner_id, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$9)
	`, org.ID, org.Slug, org.Subdomain, org.Title, org.Description, meta, org.OwnerID, org.CreatedAt, org.UpdatedAt)
	return err
}

func (p *pgOrgs) FindBySubdomain(ctx context.Context, subdomain string) (*Organization, error) {
	org, err := p.scanOne(p.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where subdomain=$1`, subdomain))
	if err != nil {
		return nil, err
	}
	if err := p.attach(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (p *pgOrgs) Find(ctx context.Context, id string) (*Organization, error) {
	org, err := p.scanOne(p.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := p.attach(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (p *pgOrgs) FindByOwner(ctx context.Context, userID string) (*Organization, error) {
	return p.scanOne(p.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where owner_id=$1`, userID))
}

func (p *pgOrgs) Update(ctx context.Context, org *Organization) error {
	meta, err := marshalJSON(org.Metadata)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		update organizations
		set title=$2, description=$3, metadata=$4, owner_id=nullif($5,''), updated_at=$6
		where id=$1
	`, org.ID, org.Title, org.Description, meta, org.OwnerID, org.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (p *pgOrgs) scanOne(row *sql.Row) (*Organization, error) {
	var (
		org     Organization
		meta    []byte
		ownerID sql.NullString
	)
	err := row.Scan(&org.ID, &org.Slug, &org.Subdomain, &org.Title, &org.Description, &meta, &ownerID, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		org.OwnerID = ownerID.String
	}
	if err := unmarshalJSON(meta, &org.Metadata); err != nil {
		return nil, err
	}
	return &org, nil
}

// attach eager-loads the owner and branches the resolver needs per request.
func (p *pgOrgs) attach(ctx context.Context, org *Organization) error {
	if org.OwnerID != "" {
		owner, err := (&pgUsers{db: p.db}).Find(ctx, org.OwnerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		org.Owner = owner
	}
	branches, err := (&pgBranches{db: p.db}).ListByOrganization(ctx, org.ID)
	if err != nil {
		return err
	}
	org.Branches = branches
	return nil
}

type pgBranches struct {
	db *sql.DB
}

const branchColumns = `id, slug, organization_id, title, description, metadata, owner_id, current_operational_date, last_day_end_at, created_at, updated_at`

func (p *pgBranches) Create(ctx context.Context, branch *Branch) error {
	meta, err := marshalJSON(branch.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into branches(id, slug, organization_id, title, description, metadata, owner_id, current_operational_date, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$9,$10)
	`, branch.ID, branch.Slug, branch.OrganizationID, branch.Title, branch.Description, meta, branch.OwnerID,
		branch.CurrentOperationalDate, branch.CreatedAt, branch.UpdatedAt)
	return err
}

func (p *pgBranches) Find(ctx context.Context, id string) (*Branch, error) {
	return p.scanOne(ctx, p.db.QueryRowContext(ctx,
		`select `+branchColumns+` from branches where id=$1`, id))
}

func (p *pgBranches) FindBySlug(ctx context.Context, organizationID, slug string) (*Branch, error) {
	return p.scanOne(ctx, p.db.QueryRowContext(ctx,
		`select `+branchColumns+` from branches where organization_id=$1 and slug=$2`, organizationID, slug))
}

func (p *pgBranches) FindByOwner(ctx context.Context, userID string) (*Branch, error) {
	return p.scanOne(ctx, p.db.QueryRowContext(ctx,
		`select `+branchColumns+` from branches where owner_id=$1`, userID))
}

func (p *pgBranches) ListByOrganization(ctx context.Context, organizationID string) ([]*Branch, error) {
	rows, err := p.db.QueryContext(ctx,
		`select `+branchColumns+` from branches where organization_id=$1 order by id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Branch
	for rows.Next() {
		branch, err := p.scanRow(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, branch)
	}
	return out, rows.Err()
}

func (p *pgBranches) Delete(ctx context.Context, organizationID, slug string) error {
	res, err := p.db.ExecContext(ctx,
		`delete from branches where organization_id=$1 and slug=$2`, organizationID, slug)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (p *pgBranches) Update(ctx context.Context, branch *Branch) error {
	meta, err := marshalJSON(branch.Metadata)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		update branches
		set title=$2, description=$3, metadata=$4, owner_id=nullif($5,''),
		    current_operational_date=$6, last_day_end_at=$7, updated_at=$8
		where id=$1
	`, branch.ID, branch.Title, branch.Description, meta, branch.OwnerID,
		branch.CurrentOperationalDate, branch.LastDayEndAt, branch.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (p *pgBranches) scanOne(ctx context.Context, row *sql.Row) (*Branch, error) {
	var (
		branch   Branch
		meta     []byte
		ownerID  sql.NullString
		dayEndAt sql.NullTime
	)
	err := row.Scan(&branch.ID, &branch.Slug, &branch.OrganizationID, &branch.Title, &branch.Description,
		&meta, &ownerID, &branch.CurrentOperationalDate, &dayEndAt, &branch.CreatedAt, &branch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, &branch, meta, ownerID, dayEndAt)
}

func (p *pgBranches) scanRow(ctx context.Context, rows *sql.Rows) (*Branch, error) {
	var (
		branch   Branch
		meta     []byte
		ownerID  sql.NullString
		dayEndAt sql.NullTime
	)
	if err := rows.Scan(&branch.ID, &branch.Slug, &branch.OrganizationID, &branch.Title, &branch.Description,
		&meta, &ownerID, &branch.CurrentOperationalDate, &dayEndAt, &branch.CreatedAt, &branch.UpdatedAt); err != nil {
		return nil, err
	}
	return p.finish(ctx, &branch, meta, ownerID, dayEndAt)
}

func (p *pgBranches) finish(ctx context.Context, branch *Branch, meta []byte, ownerID sql.NullString, dayEndAt sql.NullTime) (*Branch, error) {
	if ownerID.Valid {
		branch.OwnerID = ownerID.String
	}
	if dayEndAt.Valid {
		t := dayEndAt.Time
		branch.LastDayEndAt = &t
	}
	if err := unmarshalJSON(meta, &branch.Metadata); err != nil {
		return nil, err
	}
	if branch.OwnerID != "" {
		owner, err := (&pgUsers{db: p.db}).Find(ctx, branch.OwnerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		branch.Owner = owner
	}
	return branch, nil
}

type pgBuses struct {
	db *sql.DB
}

const busColumns = `id, slug, organization_id, bus_number, preferred_days, description, metadata, created_at, updated_at`

func (p *pgBuses) Create(ctx context.Context, bus *Bus) error {
	days, err := marshalJSON(bus.PreferredDays)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(bus.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into buses(id, slug, organization_id, bus_number, preferred_days, description, metadata, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, bus.ID, bus.Slug, bus.OrganizationID, bus.BusNumber, days, bus.Description, meta, bus.CreatedAt, bus.UpdatedAt)
	return err
}

func (p *pgBuses) FindBySlug(ctx context.Context, organizationID, slug string) (*Bus, error) {
	return scanBus(p.db.QueryRowContext(ctx,
		`select `+busColumns+` from buses where organization_id=$1 and slug=$2`, organizationID, slug))
}

func (p *pgBuses) FindByNumber(ctx context.Context, organizationID, busNumber string) (*Bus, error) {
	return scanBus(p.db.QueryRowContext(ctx,
		`select `+busColumns+` from buses where organization_id=$1 and bus_number=$2`, organizationID, busNumber))
}

func (p *pgBuses) ListByOrganization(ctx context.Context, organizationID string) ([]*Bus, error) {
	rows, err := p.db.QueryContext(ctx,
		`select `+busColumns+` from buses where organization_id=$1 order by id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Bus
	for rows.Next() {
		var (
			bus  Bus
			days []byte
			meta []byte
		)
		if err := rows.Scan(&bus.ID, &bus.Slug, &bus.OrganizationID, &bus.BusNumber, &days, &bus.Description,
			&meta, &bus.CreatedAt, &bus.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(days, &bus.PreferredDays); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta, &bus.Metadata); err != nil {
			return nil, err
		}
		out = append(out, &bus)
	}
	return out, rows.Err()
}

func (p *pgBuses) Delete(ctx context.Context, organizationID, slug string) error {
	res, err := p.db.ExecContext(ctx,
		`delete from buses where organization_id=$1 and slug=$2`, organizationID, slug)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func scanBus(row *sql.Row) (*Bus, error) {
	var (
		bus  Bus
		days []byte
		meta []byte
	)
	err := row.Scan(&bus.ID, &bus.Slug, &bus.OrganizationID, &bus.BusNumber, &days, &bus.Description,
		&meta, &bus.CreatedAt, &bus.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(days, &bus.PreferredDays); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &bus.Metadata); err != nil {
		return nil, err
	}
	return &bus, nil
}

type pgUsers struct {
	db *sql.DB
}

const userColumns = `id, username, password_hash, permissions, created_at, updated_at`

func (p *pgUsers) Create(ctx context.Context, user *User) error {
	perms, err := marshalJSON(user.Permissions.Strings())
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into users(id, username, password_hash, permissions, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.PasswordHash, perms, user.CreatedAt, user.UpdatedAt)
	return err
}

func (p *pgUsers) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (p *pgUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username))
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		user  User
		perms []byte
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &perms, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := unmarshalJSON(perms, &raw); err != nil {
		return nil, err
	}
	user.Permissions = auth.PermissionSetFromStrings(raw)
	return &user, nil
}

// --- helpers ---

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
