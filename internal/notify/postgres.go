package notify

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vyhan.org/internal/ids"
)

// PGMessages is the Postgres-backed MessageStore.
type PGMessages struct {
	db *sql.DB
}

var _ MessageStore = (*PGMessages)(nil)

// NewPGMessages wraps an existing database handle.
func NewPGMessages(db *sql.DB) *PGMessages { return &PGMessages{db: db} }

func (p *PGMessages) Create(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = ids.New()
	}
	_, err := p.db.ExecContext(ctx, `
		insert into messages(id, user_id, tracking_id, body, read, created_at)
		values ($1,$2,nullif($3,''),$4,$5,$6)
	`, msg.ID, msg.UserID, msg.TrackingID, msg.Body, msg.Read, msg.CreatedAt)
	return err
}

func (p *PGMessages) ListByUser(ctx context.Context, userID string) ([]*Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		select id, user_id, coalesce(tracking_id,''), body, read, created_at
		from messages where user_id=$1 order by id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.TrackingID, &msg.Body, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (p *PGMessages) MarkRead(ctx context.Context, userID, messageID string) error {
	res, err := p.db.ExecContext(ctx,
		`update messages set read=true where id=$1 and user_id=$2`, messageID, userID)
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
	return nil
}
