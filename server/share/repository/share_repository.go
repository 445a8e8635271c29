package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"share_server/server/common/errs"
	"share_server/server/common/infra/db"
	"share_server/server/share/domain"
)

const inboxSelect = `
	SELECT s.id, s.sender_id, u.username, u.phone, s.recipient_id, s.title, s.content,
	       COALESCE(s.content_ref, ''), s.created_at
	FROM pending_shares s
	JOIN users u ON u.id = s.sender_id
`

// ShareRepository is the only code that reads or writes pending_shares.
type ShareRepository struct {
	db *db.DB
}

func NewShareRepository(database *db.DB) *ShareRepository {
	return &ShareRepository{db: database}
}

// Create enqueues one share. An unknown recipient yields errs.ErrNotFound.
func (r *ShareRepository) Create(ctx context.Context, s domain.NewShare) (domain.SendResult, error) {
	out := domain.SendResult{RecipientID: s.RecipientID}
	err := r.db.InTx(ctx, func(q db.Querier) error {
		err := q.QueryRow(ctx, `SELECT username FROM users WHERE id=$1`, s.RecipientID).Scan(&out.RecipientUsername)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		return q.QueryRow(ctx, `
			INSERT INTO pending_shares(sender_id, recipient_id, title, content, content_ref)
			VALUES($1, $2, $3, $4, NULLIF($5, ''))
			RETURNING id, created_at
		`, s.SenderID, s.RecipientID, s.Title, s.Content, s.ContentRef).Scan(&out.ID, &out.CreatedAt)
	})
	if db.IsForeignKeyViolation(err) {
		return domain.SendResult{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.SendResult{}, err
	}
	return out, nil
}

func scanShare(row pgx.Row) (domain.PendingShare, error) {
	var item domain.PendingShare
	err := row.Scan(&item.ID, &item.SenderID, &item.SenderUsername, &item.SenderPhone, &item.RecipientID,
		&item.Title, &item.Content, &item.ContentRef, &item.CreatedAt)
	return item, err
}

func (r *ShareRepository) ListForRecipient(ctx context.Context, recipientID int64) ([]domain.PendingShare, error) {
	rows, err := r.db.Pool.Query(ctx, inboxSelect+`
		WHERE s.recipient_id = $1
		ORDER BY s.created_at, s.id
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PendingShare, 0)
	for rows.Next() {
		item, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetForRecipient treats a share addressed to someone else exactly like a
// missing one.
func (r *ShareRepository) GetForRecipient(ctx context.Context, recipientID, shareID int64) (domain.PendingShare, error) {
	item, err := scanShare(r.db.Pool.QueryRow(ctx, inboxSelect+`
		WHERE s.id = $1 AND s.recipient_id = $2
	`, shareID, recipientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingShare{}, errs.ErrNotFound
	}
	return item, err
}

func (r *ShareRepository) CountForRecipient(ctx context.Context, recipientID int64) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_shares WHERE recipient_id=$1`, recipientID).Scan(&n)
	return n, err
}

// DeleteForRecipient is the acknowledgement path.
func (r *ShareRepository) DeleteForRecipient(ctx context.Context, recipientID, shareID int64) (domain.RemovedShare, bool, error) {
	return r.deleteReturning(ctx, `
		DELETE FROM pending_shares WHERE id=$1 AND recipient_id=$2
		RETURNING id, sender_id, recipient_id, COALESCE(content_ref, '')
	`, shareID, recipientID)
}

// DeleteForSender is the cancellation path.
func (r *ShareRepository) DeleteForSender(ctx context.Context, senderID, shareID int64) (domain.RemovedShare, bool, error) {
	return r.deleteReturning(ctx, `
		DELETE FROM pending_shares WHERE id=$1 AND sender_id=$2
		RETURNING id, sender_id, recipient_id, COALESCE(content_ref, '')
	`, shareID, senderID)
}

func (r *ShareRepository) deleteReturning(ctx context.Context, sql string, args ...any) (domain.RemovedShare, bool, error) {
	var out domain.RemovedShare
	err := r.db.Pool.QueryRow(ctx, sql, args...).Scan(&out.ID, &out.SenderID, &out.RecipientID, &out.ContentRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RemovedShare{}, false, nil
	}
	if err != nil {
		return domain.RemovedShare{}, false, err
	}
	return out, true, nil
}
