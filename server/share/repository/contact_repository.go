package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"share_server/server/common/errs"
	"share_server/server/common/infra/db"
	"share_server/server/share/domain"
)

type ContactRepository struct {
	db *db.DB
}

func NewContactRepository(database *db.DB) *ContactRepository {
	return &ContactRepository{db: database}
}

func (r *ContactRepository) List(ctx context.Context, ownerID int64) ([]domain.Contact, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.owner_id, c.target_id, u.username, u.phone, c.created_at
		FROM contacts c
		JOIN users u ON u.id = c.target_id
		WHERE c.owner_id = $1
		ORDER BY c.created_at, c.id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Contact, 0)
	for rows.Next() {
		var item domain.Contact
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.UserID, &item.Username, &item.Phone, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Add creates the owner->target edge and, when mutual, the reverse edge if it
// is missing. Both happen in one transaction. An existing owner edge is a
// conflict only for a non-mutual add.
func (r *ContactRepository) Add(ctx context.Context, ownerID, targetID int64, mutual bool) (domain.Contact, error) {
	out := domain.Contact{OwnerID: ownerID, UserID: targetID}
	err := r.db.InTx(ctx, func(q db.Querier) error {
		err := q.QueryRow(ctx, `SELECT username, phone FROM users WHERE id=$1`, targetID).Scan(&out.Username, &out.Phone)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}

		err = q.QueryRow(ctx, `
			INSERT INTO contacts(owner_id, target_id) VALUES($1, $2)
			ON CONFLICT (owner_id, target_id) DO NOTHING
			RETURNING id, created_at
		`, ownerID, targetID).Scan(&out.ID, &out.CreatedAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if !mutual {
				return errs.ErrAlreadyExists
			}
			err = q.QueryRow(ctx, `SELECT id, created_at FROM contacts WHERE owner_id=$1 AND target_id=$2`, ownerID, targetID).
				Scan(&out.ID, &out.CreatedAt)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if mutual {
			_, err = q.Exec(ctx, `
				INSERT INTO contacts(owner_id, target_id) VALUES($1, $2)
				ON CONFLICT (owner_id, target_id) DO NOTHING
			`, targetID, ownerID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Contact{}, err
	}
	return out, nil
}

// Remove deletes only the owner's edge; a reverse edge is untouched.
func (r *ContactRepository) Remove(ctx context.Context, ownerID, edgeID int64) (bool, error) {
	cmd, err := r.db.Pool.Exec(ctx, `DELETE FROM contacts WHERE id=$1 AND owner_id=$2`, edgeID, ownerID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
