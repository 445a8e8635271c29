// Package repository contains the Postgres queries behind the identity store,
// the contact graph and the share mailbox.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"share_server/server/common/errs"
	"share_server/server/common/infra/db"
	"share_server/server/share/domain"
)

const userColumns = `id, device_id, username, phone, created_at, updated_at`

type UserRepository struct {
	db *db.DB
}

func NewUserRepository(database *db.DB) *UserRepository {
	return &UserRepository{db: database}
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.DeviceID, &u.Username, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, errs.ErrNotFound
	}
	return u, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *UserRepository) GetByDeviceID(ctx context.Context, deviceID string) (domain.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE device_id=$1`, deviceID))
}

// Create inserts a user with an empty profile. A device id that is already
// taken yields errs.ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, deviceID string) (domain.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, `
		INSERT INTO users(device_id) VALUES($1)
		RETURNING `+userColumns, deviceID))
	if db.IsUniqueViolation(err) {
		return domain.User{}, errs.ErrAlreadyExists
	}
	return u, err
}

// UpdateProfile leaves nil fields untouched and clears fields set to "".
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (domain.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `
		UPDATE users SET
			username = CASE WHEN $2::text IS NULL THEN username ELSE NULLIF($2::text, '') END,
			phone = CASE WHEN $3::text IS NULL THEN phone ELSE NULLIF($3::text, '') END,
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+userColumns, id, upd.Username, upd.Phone))
}

// Search matches username (case-insensitive) or phone by substring. pattern
// must already have LIKE metacharacters escaped.
func (r *UserRepository) Search(ctx context.Context, pattern string, excludeUserID int64, limit int) ([]domain.PublicUser, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, username, phone
		FROM users
		WHERE id <> $1
		  AND (username ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')
		ORDER BY username NULLS LAST, id
		LIMIT $3
	`, excludeUserID, pattern, limit)
	if err != nil {
		return nil, err
	}
	return collectPublicUsers(rows)
}

func (r *UserRepository) FindByPhones(ctx context.Context, phones []string, excludeUserID int64) ([]domain.PublicUser, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, username, phone
		FROM users
		WHERE id <> $1 AND phone = ANY($2)
		ORDER BY id
	`, excludeUserID, phones)
	if err != nil {
		return nil, err
	}
	return collectPublicUsers(rows)
}

func collectPublicUsers(rows pgx.Rows) ([]domain.PublicUser, error) {
	defer rows.Close()
	items := make([]domain.PublicUser, 0)
	for rows.Next() {
		var item domain.PublicUser
		if err := rows.Scan(&item.ID, &item.Username, &item.Phone); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
