package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
)

var (
	_ auth.Repository = (*UserRepository)(nil)
	_ cart.Repository = (*CartRepository)(nil)
)

// UserRepository implements auth.Repository backed by PostgreSQL.
type UserRepository struct {
	s *Store
}

const userColumns = `id, first_name, last_name, email, phone, governorate, city, address, role, api_key_hash, orders`

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Governorate, &u.City, &u.Address,
		&role, &u.APIKeyHash, &u.Orders,
	); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// FindByAPIKeyHash returns the user owning the hashed key.
func (r *UserRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*auth.User, error) {
	u, err := scanUser(r.s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE api_key_hash = $1`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "find user by api key hash")
	}
	return u, nil
}

// Get returns a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(r.s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	return u, nil
}

// Upsert inserts a user or replaces the stored profile. The order history
// is kept.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User) error {
	_, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, phone, governorate, city, address, role, api_key_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email,
			phone = EXCLUDED.phone, governorate = EXCLUDED.governorate, city = EXCLUDED.city,
			address = EXCLUDED.address, role = EXCLUDED.role, api_key_hash = EXCLUDED.api_key_hash`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.Governorate, u.City, u.Address,
		string(u.Role), u.APIKeyHash,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert user %q", u.ID)
	}
	return nil
}

// AppendOrder records orderID in the user's history.
func (r *UserRepository) AppendOrder(ctx context.Context, userID, orderID string) error {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE users SET orders = array_append(orders, $2) WHERE id = $1`, userID, orderID)
	if err != nil {
		return errors.Wrapf(err, "append order to user %q", userID)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// CartRepository implements cart.Repository backed by PostgreSQL. One row
// per user; lines are stored as JSONB in insertion order.
type CartRepository struct {
	s *Store
}

type cartItemRow struct {
	Kind     catalog.Kind `json:"kind"`
	ID       string       `json:"id"`
	Quantity int          `json:"quantity"`
}

// Get returns the user's cart, empty if none was saved.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		itemsJSON []byte
		c         = cart.Cart{UserID: userID}
	)
	err := r.s.q(ctx).QueryRow(ctx, `SELECT items, coupon_code FROM carts WHERE user_id = $1`, userID).
		Scan(&itemsJSON, &c.CouponCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return &c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart %q", userID)
	}

	var rows []cartItemRow
	if err := json.Unmarshal(itemsJSON, &rows); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart items")
	}
	c.Items = make([]cart.Item, len(rows))
	for i, row := range rows {
		c.Items[i] = cart.Item{Ref: catalog.Ref{Kind: row.Kind, ID: row.ID}, Quantity: row.Quantity}
	}
	return &c, nil
}

// Save replaces the user's cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	rows := make([]cartItemRow, len(c.Items))
	for i, it := range c.Items {
		rows[i] = cartItemRow{Kind: it.Ref.Kind, ID: it.Ref.ID, Quantity: it.Quantity}
	}
	itemsJSON, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}

	_, err = r.s.q(ctx).Exec(ctx, `
		INSERT INTO carts (user_id, items, coupon_code, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			items = EXCLUDED.items, coupon_code = EXCLUDED.coupon_code, updated_at = now()`,
		c.UserID, itemsJSON, c.CouponCode,
	)
	if err != nil {
		return errors.Wrapf(err, "save cart %q", c.UserID)
	}
	return nil
}

// Clear drops the user's items and coupon.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.s.q(ctx).Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return errors.Wrapf(err, "clear cart %q", userID)
	}
	return nil
}
