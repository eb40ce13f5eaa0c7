package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and guest contact details are stored as JSONB.
type OrderRepository struct {
	s *Store
}

type orderItemRow struct {
	Kind      catalog.Kind    `json:"kind"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type guestInfoRow struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Governorate string `json:"governorate"`
	City        string `json:"city"`
	Address     string `json:"address"`
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	rows := make([]orderItemRow, len(o.Items))
	for i, it := range o.Items {
		rows[i] = orderItemRow{
			Kind:      it.Ref.Kind,
			ID:        it.Ref.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	itemsJSON, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	var (
		userID    *string
		guestJSON []byte
	)
	if o.Customer.IsGuest() {
		g := o.Customer.Guest
		guestJSON, err = json.Marshal(guestInfoRow(*g))
		if err != nil {
			return errors.Wrap(err, "marshal guest info")
		}
	} else {
		userID = &o.Customer.UserID
	}

	var (
		couponCode *string
		discount   decimal.NullDecimal
	)
	if o.Coupon != nil {
		couponCode = &o.Coupon.Code
		discount = decimal.NullDecimal{Decimal: o.Coupon.DiscountAmount, Valid: true}
	}

	_, err = r.s.q(ctx).Exec(ctx, `
		INSERT INTO orders (id, customer_kind, user_id, guest_info, items, subtotal, total_amount,
			coupon_code, discount_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, string(o.Customer.Kind), userID, guestJSON, itemsJSON, o.Subtotal, o.TotalAmount,
		couponCode, discount, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

const orderColumns = `id, customer_kind, user_id, guest_info, items, subtotal, total_amount,
	coupon_code, discount_amount, status, created_at`

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o          order.Order
		kind       string
		userID     *string
		guestJSON  []byte
		itemsJSON  []byte
		couponCode *string
		discount   decimal.NullDecimal
		status     string
	)
	if err := row.Scan(
		&o.ID, &kind, &userID, &guestJSON, &itemsJSON, &o.Subtotal, &o.TotalAmount,
		&couponCode, &discount, &status, &o.CreatedAt,
	); err != nil {
		return nil, err
	}

	o.Customer.Kind = order.CustomerKind(kind)
	o.Status = order.Status(status)
	if userID != nil {
		o.Customer.UserID = *userID
	}
	if guestJSON != nil {
		var g guestInfoRow
		if err := json.Unmarshal(guestJSON, &g); err != nil {
			return nil, errors.Wrap(err, "unmarshal guest info")
		}
		info := order.GuestInfo(g)
		o.Customer.Guest = &info
	}

	var items []orderItemRow
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	o.Items = make([]order.Item, len(items))
	for i, it := range items {
		o.Items[i] = order.Item{
			Ref:       catalog.Ref{Kind: it.Kind, ID: it.ID},
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	if couponCode != nil {
		o.Coupon = &order.AppliedCoupon{Code: *couponCode, DiscountAmount: discount.Decimal}
	}
	return &o, nil
}

// Get returns an order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.s.q(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return orders, nil
}

// UpdateStatus sets the status to next only while it still equals prev.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, prev, next order.Status) (bool, error) {
	q := r.s.q(ctx)
	tag, err := q.Exec(ctx, `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`, id, string(prev), string(next))
	if err != nil {
		return false, errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check order row")
	}
	if !exists {
		return false, order.ErrNotFound
	}
	return false, nil
}
