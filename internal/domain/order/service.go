package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/stock"
	"github.com/xenking/webstore/internal/domain/validation"
)

const instrumentationName = "github.com/xenking/webstore/internal/domain/order"

// CouponUsage redeems coupons.
type CouponUsage interface {
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

// UserHistory records placed orders on the user record.
type UserHistory interface {
	AppendOrder(ctx context.Context, userID, orderID string) error
}

// Notifier publishes placed orders. Implementations must not block.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order)
}

// Deps holds the collaborators of the order Service.
type Deps struct {
	Tx       Transactor
	Orders   Repository
	Catalog  *catalog.Accessor
	Ledger   *stock.Ledger
	Pricing  *pricing.Engine
	Coupons  CouponUsage
	Carts    cart.Repository
	Users    UserHistory
	Notifier Notifier
}

// Options configures telemetry. Nil providers fall back to the globals.
type Options struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// PlaceOrderRequest holds the input for placing an order. Registered
// customers check out their stored cart and coupon; Items and CouponCode
// are only read for guests.
type PlaceOrderRequest struct {
	Customer   Customer
	Items      []catalog.Request
	CouponCode string
}

// Service owns order placement and the order status state machine.
type Service struct {
	deps   Deps
	now    func() time.Time
	tracer trace.Tracer

	placed    metric.Int64Counter
	cancelled metric.Int64Counter
	redeemed  metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	meter := opts.MeterProvider.Meter(instrumentationName)

	s := &Service{
		deps:   deps,
		now:    time.Now,
		tracer: opts.TracerProvider.Tracer(instrumentationName),
	}
	var err error
	if s.placed, err = meter.Int64Counter("webstore.orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.cancelled, err = meter.Int64Counter("webstore.orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "orders cancelled counter")
	}
	if s.redeemed, err = meter.Int64Counter("webstore.coupons.redeemed",
		metric.WithDescription("Coupon redemptions"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons redeemed counter")
	}
	return s, nil
}

// PlaceOrder resolves, checks, prices and persists an order. The order
// insert, the stock deduction and the coupon redemption commit together or
// not at all. Cart cleanup, history and notification run after commit and
// never fail the call.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("customer.kind", string(req.Customer.Kind))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	reqs, code, err := s.checkoutInput(ctx, req)
	if err != nil {
		return nil, err
	}

	// Resolve against the catalog; caller prices are never used.
	items, err := s.deps.Catalog.ResolveItems(ctx, reqs)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Ledger.CheckAvailability(ctx, items); err != nil {
		return nil, err
	}

	quote, err := s.deps.Pricing.Price(ctx, items, code, pricing.Checkout)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:          uuid.New().String(),
		Customer:    req.Customer,
		Items:       make([]Item, len(items)),
		Subtotal:    quote.Subtotal,
		TotalAmount: quote.Total,
		Status:      StatusPending,
		CreatedAt:   s.now(),
	}
	for i, li := range items {
		o.Items[i] = Item{Ref: li.Ref, Name: li.Name, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
	}
	if quote.Coupon != nil {
		o.Coupon = &AppliedCoupon{Code: quote.Coupon.Code, DiscountAmount: quote.Coupon.DiscountAmount}
	}

	if err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.deps.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.deps.Ledger.Reserve(ctx, items); err != nil {
			return err
		}
		if o.Coupon != nil {
			ok, err := s.deps.Coupons.IncrementUsage(ctx, o.Coupon.Code)
			if err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
			if !ok {
				return coupon.ErrCouponUsageExceeded
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if !req.Customer.IsGuest() {
		if err := s.deps.Carts.Clear(ctx, req.Customer.UserID); err != nil {
			lg.Error("Clear cart after order", zap.Error(err))
		}
		if err := s.deps.Users.AppendOrder(ctx, req.Customer.UserID, o.ID); err != nil {
			lg.Error("Append order to user history", zap.Error(err))
		}
	}

	attrs := metric.WithAttributes(attribute.String("customer.kind", string(req.Customer.Kind)))
	s.placed.Add(ctx, 1, attrs)
	if o.Coupon != nil {
		s.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon.code", o.Coupon.Code)))
	}
	lg.Info("Order placed",
		zap.String("customer", string(req.Customer.Kind)),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.TotalAmount),
	)

	if s.deps.Notifier != nil {
		s.deps.Notifier.OrderPlaced(ctx, o)
	}
	return o, nil
}

func (s *Service) checkoutInput(ctx context.Context, req PlaceOrderRequest) ([]catalog.Request, string, error) {
	switch req.Customer.Kind {
	case CustomerRegistered:
		if req.Customer.UserID == "" {
			return nil, "", validation.New("user", "user id is required")
		}
		c, err := s.deps.Carts.Get(ctx, req.Customer.UserID)
		if err != nil {
			return nil, "", errors.Wrap(err, "get cart")
		}
		if len(c.Items) == 0 {
			return nil, "", ErrEmptyCart
		}
		return c.Requests(), c.CouponCode, nil
	case CustomerGuest:
		if req.Customer.Guest == nil || len(req.Items) == 0 {
			return nil, "", validation.New("guestInfo", "guest order requires guestInfo and items")
		}
		if err := req.Customer.Guest.Validate(); err != nil {
			return nil, "", err
		}
		return req.Items, req.CouponCode, nil
	default:
		return nil, "", validation.Newf("customer", "unknown customer kind %q", req.Customer.Kind)
	}
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.deps.Orders.Get(ctx, id)
}

// List returns the orders of a registered user.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.deps.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListAll returns every order.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.deps.Orders.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list all orders")
	}
	return orders, nil
}

// UpdateStatus moves an order to next. Entering Cancelled restores the
// order's stock exactly once; the status write is conditional on the status
// that was read, so two concurrent cancellations cannot both restore.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order.status", string(next))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o, err := s.deps.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.Status.CanTransition(next); err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}

	prev := o.Status
	if err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := s.deps.Orders.UpdateStatus(ctx, id, prev, next)
		if err != nil {
			return errors.Wrap(err, "update status")
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		if next == StatusCancelled {
			if err := s.deps.Ledger.Restore(ctx, o.LineItems()); err != nil {
				return errors.Wrap(err, "restore stock")
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	o.Status = next
	if next == StatusCancelled {
		s.cancelled.Add(ctx, 1)
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return o, nil
}
