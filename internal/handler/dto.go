package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/validation"
)

// itemRequest names a product or a package, never both.
type itemRequest struct {
	ProductID string `json:"productId"`
	PackageID string `json:"packageId"`
	Quantity  int    `json:"quantity"`
}

func (ir itemRequest) ref() (catalog.Ref, error) {
	switch {
	case ir.ProductID != "" && ir.PackageID != "":
		return catalog.Ref{}, validation.New("item", "provide either productId or packageId, not both")
	case ir.ProductID != "":
		return catalog.ProductRef(ir.ProductID), nil
	case ir.PackageID != "":
		return catalog.PackageRef(ir.PackageID), nil
	default:
		return catalog.Ref{}, validation.New("item", "productId or packageId is required")
	}
}

func toRequests(items []itemRequest) ([]catalog.Request, error) {
	reqs := make([]catalog.Request, len(items))
	for i, it := range items {
		ref, err := it.ref()
		if err != nil {
			return nil, err
		}
		reqs[i] = catalog.Request{Ref: ref, Quantity: it.Quantity}
	}
	return reqs, nil
}

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Price       Money  `json:"price"`
	Stock       int    `json:"stock"`
}

func newProductView(p *catalog.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Image:       p.Image,
		Price:       Money(p.Price),
		Stock:       p.Stock,
	}
}

type includedProductView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Price Money  `json:"price"`
}

type packageView struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Description      string                `json:"description"`
	Image            string                `json:"image"`
	Price            Money                 `json:"price"`
	Stock            int                   `json:"stock"`
	IncludedProducts []includedProductView `json:"includedProducts"`
}

// lineView is a hydrated cart line.
type lineView struct {
	Kind     catalog.Kind `json:"kind"`
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Image    string       `json:"image"`
	Price    Money        `json:"price"`
	Quantity int          `json:"quantity"`
	Total    Money        `json:"total"`
}

func newLineView(l cart.Line) lineView {
	return lineView{
		Kind:     l.Ref.Kind,
		ID:       l.Ref.ID,
		Name:     l.Name,
		Image:    l.Image,
		Price:    Money(l.Price),
		Quantity: l.Quantity,
		Total:    Money(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))),
	}
}

func newLineViews(lines []cart.Line) []lineView {
	views := make([]lineView, len(lines))
	for i, l := range lines {
		views[i] = newLineView(l)
	}
	return views
}

// guestItemView is the lightweight line returned to clients holding their
// own cart.
type guestItemView struct {
	Kind     catalog.Kind `json:"kind"`
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Price    Money        `json:"price"`
	Quantity int          `json:"quantity"`
	Stock    int          `json:"stock"`
}

func newGuestItemView(l *cart.Line) guestItemView {
	return guestItemView{
		Kind:     l.Ref.Kind,
		ID:       l.Ref.ID,
		Name:     l.Name,
		Price:    Money(l.Price),
		Quantity: l.Quantity,
		Stock:    l.Stock,
	}
}

type appliedCouponView struct {
	Code               string `json:"code"`
	DiscountPercentage Number `json:"discountPercentage"`
	DiscountAmount     Money  `json:"discountAmount"`
}

func newAppliedCouponView(c *pricing.AppliedCoupon) *appliedCouponView {
	if c == nil {
		return nil
	}
	return &appliedCouponView{
		Code:               c.Code,
		DiscountPercentage: Number(c.DiscountPercentage),
		DiscountAmount:     Money(c.DiscountAmount),
	}
}

type quoteView struct {
	Subtotal       Money              `json:"subtotal"`
	DiscountAmount Money              `json:"discountAmount"`
	Total          Money              `json:"total"`
	Coupon         *appliedCouponView `json:"coupon"`
	// CouponMessage explains why a requested coupon was not applied.
	CouponMessage string `json:"couponMessage,omitempty"`
}

func newQuoteView(q *pricing.Quote) quoteView {
	v := quoteView{
		Subtotal:       Money(q.Subtotal),
		DiscountAmount: Money(q.DiscountAmount),
		Total:          Money(q.Total),
		Coupon:         newAppliedCouponView(q.Coupon),
	}
	if q.Detached && q.DetachReason != nil {
		v.CouponMessage = q.DetachReason.Error()
	}
	return v
}

type cartView struct {
	Message string     `json:"message,omitempty"`
	Items   []lineView `json:"items"`
	quoteView
}

func newCartView(v *cart.View, msg string) cartView {
	return cartView{
		Message:   msg,
		Items:     newLineViews(v.Lines),
		quoteView: newQuoteView(v.Quote),
	}
}

type guestInfoJSON struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Governorate string `json:"governorate"`
	City        string `json:"city"`
	Address     string `json:"address"`
}

type orderItemView struct {
	Kind      catalog.Kind `json:"kind"`
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice Money        `json:"unitPrice"`
}

type orderCouponView struct {
	Code           string `json:"code"`
	DiscountAmount Money  `json:"discountAmount"`
}

type orderView struct {
	ID           string             `json:"id"`
	CustomerKind order.CustomerKind `json:"customerKind"`
	UserID       string             `json:"userId,omitempty"`
	GuestInfo    *guestInfoJSON     `json:"guestInfo,omitempty"`
	Items        []orderItemView    `json:"items"`
	Subtotal     Money              `json:"subtotal"`
	TotalAmount  Money              `json:"totalAmount"`
	Coupon       *orderCouponView   `json:"coupon"`
	Status       order.Status       `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func newOrderView(o *order.Order) orderView {
	v := orderView{
		ID:           o.ID,
		CustomerKind: o.Customer.Kind,
		UserID:       o.Customer.UserID,
		Items:        make([]orderItemView, len(o.Items)),
		Subtotal:     Money(o.Subtotal),
		TotalAmount:  Money(o.TotalAmount),
		Status:       o.Status,
		CreatedAt:    o.CreatedAt.UTC(),
	}
	if g := o.Customer.Guest; g != nil {
		info := guestInfoJSON(*g)
		v.GuestInfo = &info
	}
	for i, it := range o.Items {
		v.Items[i] = orderItemView{
			Kind:      it.Ref.Kind,
			ID:        it.Ref.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: Money(it.UnitPrice),
		}
	}
	if o.Coupon != nil {
		v.Coupon = &orderCouponView{Code: o.Coupon.Code, DiscountAmount: Money(o.Coupon.DiscountAmount)}
	}
	return v
}

func newOrderViews(orders []order.Order) []orderView {
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = newOrderView(&orders[i])
	}
	return views
}

type couponView struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	DiscountPercentage Number    `json:"discountPercentage"`
	MaxUsage           *int      `json:"maxUsage"`
	MaxDiscountValue   *Money    `json:"maxDiscountValue"`
	UsedCount          int       `json:"usedCount"`
	ApplicableProducts []string  `json:"applicableProducts"`
	ApplicablePackages []string  `json:"applicablePackages"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newCouponView(c *coupon.Coupon) couponView {
	v := couponView{
		ID:                 c.ID,
		Code:               c.Code,
		DiscountPercentage: Number(c.DiscountPercentage),
		MaxUsage:           c.MaxUsage,
		UsedCount:          c.UsedCount,
		ApplicableProducts: nonNil(c.ApplicableProducts),
		ApplicablePackages: nonNil(c.ApplicablePackages),
		IsActive:           c.IsActive,
		CreatedAt:          c.CreatedAt.UTC(),
	}
	if c.MaxDiscountValue != nil {
		m := Money(*c.MaxDiscountValue)
		v.MaxDiscountValue = &m
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// userFrom returns the authenticated user. Routes guarded by requireUser
// always have one.
func userFrom(r *http.Request) *auth.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}
