// Package handler exposes the store over a JSON HTTP API.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
)

// Deps holds the domain services the handlers delegate to.
type Deps struct {
	Catalog catalog.Repository
	Carts   *cart.Service
	Orders  *order.Service
	Coupons *coupon.Service
	Auth    *auth.Authenticator
}

// Options configures the router middleware chain.
type Options struct {
	Logger *zap.Logger
	// RequestTimeout bounds every API request. Zero disables the bound.
	RequestTimeout time.Duration
	// Limiter is optional.
	Limiter *RateLimiter
}

// Handler serves the /api routes.
type Handler struct {
	catalog catalog.Repository
	carts   *cart.Service
	orders  *order.Service
	coupons *coupon.Service
	auth    *auth.Authenticator
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		catalog: deps.Catalog,
		carts:   deps.Carts,
		orders:  deps.Orders,
		coupons: deps.Coupons,
		auth:    deps.Auth,
	}
}

// Router returns a chi router with the API mounted under /api. Callers may
// add further routes (health probes) to the returned router.
func (h *Handler) Router(opts Options) chi.Router {
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(InjectLogger(lg))
	r.Use(LogRequests)
	r.Use(Recovery)

	r.Route("/api", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.Use(Timeout(opts.RequestTimeout))
		r.Use(h.identify)

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/packages", h.listPackages)
		r.Get("/packages/{id}", h.getPackage)

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", h.viewCart)
			r.Post("/", h.addToCart)
			r.Delete("/", h.clearCart)
			r.Post("/apply-coupon", h.applyCoupon)
			r.Post("/remove-coupon", h.removeCoupon)
			r.Put("/{itemId}", h.updateCartItem)
			r.Delete("/{itemId}", h.removeCartItem)
		})

		r.Route("/guest", func(r chi.Router) {
			r.Post("/calculate-cart", h.guestCalculate)
			r.Post("/view-cart", h.guestViewCart)
			r.Post("/add-to-cart", h.guestAddToCart)
			r.Post("/update-quantity", h.guestUpdateQuantity)
			r.Post("/apply-coupon", h.guestApplyCoupon)
			r.Post("/remove-coupon", h.guestRemoveCoupon)
			r.Post("/clear-cart", h.guestClearCart)
			r.Post("/order", h.guestPlaceOrder)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.With(requireUser).Get("/", h.listOrders)
			r.With(requireAdmin).Get("/all", h.listAllOrders)
			r.Get("/{id}", h.getOrder)
			r.With(requireAdmin).Put("/{id}", h.updateOrderStatus)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/", h.listCoupons)
			r.Post("/", h.createCoupon)
			r.Put("/{id}", h.updateCoupon)
			r.Delete("/{id}", h.deleteCoupon)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
